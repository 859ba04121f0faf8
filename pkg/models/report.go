package models

// MappingResult is the per-mapping line item of a session report.
type MappingResult struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// SessionReport is the aggregated outcome of one sync session.
type SessionReport struct {
	Status   string          `json:"status"`
	Reason   string          `json:"reason,omitempty"`
	Mappings []MappingResult `json:"mappings,omitempty"`
}

// Succeeded reports whether every mapping in the session succeeded.
// A skipped session has no mappings and reports false.
func (r *SessionReport) Succeeded() bool {
	if r.Status != SessionCompleted {
		return false
	}
	for _, m := range r.Mappings {
		if !m.Success {
			return false
		}
	}
	return true
}

// SuccessCount returns how many mappings in the session succeeded.
func (r *SessionReport) SuccessCount() int {
	n := 0
	for _, m := range r.Mappings {
		if m.Success {
			n++
		}
	}
	return n
}
