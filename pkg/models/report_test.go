package models

import "testing"

func TestSessionReportSucceeded(t *testing.T) {
	tests := []struct {
		name   string
		report SessionReport
		want   bool
	}{
		{
			name: "all mappings succeeded",
			report: SessionReport{
				Status:   SessionCompleted,
				Mappings: []MappingResult{{Success: true}, {Success: true}},
			},
			want: true,
		},
		{
			name: "one mapping failed",
			report: SessionReport{
				Status:   SessionCompleted,
				Mappings: []MappingResult{{Success: true}, {Success: false}},
			},
			want: false,
		},
		{
			name:   "skipped session",
			report: SessionReport{Status: SessionSkipped, Reason: ReasonNasOffline},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.report.Succeeded(); got != tt.want {
				t.Errorf("Succeeded() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestSessionReportSuccessCount(t *testing.T) {
	r := SessionReport{
		Status:   SessionCompleted,
		Mappings: []MappingResult{{Success: true}, {Success: false}, {Success: true}},
	}
	if got := r.SuccessCount(); got != 2 {
		t.Errorf("SuccessCount() = %d; want 2", got)
	}
}
