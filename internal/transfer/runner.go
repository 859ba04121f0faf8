// Package transfer invokes rsync over ssh for a single folder mapping and
// turns the tool's exit code and --stats output into a SyncRun record.
package transfer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rwidmer/nasync/pkg/models"
)

var (
	bytesSentRe = regexp.MustCompile(`sent ([\d,]+) bytes`)
	filesRe     = regexp.MustCompile(`Number of regular files transferred: ([\d,]+)`)
)

// Runner executes one transfer attempt per call. It never retries; retry
// policy belongs to the scheduler's interval.
type Runner struct {
	// commandContext allows substituting os/exec in tests.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// New returns a Runner backed by the given command factory. Pass
// exec.CommandContext outside of tests.
func New(commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd) *Runner {
	return &Runner{commandContext: commandContext}
}

// buildArgs assembles the rsync invocation for one mapping.
// --remove-source-files is only added when the mapping asks for it; rsync
// itself only removes files it has fully transferred, so a failed or partial
// run leaves the source untouched.
func buildArgs(mapping *models.FolderMapping, cfg *models.NasConfig) []string {
	src := mapping.SourcePath
	if !strings.HasSuffix(src, "/") {
		src += "/" // sync the folder's contents, not the folder itself
	}

	sshCmd := fmt.Sprintf("ssh -i %s -p %d -o StrictHostKeyChecking=accept-new",
		cfg.SSHKeyPath, cfg.SSHPort)

	args := []string{"-avz", "--stats", "-e", sshCmd}
	if mapping.DeleteSource {
		args = append(args, "--remove-source-files")
	}
	args = append(args, src, fmt.Sprintf("%s@%s:%s", cfg.SSHUser, cfg.Hostname, mapping.DestinationPath))
	return args
}

// parseStats extracts transfer counters from rsync --stats output.
func parseStats(output string) (files, bytes int64) {
	if m := filesRe.FindStringSubmatch(output); m != nil {
		files, _ = strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
	}
	if m := bytesSentRe.FindStringSubmatch(output); m != nil {
		bytes, _ = strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
	}
	return files, bytes
}

// Run performs one transfer attempt for the mapping and returns its record.
// Exit code zero maps to a success run with parsed counters; anything else
// maps to an error run carrying rsync's own failure summary. The record's
// CompletedAt is always at or after StartedAt.
func (r *Runner) Run(ctx context.Context, mapping *models.FolderMapping, cfg *models.NasConfig) models.SyncRun {
	args := buildArgs(mapping, cfg)

	log.WithFields(log.Fields{
		"mapping": mapping.Name,
		"source":  mapping.SourcePath,
		"dest":    mapping.DestinationPath,
	}).Info("starting rsync")

	cmd := r.commandContext(ctx, "rsync", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	completed := time.Now()

	run := models.SyncRun{
		MappingID:       mapping.ID,
		StartedAt:       started,
		CompletedAt:     completed,
		DurationSeconds: completed.Sub(started).Seconds(),
	}

	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg == "" {
			msg = err.Error()
		}
		run.Status = models.StatusError
		run.Message = "rsync failed: " + msg
		log.WithField("mapping", mapping.Name).WithError(err).Warn("rsync failed")
		return run
	}

	run.FilesTransferred, run.BytesTransferred = parseStats(stdout.String())
	run.Status = models.StatusSuccess
	run.Message = "Sync completed successfully"
	log.WithFields(log.Fields{
		"mapping": mapping.Name,
		"files":   run.FilesTransferred,
		"bytes":   run.BytesTransferred,
	}).Info("rsync finished")
	return run
}
