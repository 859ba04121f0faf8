// Package probe answers whether the NAS is reachable and whether its SSH
// endpoint accepts our key. Both checks shell out, the same way the transfer
// itself does, so a passing probe means the real tools can reach the host.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rwidmer/nasync/pkg/models"
)

const pingTimeout = 2 * time.Second

// Prober checks network-level reachability of the NAS. It holds no mutable
// state and is safe to call concurrently with a running session.
type Prober struct {
	// commandContext allows substituting os/exec in tests.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// New returns a Prober backed by the given command factory. Pass
// exec.CommandContext outside of tests.
func New(commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd) *Prober {
	return &Prober{commandContext: commandContext}
}

// IsReachable sends a single echo probe with a bounded timeout. Any failure,
// including DNS errors and timeouts, reports false rather than an error.
func (p *Prober) IsReachable(ctx context.Context, hostname string) bool {
	if hostname == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout+time.Second)
	defer cancel()

	cmd := p.commandContext(ctx, "ping", "-c", "1", "-W", strconv.Itoa(int(pingTimeout.Seconds())), hostname)
	if err := cmd.Run(); err != nil {
		log.WithField("hostname", hostname).WithError(err).Debug("reachability probe failed")
		return false
	}
	return true
}

// TestSSH opens a non-interactive SSH session and runs a trivial command,
// verifying hostname, port, user and key together. Returns a human-readable
// message either way.
func (p *Prober) TestSSH(ctx context.Context, cfg *models.NasConfig) (bool, string) {
	cmd := p.commandContext(ctx, "ssh",
		"-i", cfg.SSHKeyPath,
		"-p", strconv.Itoa(cfg.SSHPort),
		"-o", "StrictHostKeyChecking=accept-new",
		"-o", "ConnectTimeout=5",
		"-o", "BatchMode=yes",
		fmt.Sprintf("%s@%s", cfg.SSHUser, cfg.Hostname),
		"true",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return false, fmt.Sprintf("SSH connection failed: %s", msg)
	}
	return true, "SSH connection successful"
}
