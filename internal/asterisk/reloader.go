// Package asterisk invokes the call-control daemon's CLI to reload the two
// subsystems the portal generates configuration for. The daemon is treated
// as opaque and untrusted: each command's exit status and output are
// captured for audit, never parsed for control decisions, and a failure in
// the first reload does not suppress attempting the second. The orchestrator
// never retries on its own; retry is the operator's decision, made by
// calling Apply again.
package asterisk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Subsystem names used in reload results and metrics labels.
const (
	SubsystemPJSIP    = "pjsip"
	SubsystemDialplan = "dialplan"
)

// DefaultCommandTimeout bounds each reload command so a hung daemon cannot
// wedge the apply lock indefinitely.
const DefaultCommandTimeout = 30 * time.Second

// ReloadResult captures one reload directive's outcome.
type ReloadResult struct {
	Subsystem string `json:"subsystem"`
	Command   string `json:"command"`
	ExitCode  int    `json:"exit_code"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	OK        bool   `json:"ok"`
}

// ---- TEST SEAM ----
// runCommand executes name with args under the given timeout and returns the
// trimmed stdout/stderr and exit code. A non-zero exit is not an error; err
// is reserved for failures to run the command at all (missing binary,
// timeout).
var runCommand = func(ctx context.Context, timeout time.Duration, name string, args ...string) (stdout, stderr string, exitCode int, err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	stdout = strings.TrimSpace(outBuf.String())
	stderr = strings.TrimSpace(errBuf.String())

	if runErr == nil {
		return stdout, stderr, 0, nil
	}
	if ctx.Err() == context.DeadlineExceeded {
		return stdout, stderr, -1, context.DeadlineExceeded
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return stdout, stderr, exitErr.ExitCode(), nil
	}
	return stdout, stderr, -1, runErr
}

// ---------------------------------------------------------------------

// Reloader issues reload directives over the daemon's CLI channel
// ("asterisk -rx <directive>"), one per subsystem.
type Reloader struct {
	// Binary is the daemon CLI executable; defaults to "asterisk".
	Binary string

	// Timeout bounds each individual command; defaults to
	// DefaultCommandTimeout.
	Timeout time.Duration
}

// NewReloader constructs a Reloader with default binary and timeout.
func NewReloader() *Reloader {
	return &Reloader{Binary: "asterisk", Timeout: DefaultCommandTimeout}
}

// Reload tells the daemon to reload the endpoint subsystem and then the
// routing subsystem. Both commands are always attempted; each result is
// recorded independently.
func (r *Reloader) Reload(ctx context.Context) []ReloadResult {
	return []ReloadResult{
		r.run(ctx, SubsystemPJSIP, "module reload res_pjsip.so"),
		r.run(ctx, SubsystemDialplan, "dialplan reload"),
	}
}

// run executes one reload directive and converts its outcome to a
// ReloadResult. Timeouts and missing binaries are folded into the result
// rather than raised; the pipeline must always reach the audit step.
func (r *Reloader) run(ctx context.Context, subsystem, directive string) ReloadResult {
	binary := r.Binary
	if binary == "" {
		binary = "asterisk"
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	res := ReloadResult{
		Subsystem: subsystem,
		Command:   fmt.Sprintf("%s -rx %q", binary, directive),
	}

	stdout, stderr, exitCode, err := runCommand(ctx, timeout, binary, "-rx", directive)
	res.Stdout = stdout
	res.Stderr = stderr
	res.ExitCode = exitCode

	switch {
	case err == context.DeadlineExceeded:
		res.Stderr = fmt.Sprintf("command timed out after %s", timeout)
	case err != nil:
		res.Stderr = err.Error()
	default:
		res.OK = exitCode == 0
	}

	if res.OK {
		log.Info().
			Str("subsystem", subsystem).
			Str("stdout", res.Stdout).
			Msg("daemon reload succeeded")
	} else {
		log.Error().
			Str("subsystem", subsystem).
			Int("exit_code", res.ExitCode).
			Str("stdout", res.Stdout).
			Str("stderr", res.Stderr).
			Msg("daemon reload failed")
	}
	return res
}
