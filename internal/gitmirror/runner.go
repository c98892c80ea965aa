package gitmirror

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Runner executes git inside a given working tree.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// GitError carries the combined output of a failed git invocation with
// credentials removed.
type GitError struct {
	Args   string
	Output string
	Err    error
}

func (e *GitError) Error() string {
	return fmt.Sprintf("git %s: %v: %s", e.Args, e.Err, strings.TrimSpace(e.Output))
}

func (e *GitError) Unwrap() error {
	return e.Err
}

var credentialPattern = regexp.MustCompile(`(https?://)[^/@\s]+@`)

func redact(s string) string {
	return credentialPattern.ReplaceAllString(s, "${1}***@")
}

type ExecRunner struct {
	log *zap.Logger
}

func NewExecRunner(log *zap.Logger) *ExecRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExecRunner{log: log}
}

func (r *ExecRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_ASKPASS=echo")

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	printable := redact(strings.Join(args, " "))
	r.log.Debug("git", zap.String("dir", dir), zap.String("args", printable), zap.Bool("ok", err == nil))
	if err != nil {
		return out.String(), &GitError{Args: printable, Output: redact(out.String()), Err: err}
	}
	return out.String(), nil
}

func outputContains(err error, needles ...string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, n := range needles {
		if strings.Contains(msg, n) {
			return true
		}
	}
	return false
}

func isNoUpstream(err error) bool {
	return outputContains(err, "has no upstream branch", "no upstream")
}

func isRejected(err error) bool {
	return outputContains(err, "rejected", "non-fast-forward", "fetch first")
}
