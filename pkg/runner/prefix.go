package runner

import (
	"os"
	"os/exec"
)

// PrefixCommand wraps the inline runner with a user-supplied prefix command.
// The prefix is spawned first with the instance's stdout/stderr files
// attached (truncated), then the task body runs inline appending to the same
// files, so each log contains the caller section followed by the callee
// section in order.
type PrefixCommand struct {
	Argv []string
}

// Run spawns the prefix command, then executes the task body
func (r PrefixCommand) Run(inv *Invocation) ([]byte, error) {
	if len(r.Argv) == 0 {
		return Inline{}.Run(inv)
	}

	stdout, err := os.OpenFile(inv.Instance.StdoutPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, &Error{Op: "open stdout", Err: err}
	}
	stderr, err := os.OpenFile(inv.Instance.StderrPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		stdout.Close()
		return nil, &Error{Op: "open stderr", Err: err}
	}

	cmd := exec.CommandContext(inv.Ctx, r.Argv[0], r.Argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Dir = inv.Instance.DataDir()
	runErr := cmd.Run()
	stdout.Close()
	stderr.Close()
	if runErr != nil {
		return nil, &Error{Op: "prefix command", Err: runErr}
	}

	return Inline{Append: true}.Run(inv)
}
