package runner

import (
	"context"
	"fmt"
	"os"

	"github.com/koheimiya/taskproc/pkg/codec"
	"github.com/koheimiya/taskproc/pkg/database"
	"github.com/koheimiya/taskproc/pkg/task"
)

// Error reports that the runner could not execute a task body (spawn
// failure, unwritable log files). The scheduler treats it like any task
// failure.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("runner %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Invocation bundles everything a runner needs to execute one node
type Invocation struct {
	Ctx      context.Context
	Task     task.Task
	Instance *database.Instance
	Inputs   map[string]any
	Codec    codec.Codec
}

// Runner executes one task body and returns the serialized result bytes.
// Captured stdout and stderr are written to the instance directory.
type Runner interface {
	Run(inv *Invocation) ([]byte, error)
}

// Inline is the default runner: it invokes the task's compute in the calling
// goroutine, wiring the run context's stdout/stderr to the instance's log
// files.
type Inline struct {
	// Append leaves existing log content in place instead of truncating.
	// Used by wrapping runners that write a leading section themselves.
	Append bool
}

// Run executes the task body and encodes its result
func (r Inline) Run(inv *Invocation) ([]byte, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if r.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	stdout, err := os.OpenFile(inv.Instance.StdoutPath(), flags, 0644)
	if err != nil {
		return nil, &Error{Op: "open stdout", Err: err}
	}
	defer stdout.Close()
	stderr, err := os.OpenFile(inv.Instance.StderrPath(), flags, 0644)
	if err != nil {
		return nil, &Error{Op: "open stderr", Err: err}
	}
	defer stderr.Close()

	rc := task.NewRunContext(inv.Ctx, inv.Instance.DataDir(), stdout, stderr, inv.Inputs)
	value, err := inv.Task.Run(rc)
	if err != nil {
		return nil, err
	}
	data, err := inv.Codec.Encode(value)
	if err != nil {
		return nil, &Error{Op: "encode result", Err: err}
	}
	return data, nil
}
