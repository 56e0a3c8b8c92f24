package task

import (
	"compress/gzip"
	"context"
	"io"

	"github.com/koheimiya/taskproc/pkg/fingerprint"
)

// Future is a value that the executor can materialize: a Task, a Const, or a
// Mapped projection of either. The interface is sealed; tasks obtain it by
// embedding Base.
type Future interface {
	futureNode()
}

// Task is the capability the executor consumes from user code. A task names
// its class, declares its argument slots, and computes a single result.
// Implementations embed Base for the defaults and must provide TaskName,
// Args, and Run.
type Task interface {
	Future

	// TaskName is the class name; instances of the same class share a
	// database directory and an id table.
	TaskName() string

	// Channels returns extra channel tags. The class name is always the
	// first channel of the effective tuple.
	Channels() []string

	// CompressLevel is the gzip level of the stored result;
	// gzip.DefaultCompression (-1) selects the library default.
	CompressLevel() int

	// Source is the version token of the class body. Changing it
	// invalidates every cached instance of the class.
	Source() string

	// Args maps slot names to inputs: a Future, a Const, or a JSON-literal
	// value (futures may be nested inside maps and slices).
	Args() map[string]any

	// Run computes the task's result
	Run(rc *RunContext) (any, error)
}

// Base supplies the default task configuration: no extra channels, default
// compression, empty source token. Embed it in every task type.
type Base struct{}

func (Base) futureNode()        {}
func (Base) Channels() []string { return nil }
func (Base) CompressLevel() int { return gzip.DefaultCompression }
func (Base) Source() string     { return "" }

// ChannelTuple returns the task's effective channel tuple: its class name
// followed by the declared extra channels.
func ChannelTuple(t Task) []string {
	return append([]string{t.TaskName()}, t.Channels()...)
}

// RunContext carries the per-run environment handed to a task body
type RunContext struct {
	ctx     context.Context
	dataDir string
	stdout  io.Writer
	stderr  io.Writer
	inputs  map[string]any
}

// NewRunContext builds the environment for one task execution. inputs maps
// slot names to fully-resolved values (futures replaced by their results,
// projections applied).
func NewRunContext(ctx context.Context, dataDir string, stdout, stderr io.Writer, inputs map[string]any) *RunContext {
	return &RunContext{ctx: ctx, dataDir: dataDir, stdout: stdout, stderr: stderr, inputs: inputs}
}

// Context returns the context of the surrounding graph execution
func (rc *RunContext) Context() context.Context { return rc.ctx }

// DataDir is the task-owned scratch directory. Its contents persist across
// runs until the instance or its class is cleared.
func (rc *RunContext) DataDir() string { return rc.dataDir }

// Stdout is the captured standard output of the run
func (rc *RunContext) Stdout() io.Writer { return rc.stdout }

// Stderr is the captured standard error of the run
func (rc *RunContext) Stderr() io.Writer { return rc.stderr }

// Input returns the resolved value of an argument slot
func (rc *RunContext) Input(slot string) any { return rc.inputs[slot] }

// Inputs returns all resolved argument slots
func (rc *RunContext) Inputs() map[string]any { return rc.inputs }

// Ref returns the fingerprint reference object of a future.
func Ref(f Future) (map[string]any, error) {
	switch x := f.(type) {
	case *Const:
		return map[string]any{"__const__": true, "__repr__": x.repr}, nil
	case *Mapped:
		ref, err := Ref(x.origin)
		if err != nil {
			return nil, err
		}
		ref["__key__"] = append([]any(nil), x.path...)
		return ref, nil
	case Task:
		args, err := LowerArgs(x.Args())
		if err != nil {
			return nil, err
		}
		return map[string]any{"__task__": x.TaskName(), "__args__": args}, nil
	}
	return nil, &fingerprint.NotJSONableError{Value: f}
}

// LowerArgs replaces every future in an argument mapping with its reference
// object, leaving JSON literals in place.
func LowerArgs(args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for slot, v := range args {
		lowered, err := lowerValue(v)
		if err != nil {
			return nil, err
		}
		out[slot] = lowered
	}
	return out, nil
}

func lowerValue(v any) (any, error) {
	switch x := v.(type) {
	case Future:
		return Ref(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			lowered, err := lowerValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = lowered
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			lowered, err := lowerValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = lowered
		}
		return out, nil
	}
	return v, nil
}

// Fingerprint computes the canonical byte string identifying a task instance
// by its class name and lowered arguments.
func Fingerprint(t Task) ([]byte, error) {
	args, err := LowerArgs(t.Args())
	if err != nil {
		return nil, err
	}
	return fingerprint.Canonical(map[string]any{
		"name": t.TaskName(),
		"args": args,
	})
}
