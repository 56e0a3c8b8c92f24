package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/koheimiya/taskproc/pkg/codec"
	"github.com/koheimiya/taskproc/pkg/database"
	"github.com/koheimiya/taskproc/pkg/task"
)

type echoTask struct {
	task.Base
	out  string
	fail bool
}

func (t *echoTask) TaskName() string     { return "Echo" }
func (t *echoTask) Args() map[string]any { return map[string]any{"out": t.out} }
func (t *echoTask) Run(rc *task.RunContext) (any, error) {
	if t.fail {
		return nil, errors.New("boom")
	}
	fmt.Fprintln(rc.Stdout(), t.out)
	fmt.Fprintln(rc.Stderr(), "log line")
	return t.out, nil
}

func invocation(t *testing.T, tk task.Task) *Invocation {
	t.Helper()
	db, err := database.Open(t.TempDir(), tk.TaskName(), -1)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	key, err := task.Fingerprint(tk)
	if err != nil {
		t.Fatalf("failed to fingerprint: %v", err)
	}
	inst, err := db.GetInstance(key, nil)
	if err != nil {
		t.Fatalf("failed to get instance: %v", err)
	}
	return &Invocation{
		Ctx:      context.Background(),
		Task:     tk,
		Instance: inst,
		Inputs:   map[string]any{},
		Codec:    codec.GzipJSON{Level: -1},
	}
}

func TestInlineCapturesOutput(t *testing.T) {
	inv := invocation(t, &echoTask{out: "hello"})

	data, err := Inline{}.Run(inv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	value, err := inv.Codec.Decode(data)
	if err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if value != "hello" {
		t.Errorf("expected hello, got %v", value)
	}

	stdout, err := os.ReadFile(inv.Instance.StdoutPath())
	if err != nil {
		t.Fatalf("stdout not captured: %v", err)
	}
	if string(stdout) != "hello\n" {
		t.Errorf("unexpected stdout: %q", stdout)
	}
	stderr, err := os.ReadFile(inv.Instance.StderrPath())
	if err != nil {
		t.Fatalf("stderr not captured: %v", err)
	}
	if string(stderr) != "log line\n" {
		t.Errorf("unexpected stderr: %q", stderr)
	}
}

func TestInlinePropagatesTaskError(t *testing.T) {
	inv := invocation(t, &echoTask{out: "x", fail: true})
	if _, err := (Inline{}).Run(inv); err == nil || err.Error() != "boom" {
		t.Errorf("expected the task body error, got %v", err)
	}
}

func TestPrefixCommandLogOrder(t *testing.T) {
	inv := invocation(t, &echoTask{out: "callee"})

	r := PrefixCommand{Argv: []string{"sh", "-c", "echo caller"}}
	if _, err := r.Run(inv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stdout, err := os.ReadFile(inv.Instance.StdoutPath())
	if err != nil {
		t.Fatalf("stdout not captured: %v", err)
	}
	// Caller section first, callee section appended.
	if string(stdout) != "caller\ncallee\n" {
		t.Errorf("unexpected stdout: %q", stdout)
	}
}

func TestPrefixCommandSpawnFailure(t *testing.T) {
	inv := invocation(t, &echoTask{out: "x"})

	r := PrefixCommand{Argv: []string{"/nonexistent-binary-for-test"}}
	_, err := r.Run(inv)
	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Errorf("expected runner.Error, got %v", err)
	}
}
