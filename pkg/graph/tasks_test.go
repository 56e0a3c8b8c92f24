package graph_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/koheimiya/taskproc/pkg/task"
)

// num widens resolved inputs: constants arrive as Go ints, upstream results
// as JSON float64.
func num(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	}
	panic(fmt.Sprintf("not a number: %v (%T)", v, v))
}

// chooseTask computes a binomial coefficient through Pascal's recurrence
type chooseTask struct {
	task.Base
	n, k  int
	prev1 task.Future
	prev2 task.Future
}

func newChoose(n, k int) *chooseTask {
	t := &chooseTask{n: n, k: k}
	if 0 < k && k < n {
		t.prev1 = newChoose(n-1, k-1)
		t.prev2 = newChoose(n-1, k)
	} else {
		t.prev1 = task.MustConst(0)
		t.prev2 = task.MustConst(1)
	}
	return t
}

func (t *chooseTask) TaskName() string { return "Choose" }
func (t *chooseTask) Args() map[string]any {
	return map[string]any{"n": t.n, "k": t.k, "prev1": t.prev1, "prev2": t.prev2}
}
func (t *chooseTask) Run(rc *task.RunContext) (any, error) {
	return num(rc.Input("prev1")) + num(rc.Input("prev2")), nil
}

// helloTask and worldTask share a user channel
type helloTask struct{ task.Base }

func (t *helloTask) TaskName() string     { return "TaskA" }
func (t *helloTask) Channels() []string   { return []string{"<mychan>", "<another_chan>"} }
func (t *helloTask) Args() map[string]any { return map[string]any{} }
func (t *helloTask) Run(rc *task.RunContext) (any, error) {
	return "hello", nil
}

type worldTask struct{ task.Base }

func (t *worldTask) TaskName() string     { return "TaskB" }
func (t *worldTask) Channels() []string   { return []string{"<mychan>"} }
func (t *worldTask) Args() map[string]any { return map[string]any{} }
func (t *worldTask) Run(rc *task.RunContext) (any, error) {
	return "world", nil
}

type concatTask struct {
	task.Base
	a, b task.Future
}

func newConcat() *concatTask {
	return &concatTask{a: &helloTask{}, b: &worldTask{}}
}

func (t *concatTask) TaskName() string     { return "TaskC" }
func (t *concatTask) CompressLevel() int   { return -1 }
func (t *concatTask) Args() map[string]any { return map[string]any{"a": t.a, "b": t.b} }
func (t *concatTask) Run(rc *task.RunContext) (any, error) {
	return fmt.Sprintf("%s, %s", rc.Input("a"), rc.Input("b")), nil
}

// createFileTask writes a file into its scratch directory and returns the path
type createFileTask struct {
	task.Base
	content string
}

func (t *createFileTask) TaskName() string     { return "CreateFile" }
func (t *createFileTask) Args() map[string]any { return map[string]any{"content": t.content} }
func (t *createFileTask) Run(rc *task.RunContext) (any, error) {
	outpath := filepath.Join(rc.DataDir(), "test.txt")
	if err := os.WriteFile(outpath, []byte(t.content), 0644); err != nil {
		return nil, err
	}
	return outpath, nil
}

type greetWithFileTask struct {
	task.Base
	filepath task.Future
}

func newGreetWithFile(name string) *greetWithFileTask {
	return &greetWithFileTask{filepath: &createFileTask{content: fmt.Sprintf("Hello, %s!", name)}}
}

func (t *greetWithFileTask) TaskName() string     { return "GreetWithFile" }
func (t *greetWithFileTask) Args() map[string]any { return map[string]any{"filepath": t.filepath} }
func (t *greetWithFileTask) Run(rc *task.RunContext) (any, error) {
	data, err := os.ReadFile(rc.Input("filepath").(string))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// raiseTask always fails
type raiseTask struct{ task.Base }

func (t *raiseTask) TaskName() string     { return "TaskRaise" }
func (t *raiseTask) Args() map[string]any { return map[string]any{} }
func (t *raiseTask) Run(rc *task.RunContext) (any, error) {
	return nil, errors.New("42")
}

type afterRaiseTask struct {
	task.Base
	up       task.Future
	executed *atomic.Bool
}

func (t *afterRaiseTask) TaskName() string     { return "AfterRaise" }
func (t *afterRaiseTask) Args() map[string]any { return map[string]any{"up": t.up} }
func (t *afterRaiseTask) Run(rc *task.RunContext) (any, error) {
	t.executed.Store(true)
	return "unreachable", nil
}

// multiResultTask returns a nested structure for projection tests
type multiResultTask struct{ task.Base }

func (t *multiResultTask) TaskName() string     { return "MultiResultTask" }
func (t *multiResultTask) Args() map[string]any { return map[string]any{} }
func (t *multiResultTask) Run(rc *task.RunContext) (any, error) {
	return map[string]any{"hello": []any{"world", "42"}}, nil
}

type downstreamTask struct {
	task.Base
	up task.Future
}

func newDownstream() *downstreamTask {
	return &downstreamTask{up: task.MustIndex(&multiResultTask{}, "hello", 1)}
}

func (t *downstreamTask) TaskName() string     { return "DownstreamTask" }
func (t *downstreamTask) Args() map[string]any { return map[string]any{"up": t.up} }
func (t *downstreamTask) Run(rc *task.RunContext) (any, error) {
	return rc.Input("up"), nil
}

// sleepTask sleeps half a second and folds its predecessors
type sleepTask struct {
	task.Base
	idx   int
	prevs []any
}

func newSleep(idx int, prevs ...task.Future) *sleepTask {
	t := &sleepTask{idx: idx, prevs: make([]any, len(prevs))}
	for i, p := range prevs {
		t.prevs[i] = p
	}
	return t
}

func (t *sleepTask) TaskName() string     { return "SleepTask" }
func (t *sleepTask) Args() map[string]any { return map[string]any{"idx": t.idx, "prevs": t.prevs} }
func (t *sleepTask) Run(rc *task.RunContext) (any, error) {
	const dt = 0.5
	time.Sleep(time.Duration(dt * float64(time.Second)))
	max := 0.0
	for _, p := range rc.Input("prevs").([]any) {
		if v := num(p); v > max {
			max = v
		}
	}
	return dt + max, nil
}

// limitedTask tracks its own concurrency inside a shared channel
type limitedTask struct {
	task.Base
	idx     int
	active  *atomic.Int32
	maxSeen *atomic.Int32
}

func (t *limitedTask) TaskName() string   { return "LimitedTask" }
func (t *limitedTask) Channels() []string { return []string{"<limited>"} }
func (t *limitedTask) Args() map[string]any {
	return map[string]any{"idx": t.idx}
}
func (t *limitedTask) Run(rc *task.RunContext) (any, error) {
	cur := t.active.Add(1)
	defer t.active.Add(-1)
	for {
		seen := t.maxSeen.Load()
		if cur <= seen || t.maxSeen.CompareAndSwap(seen, cur) {
			break
		}
	}
	time.Sleep(50 * time.Millisecond)
	return t.idx, nil
}

// summarizeFan joins an arbitrary set of upstream futures
type summarizeFan struct {
	task.Base
	parts []any
}

func (t *summarizeFan) TaskName() string     { return "SummarizeFan" }
func (t *summarizeFan) Args() map[string]any { return map[string]any{"parts": t.parts} }
func (t *summarizeFan) Run(rc *task.RunContext) (any, error) {
	return len(rc.Input("parts").([]any)), nil
}

// versionedTask carries an explicit source token
type versionedTask struct {
	task.Base
	idx int
	src string
}

func (t *versionedTask) TaskName() string     { return "Versioned" }
func (t *versionedTask) Source() string       { return t.src }
func (t *versionedTask) Args() map[string]any { return map[string]any{"idx": t.idx} }
func (t *versionedTask) Run(rc *task.RunContext) (any, error) {
	return t.idx, nil
}

// cyclicTask closes a dependency loop through pointer mutation
type cyclicTask struct {
	task.Base
	dep task.Future
}

func (t *cyclicTask) TaskName() string     { return "Cyclic" }
func (t *cyclicTask) Args() map[string]any { return map[string]any{"dep": t.dep} }
func (t *cyclicTask) Run(rc *task.RunContext) (any, error) {
	return nil, nil
}

// countElemTask and summarizeTask exercise futures nested inside containers
type countElemTask struct {
	task.Base
	x any
}

func (t *countElemTask) TaskName() string     { return "CountElem" }
func (t *countElemTask) Args() map[string]any { return map[string]any{"x": t.x} }
func (t *countElemTask) Run(rc *task.RunContext) (any, error) {
	switch v := rc.Input("x").(type) {
	case []any:
		return len(v), nil
	case map[string]any:
		return len(v), nil
	}
	return nil, fmt.Errorf("not a container: %T", rc.Input("x"))
}

type summarizeTask struct {
	task.Base
	params map[string]any
}

func (t *summarizeTask) TaskName() string { return "SummarizeParam" }
func (t *summarizeTask) Args() map[string]any {
	counts := map[string]any{}
	for k, v := range t.params {
		switch v.(type) {
		case []any, map[string]any:
			counts[k] = &countElemTask{x: v}
		}
	}
	return map[string]any{"params": t.params, "counts": counts}
}
func (t *summarizeTask) Run(rc *task.RunContext) (any, error) {
	out := map[string]any{}
	counts := rc.Input("counts").(map[string]any)
	for k := range t.params {
		if c, ok := counts[k]; ok {
			out[k] = c
		} else {
			out[k] = nil
		}
	}
	return out, nil
}
