/*
Package task defines the task capability and the future variants consumed by
the executor.

A Future is one of three things: a Task (a user-defined node), a Const (a
literal-safe JSON value), or a Mapped projection narrowing another future's
result by a key path. Projections are never scheduled; the executor schedules
their origin and applies the path at read time.

Tasks embed Base and declare their inputs as an explicit args mapping:

	type Scale struct {
	    task.Base
	    Factor int
	    Input  task.Future
	}

	func (t *Scale) TaskName() string { return "Scale" }
	func (t *Scale) Args() map[string]any {
	    return map[string]any{"factor": t.Factor, "input": t.Input}
	}
	func (t *Scale) Run(rc *task.RunContext) (any, error) { ... }
*/
package task
