// Package runner executes single task bodies. The inline runner invokes the
// compute in the worker goroutine with stdout/stderr captured into the
// instance directory; the prefix-command runner spawns a user-supplied
// subprocess first and appends the task's own output to the same log files.
package runner
