// Package events provides an in-process broker for graph and task lifecycle
// events. The scheduler publishes; any number of subscribers receive on
// buffered channels. Slow subscribers drop events rather than blocking
// execution.
package events
