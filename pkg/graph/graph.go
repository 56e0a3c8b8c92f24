package graph

import (
	"fmt"
	"sync"

	"github.com/koheimiya/taskproc/pkg/codec"
	"github.com/koheimiya/taskproc/pkg/database"
	"github.com/koheimiya/taskproc/pkg/task"
	"github.com/koheimiya/taskproc/pkg/types"
)

// CycleError reports that the resolved graph contains a cycle
type CycleError struct {
	Class string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected through task class %s", e.Class)
}

// FailedTask wraps the failure of one task instance with its identity
type FailedTask struct {
	Class       string
	Fingerprint string
	Err         error
}

func (e *FailedTask) Error() string {
	return fmt.Sprintf("task %s failed (args %s): %v", e.Class, e.Fingerprint, e.Err)
}

func (e *FailedTask) Unwrap() error { return e.Err }

// FailedTaskError surfaces at the scheduler boundary when any task in the
// graph failed. It names the first failure observed; later concurrent
// failures are recorded on their nodes but not re-raised.
type FailedTaskError struct {
	First *FailedTask
}

func (e *FailedTaskError) Error() string {
	return fmt.Sprintf("graph execution failed: %v", e.First)
}

func (e *FailedTaskError) Unwrap() error { return e.First }

// bound is a resolved argument leaf: either a constant value or a projection
// into another node's result.
type bound struct {
	node  *Node // nil for constants
	value any   // constant value when node is nil
	path  []any // projection path applied at read time
}

// Node is one scheduled task instance in a resolved graph
type Node struct {
	Task     task.Task
	Key      []byte // fingerprint
	Class    string
	ID       int
	Channels []string

	Instance *database.Instance
	NeedsRun bool

	// boundArgs mirrors Task.Args() with every future replaced by *bound
	boundArgs map[string]any

	upstream   map[string]*Node // dep name -> upstream node
	downstream []*Node

	state   types.NodeState
	pending int   // upstream nodes not yet succeeded
	failure error // set when state is failed

	loadOnce sync.Once
	loaded   any
	loadErr  error
}

// State returns the node's execution state
func (n *Node) State() types.NodeState { return n.state }

// Failure returns the recorded failure, if any
func (n *Node) Failure() error { return n.failure }

// Upstream returns the labeled dependency edges
func (n *Node) Upstream() map[string]*Node { return n.upstream }

// value decodes the node's stored result, caching the decoded form for the
// duration of the graph run. Safe for concurrent readers once the producer
// has succeeded.
func (n *Node) value(c codec.Codec) (any, error) {
	n.loadOnce.Do(func() {
		data, err := n.Instance.LoadResult()
		if err != nil {
			n.loadErr = err
			return
		}
		n.loaded, n.loadErr = c.Decode(data)
	})
	return n.loaded, n.loadErr
}

// Graph is a resolved DAG of deduplicated task instances
type Graph struct {
	RunID string
	Nodes []*Node // stable resolution order (depth-first, slots sorted)

	root     task.Future
	rootNode *Node // nil when the root is a plain Const
	rootPath []any

	byKey map[string]*Node
	dbs   map[string]*database.Database
	codec func(*Node) codec.Codec
}

// NodeByKey returns the node with the given fingerprint, if present
func (g *Graph) NodeByKey(key []byte) (*Node, bool) {
	n, ok := g.byKey[string(key)]
	return n, ok
}

// Close releases every class database opened during resolution
func (g *Graph) Close() error {
	var firstErr error
	for _, db := range g.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// rootValue reads the root's (possibly projected) value after execution
func (g *Graph) rootValue() (any, error) {
	if g.rootNode == nil {
		c, ok := task.Origin(g.root).(*task.Const)
		if !ok {
			return nil, fmt.Errorf("root has no scheduled node and is not a const")
		}
		return task.Project(c.Value(), g.rootPath)
	}
	v, err := g.rootNode.value(g.codec(g.rootNode))
	if err != nil {
		return nil, err
	}
	return task.Project(v, g.rootPath)
}
