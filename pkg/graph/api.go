package graph

import (
	"context"

	"github.com/koheimiya/taskproc/pkg/database"
	"github.com/koheimiya/taskproc/pkg/task"
	"github.com/koheimiya/taskproc/pkg/types"
)

// Run resolves the graph reachable from root, executes every stale node, and
// returns the root's (possibly projected) value.
func Run(ctx context.Context, root task.Future, opts ...Option) (any, error) {
	value, _, err := RunWithStats(ctx, root, opts...)
	return value, err
}

// RunWithStats is Run plus execution statistics: the per-channel tally of
// executed (not cached) nodes, the cache-hit count, and the wall-clock
// duration.
func RunWithStats(ctx context.Context, root task.Future, opts ...Option) (any, *types.Stats, error) {
	o := buildOptions(opts)
	g, err := resolve(root, o)
	if err != nil {
		return nil, nil, err
	}
	defer g.Close()

	stats, err := g.execute(ctx, o)
	if err != nil {
		return nil, stats, err
	}
	value, err := g.rootValue()
	if err != nil {
		return nil, stats, err
	}
	return value, stats, nil
}

// Load reads the cached (possibly projected) value of a future without
// executing anything. Fails with MissingResultError when the origin has not
// produced a result.
func Load(f task.Future, opts ...Option) (any, error) {
	o := buildOptions(opts)
	g, err := resolve(f, o)
	if err != nil {
		return nil, err
	}
	defer g.Close()
	return g.rootValue()
}

// ClearTask invalidates one cached instance: its directory is wiped (scratch
// data included) while its identity is preserved.
func ClearTask(t task.Task, opts ...Option) error {
	o := buildOptions(opts)
	g, err := resolve(t, o)
	if err != nil {
		return err
	}
	defer g.Close()
	return g.rootNode.Instance.Delete()
}

// ClearAll invalidates a whole task class: the id table is emptied and every
// instance directory removed.
func ClearAll(t task.Task, opts ...Option) error {
	o := buildOptions(opts)
	db, err := database.Open(o.CacheRoot, t.TaskName(), t.CompressLevel())
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Clear()
}
