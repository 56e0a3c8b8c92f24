package graph

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/koheimiya/taskproc/pkg/database"
	"github.com/koheimiya/taskproc/pkg/fingerprint"
	"github.com/koheimiya/taskproc/pkg/log"
	"github.com/koheimiya/taskproc/pkg/task"
)

// resolver walks the reachable futures of a root, deduplicates instances by
// fingerprint, materializes their directories, and computes staleness.
// Traversal is depth-first with slot names (and nested object keys) visited
// in sorted order, so instance-id assignment is reproducible across runs.
type resolver struct {
	opts   *Options
	g      *Graph
	logger zerolog.Logger

	sourceTS map[string]time.Time
	onStack  map[uintptr]bool
	memo     map[uintptr]*visitResult
}

type visitResult struct {
	node *Node
	ref  map[string]any
}

// Resolve turns a root future into a DAG of fingerprinted task instances
func Resolve(root task.Future, opts ...Option) (*Graph, error) {
	o := buildOptions(opts)
	return resolve(root, o)
}

func resolve(root task.Future, o *Options) (*Graph, error) {
	r := &resolver{
		opts:     o,
		logger:   log.WithComponent("resolver"),
		sourceTS: make(map[string]time.Time),
		onStack:  make(map[uintptr]bool),
		memo:     make(map[uintptr]*visitResult),
	}
	r.g = &Graph{
		RunID: uuid.New().String(),
		root:  root,
		byKey: make(map[string]*Node),
		dbs:   make(map[string]*database.Database),
	}
	r.g.codec = o.codecFor

	origin := task.Origin(root)
	if m, ok := root.(*task.Mapped); ok {
		r.g.rootPath = m.Path()
	}
	switch x := origin.(type) {
	case *task.Const:
		// Nothing to schedule; the value is read straight from the wrapper.
	case task.Task:
		node, _, err := r.visit(x)
		if err != nil {
			r.g.Close()
			return nil, err
		}
		r.g.rootNode = node
	default:
		r.g.Close()
		return nil, fmt.Errorf("unsupported root future %T", origin)
	}

	r.logger.Debug().
		Str("run_id", r.g.RunID).
		Int("nodes", len(r.g.Nodes)).
		Msg("Graph resolved")
	return r.g, nil
}

// visit resolves one origin task, children first, and returns its node and
// reference object.
func (r *resolver) visit(t task.Task) (*Node, map[string]any, error) {
	ptr := taskPointer(t)
	if ptr != 0 {
		if r.onStack[ptr] {
			return nil, nil, &CycleError{Class: t.TaskName()}
		}
		if hit, ok := r.memo[ptr]; ok {
			return hit.node, hit.ref, nil
		}
		r.onStack[ptr] = true
		defer delete(r.onStack, ptr)
	}

	args := t.Args()
	slots := make([]string, 0, len(args))
	for slot := range args {
		slots = append(slots, slot)
	}
	sort.Strings(slots)

	loweredArgs := make(map[string]any, len(args))
	boundArgs := make(map[string]any, len(args))
	upstream := make(map[string]*Node)
	for _, slot := range slots {
		lowered, mirror, err := r.walkValue(args[slot], []string{slot}, upstream)
		if err != nil {
			return nil, nil, err
		}
		loweredArgs[slot] = lowered
		boundArgs[slot] = mirror
	}

	ref := map[string]any{"__task__": t.TaskName(), "__args__": loweredArgs}
	key, err := fingerprint.Canonical(map[string]any{"name": t.TaskName(), "args": loweredArgs})
	if err != nil {
		return nil, nil, err
	}

	// Two futures with the same fingerprint denote the same instance.
	if existing, ok := r.g.byKey[string(key)]; ok {
		if ptr != 0 {
			r.memo[ptr] = &visitResult{node: existing, ref: ref}
		}
		return existing, ref, nil
	}

	db, srcTS, err := r.database(t)
	if err != nil {
		return nil, nil, err
	}

	depPaths := make(map[string]string, len(upstream))
	for name, up := range upstream {
		depPaths[name] = up.Instance.Path()
	}
	inst, err := db.GetInstance(key, depPaths)
	if err != nil {
		return nil, nil, err
	}

	node := &Node{
		Task:      t,
		Key:       key,
		Class:     t.TaskName(),
		ID:        inst.ID(),
		Channels:  task.ChannelTuple(t),
		Instance:  inst,
		boundArgs: boundArgs,
		upstream:  upstream,
	}
	node.NeedsRun, err = r.needsRun(node, srcTS)
	if err != nil {
		return nil, nil, err
	}

	// Wire reverse edges over the distinct upstream set.
	for _, up := range distinctNodes(upstream) {
		up.downstream = append(up.downstream, node)
		if up.NeedsRun {
			node.pending++
		}
	}

	r.g.byKey[string(key)] = node
	r.g.Nodes = append(r.g.Nodes, node)
	if ptr != 0 {
		r.memo[ptr] = &visitResult{node: node, ref: ref}
	}

	r.logger.Debug().
		Str("task_class", node.Class).
		Int("instance_id", node.ID).
		Bool("needs_run", node.NeedsRun).
		Msg("Resolved task instance")
	return node, ref, nil
}

// walkValue lowers one argument value: futures become reference objects in
// the fingerprint tree and bound leaves in the runtime mirror. Dependency
// edges are recorded under dotted path names.
func (r *resolver) walkValue(v any, path []string, upstream map[string]*Node) (any, any, error) {
	switch x := v.(type) {
	case *task.Const:
		ref, err := task.Ref(x)
		if err != nil {
			return nil, nil, err
		}
		return ref, &bound{value: x.Value()}, nil

	case *task.Mapped:
		switch origin := x.Origin().(type) {
		case *task.Const:
			ref, err := task.Ref(x)
			if err != nil {
				return nil, nil, err
			}
			return ref, &bound{value: origin.Value(), path: x.Path()}, nil
		case task.Task:
			child, originRef, err := r.visit(origin)
			if err != nil {
				return nil, nil, err
			}
			ref := make(map[string]any, len(originRef)+1)
			for k, e := range originRef {
				ref[k] = e
			}
			ref["__key__"] = x.Path()
			upstream[depName(path)] = child
			return ref, &bound{node: child, path: x.Path()}, nil
		}
		return nil, nil, fmt.Errorf("unsupported projection origin %T", x.Origin())

	case task.Task:
		child, ref, err := r.visit(x)
		if err != nil {
			return nil, nil, err
		}
		upstream[depName(path)] = child
		return ref, &bound{node: child}, nil

	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lowered := make(map[string]any, len(x))
		mirror := make(map[string]any, len(x))
		for _, k := range keys {
			l, m, err := r.walkValue(x[k], append(path, k), upstream)
			if err != nil {
				return nil, nil, err
			}
			lowered[k] = l
			mirror[k] = m
		}
		return lowered, mirror, nil

	case []any:
		lowered := make([]any, len(x))
		mirror := make([]any, len(x))
		for i, e := range x {
			l, m, err := r.walkValue(e, append(path, strconv.Itoa(i)), upstream)
			if err != nil {
				return nil, nil, err
			}
			lowered[i] = l
			mirror[i] = m
		}
		return lowered, mirror, nil
	}
	return v, v, nil
}

// database opens (once per class) the class database and refreshes its
// source token.
func (r *resolver) database(t task.Task) (*database.Database, time.Time, error) {
	name := t.TaskName()
	if db, ok := r.g.dbs[name]; ok {
		return db, r.sourceTS[name], nil
	}
	db, err := database.Open(r.opts.CacheRoot, name, t.CompressLevel())
	if err != nil {
		return nil, time.Time{}, err
	}
	srcTS, err := db.UpdateSourceIfNecessary(t.Source())
	if err != nil {
		db.Close()
		return nil, time.Time{}, err
	}
	r.g.dbs[name] = db
	r.sourceTS[name] = srcTS
	return db, srcTS, nil
}

// needsRun decides staleness: missing result, stale against the class source
// token, a stale or rerunning upstream.
func (r *resolver) needsRun(n *Node, srcTS time.Time) (bool, error) {
	if !n.Instance.HasResult() {
		return true, nil
	}
	ts, err := n.Instance.Timestamp()
	if err != nil {
		return false, err
	}
	if srcTS.After(ts) {
		return true, nil
	}
	for _, up := range distinctNodes(n.upstream) {
		if up.NeedsRun {
			return true, nil
		}
		upTS, err := up.Instance.Timestamp()
		if err != nil {
			return false, err
		}
		if upTS.After(ts) {
			return true, nil
		}
	}
	return false, nil
}

// inputs materializes a node's argument slots: upstream results are loaded
// and projected, constants unwrapped, literals passed through.
func (g *Graph) inputs(n *Node) (map[string]any, error) {
	out := make(map[string]any, len(n.boundArgs))
	for slot, v := range n.boundArgs {
		resolved, err := g.materialize(v)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve input %s of %s: %w", slot, n.Class, err)
		}
		out[slot] = resolved
	}
	return out, nil
}

func (g *Graph) materialize(v any) (any, error) {
	switch x := v.(type) {
	case *bound:
		base := x.value
		if x.node != nil {
			loaded, err := x.node.value(g.codec(x.node))
			if err != nil {
				return nil, err
			}
			base = loaded
		}
		return task.Project(base, x.path)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			m, err := g.materialize(e)
			if err != nil {
				return nil, err
			}
			out[k] = m
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			m, err := g.materialize(e)
			if err != nil {
				return nil, err
			}
			out[i] = m
		}
		return out, nil
	}
	return v, nil
}

func depName(path []string) string {
	segs := make([]string, len(path))
	for i, s := range path {
		segs[i] = strings.ReplaceAll(s, "/", "_")
	}
	return strings.Join(segs, ".")
}

func distinctNodes(edges map[string]*Node) []*Node {
	seen := make(map[*Node]bool, len(edges))
	names := make([]string, 0, len(edges))
	for name := range edges {
		names = append(names, name)
	}
	sort.Strings(names)
	var out []*Node
	for _, name := range names {
		n := edges[name]
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// taskPointer identifies a task value for cycle detection. Tasks declared as
// pointer receivers (the common case) are tracked by address; value tasks
// cannot close a cycle and yield zero.
func taskPointer(t task.Task) uintptr {
	rv := reflect.ValueOf(t)
	if rv.Kind() == reflect.Ptr {
		return rv.Pointer()
	}
	return 0
}
