package graph

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/koheimiya/taskproc/pkg/events"
	"github.com/koheimiya/taskproc/pkg/log"
	"github.com/koheimiya/taskproc/pkg/metrics"
	"github.com/koheimiya/taskproc/pkg/runner"
	"github.com/koheimiya/taskproc/pkg/types"
)

// scheduler executes the needs_run nodes of a resolved graph with a bounded
// worker pool, honoring DAG order and per-channel concurrency caps. A node is
// dispatched only when every one of its channels has a free permit; permits
// are held for the duration of the run and released on completion, success or
// failure alike. Only the first failure is surfaced; in-flight work drains
// before the scheduler returns.
type scheduler struct {
	g      *Graph
	opts   *Options
	logger zerolog.Logger

	mu    sync.Mutex
	cond  *sync.Cond
	ready []*Node
	inUse map[string]int

	remaining    int
	firstFailure *FailedTask
	stats        *types.Stats
}

// execute runs the graph to completion and returns execution statistics
func (g *Graph) execute(ctx context.Context, opts *Options) (*types.Stats, error) {
	s := &scheduler{
		g:      g,
		opts:   opts,
		logger: log.WithComponent("scheduler"),
		inUse:  make(map[string]int),
		stats: &types.Stats{
			RunID:    g.RunID,
			Executed: make(map[string]int),
		},
	}
	s.cond = sync.NewCond(&s.mu)

	timer := metrics.NewTimer()
	metrics.GraphNodes.Observe(float64(len(g.Nodes)))
	s.publish(events.EventGraphStarted, nil, "")

	// Cached nodes are complete at resolve time; the rest seed the ready
	// queue as their upstreams allow.
	for _, n := range g.Nodes {
		if !n.NeedsRun {
			n.state = types.NodeStateCached
			s.stats.Cached++
			metrics.TasksCached.Inc()
			s.publish(events.EventTaskCached, n, "")
			continue
		}
		s.remaining++
		if n.pending == 0 {
			n.state = types.NodeStateReady
			s.ready = append(s.ready, n)
		} else {
			n.state = types.NodeStatePending
		}
	}

	var eg errgroup.Group
	for i := 0; i < s.opts.Workers; i++ {
		eg.Go(func() error {
			s.work(ctx)
			return nil
		})
	}
	_ = eg.Wait() // workers never return errors; failures are recorded on nodes

	s.stats.Duration = timer.Duration()
	timer.ObserveDuration(metrics.GraphDuration)

	if s.firstFailure != nil {
		s.publish(events.EventGraphFailed, nil, s.firstFailure.Error())
		s.logger.Error().
			Str("run_id", g.RunID).
			Str("task_class", s.firstFailure.Class).
			Err(s.firstFailure.Err).
			Msg("Graph execution failed")
		return s.stats, &FailedTaskError{First: s.firstFailure}
	}

	s.publish(events.EventGraphCompleted, nil, "")
	s.logger.Info().
		Str("run_id", g.RunID).
		Int("executed", s.stats.TotalExecuted()).
		Int("cached", s.stats.Cached).
		Dur("duration", s.stats.Duration).
		Msg("Graph execution completed")
	return s.stats, nil
}

// work is one worker's loop: claim a dispatchable node, run it, promote the
// newly-ready downstream, repeat until no work remains.
func (s *scheduler) work(ctx context.Context) {
	s.mu.Lock()
	for {
		// Stop dispatching once a fatal error is set; in-flight nodes in
		// other workers drain on their own.
		if s.remaining == 0 || s.firstFailure != nil {
			s.mu.Unlock()
			s.cond.Broadcast()
			return
		}
		n := s.pickLocked()
		if n == nil {
			s.cond.Wait()
			continue
		}
		n.state = types.NodeStateRunning
		s.acquireLocked(n)
		s.mu.Unlock()

		err := s.runNode(ctx, n)

		s.mu.Lock()
		s.completeLocked(n, err)
	}
}

// pickLocked removes and returns the first queued node whose channels all
// have free permits. Nodes skipped by a failure are discarded from the queue.
func (s *scheduler) pickLocked() *Node {
	for i := 0; i < len(s.ready); i++ {
		n := s.ready[i]
		if n.state != types.NodeStateReady {
			s.ready = append(s.ready[:i], s.ready[i+1:]...)
			i--
			continue
		}
		if s.channelsFreeLocked(n) {
			s.ready = append(s.ready[:i], s.ready[i+1:]...)
			return n
		}
	}
	return nil
}

func (s *scheduler) channelsFreeLocked(n *Node) bool {
	for _, c := range n.Channels {
		if limit, ok := s.opts.RateLimits[c]; ok && s.inUse[c] >= limit {
			return false
		}
	}
	return true
}

func (s *scheduler) acquireLocked(n *Node) {
	for _, c := range n.Channels {
		s.inUse[c]++
	}
}

func (s *scheduler) releaseLocked(n *Node) {
	for _, c := range n.Channels {
		s.inUse[c]--
	}
}

// runNode executes one node body through the configured runner and persists
// the result.
func (s *scheduler) runNode(ctx context.Context, n *Node) error {
	s.publish(events.EventTaskStarted, n, "")
	s.logger.Debug().
		Str("task_class", n.Class).
		Int("instance_id", n.ID).
		Msg("Running task")

	timer := metrics.NewTimer()
	inputs, err := s.g.inputs(n)
	if err != nil {
		return err
	}
	data, err := s.opts.Runner.Run(&runner.Invocation{
		Ctx:      ctx,
		Task:     n.Task,
		Instance: n.Instance,
		Inputs:   inputs,
		Codec:    s.g.codec(n),
	})
	if err != nil {
		return err
	}
	if _, err := n.Instance.SaveResult(data); err != nil {
		return err
	}
	timer.ObserveDurationVec(metrics.TaskDuration, n.Class)
	return nil
}

// completeLocked finalizes a node: permits are released, stats recorded,
// downstream nodes promoted or skipped.
func (s *scheduler) completeLocked(n *Node, err error) {
	s.releaseLocked(n)
	s.remaining--

	if err != nil {
		failure := &FailedTask{Class: n.Class, Fingerprint: string(n.Key), Err: err}
		n.state = types.NodeStateFailed
		n.failure = failure
		if s.firstFailure == nil {
			s.firstFailure = failure
		}
		metrics.TasksFailed.WithLabelValues(n.Class).Inc()
		s.publish(events.EventTaskFailed, n, err.Error())
		s.logger.Error().
			Str("task_class", n.Class).
			Int("instance_id", n.ID).
			Err(err).
			Msg("Task failed")
		s.skipDownstreamLocked(n)
		s.cond.Broadcast()
		return
	}

	n.state = types.NodeStateSucceeded
	for _, c := range n.Channels {
		s.stats.Executed[c]++
		metrics.TasksExecuted.WithLabelValues(c).Inc()
	}
	s.publish(events.EventTaskCompleted, n, "")

	for _, d := range n.downstream {
		if d.state != types.NodeStatePending {
			continue
		}
		d.pending--
		if d.pending == 0 {
			d.state = types.NodeStateReady
			s.ready = append(s.ready, d)
		}
	}
	s.cond.Broadcast()
}

// skipDownstreamLocked marks every transitively-downstream node as skipped;
// skipped nodes are never dispatched.
func (s *scheduler) skipDownstreamLocked(n *Node) {
	for _, d := range n.downstream {
		switch d.state {
		case types.NodeStatePending, types.NodeStateReady:
			d.state = types.NodeStateSkipped
			d.failure = n.failure
			s.remaining--
			s.publish(events.EventTaskSkipped, d, "")
			s.skipDownstreamLocked(d)
		}
	}
}

func (s *scheduler) publish(t events.EventType, n *Node, msg string) {
	if s.opts.Broker == nil {
		return
	}
	ev := &events.Event{
		RunID:     s.g.RunID,
		Type:      t,
		Timestamp: time.Now(),
		Message:   msg,
	}
	if n != nil {
		ev.TaskClass = n.Class
		ev.InstanceID = n.ID
	}
	s.opts.Broker.Publish(ev)
}
