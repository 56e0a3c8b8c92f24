package graph

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/koheimiya/taskproc/pkg/codec"
	"github.com/koheimiya/taskproc/pkg/events"
	"github.com/koheimiya/taskproc/pkg/runner"
	"github.com/koheimiya/taskproc/pkg/types"
)

// Options configure one graph execution. The zero value is completed by
// defaults: a per-user cache root, one worker per CPU, the inline runner,
// and the gzip'd JSON codec at each class's compression level.
type Options struct {
	CacheRoot  string
	Workers    int
	RateLimits types.RateLimits
	Runner     runner.Runner
	Codec      codec.Codec
	Broker     *events.Broker
}

// Option mutates Options
type Option func(*Options)

// WithCacheRoot sets the cache root directory
func WithCacheRoot(path string) Option {
	return func(o *Options) { o.CacheRoot = path }
}

// WithWorkers sets the size of the worker pool
func WithWorkers(n int) Option {
	return func(o *Options) { o.Workers = n }
}

// WithRateLimits caps per-channel concurrency. Channels absent from the map
// are unbounded.
func WithRateLimits(limits types.RateLimits) Option {
	return func(o *Options) { o.RateLimits = limits }
}

// WithRunner replaces the default inline runner
func WithRunner(r runner.Runner) Option {
	return func(o *Options) { o.Runner = r }
}

// WithCodec forces a single result codec for every class, overriding the
// default gzip'd JSON at the class's compression level.
func WithCodec(c codec.Codec) Option {
	return func(o *Options) { o.Codec = c }
}

// WithBroker attaches an event broker; the scheduler publishes graph and
// task lifecycle events to it.
func WithBroker(b *events.Broker) Option {
	return func(o *Options) { o.Broker = b }
}

func buildOptions(opts []Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.CacheRoot == "" {
		o.CacheRoot = defaultCacheRoot()
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Runner == nil {
		o.Runner = runner.Inline{}
	}
	return o
}

func (o *Options) codecFor(n *Node) codec.Codec {
	if o.Codec != nil {
		return o.Codec
	}
	return codec.GzipJSON{Level: n.Task.CompressLevel()}
}

func defaultCacheRoot() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "taskproc")
	}
	return ".taskproc"
}
