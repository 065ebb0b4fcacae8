package runtime

import (
	"context"
	"errors"

	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/aggregate"
	cfgpkg "github.com/Shishir-S-H/Kaleidoscope-sub001/internal/config"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/metrics"
	pebblestore "github.com/Shishir-S-H/Kaleidoscope-sub001/internal/storage/pebble"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/stream"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir string
	Fsync   pebblestore.FsyncMode
	Config  cfgpkg.Config
	Logger  log.Logger
}

// Runtime wires storage, config, streams and the accumulator store for a
// single-node instance.
type Runtime struct {
	db      *pebblestore.DB
	config  cfgpkg.Config
	streams *stream.Streams
	posts   *aggregate.Store
	metrics *metrics.Metrics
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	m := metrics.New()
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: opts.DataDir,
		Fsync:   opts.Fsync,
		Metrics: m.StorageHook(),
	})
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Runtime{
		db:      db,
		config:  opts.Config,
		streams: stream.New(db, logger.WithComponent("stream")),
		posts:   aggregate.NewStore(db),
		metrics: m,
	}, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	it.Close()
	return nil
}

// Streams returns the stream transport facade.
func (r *Runtime) Streams() *stream.Streams { return r.streams }

// Posts returns the post accumulator store.
func (r *Runtime) Posts() *aggregate.Store { return r.posts }

// Metrics returns the process metrics.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
