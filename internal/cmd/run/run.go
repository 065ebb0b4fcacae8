package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/aggregate"
	cfgpkg "github.com/Shishir-S-H/Kaleidoscope-sub001/internal/config"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/consumer"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/insight"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/runtime"
	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/search"
	httpserver "github.com/Shishir-S-H/Kaleidoscope-sub001/internal/server/http"
	pebblestore "github.com/Shishir-S-H/Kaleidoscope-sub001/internal/storage/pebble"
	logpkg "github.com/Shishir-S-H/Kaleidoscope-sub001/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// small wrapper to allow testing; replaced by os.Getenv at build time
var getenv = func(key string) string { return os.Getenv(key) }

type Options struct {
	DataDir  string
	HTTPAddr string
	// ConsumerName identifies this instance within its consumer groups.
	// Defaults to the hostname.
	ConsumerName string
	Fsync        pebblestore.FsyncMode
	Config       cfgpkg.Config
}

// Run starts the aggregation and search-sync workers plus the ops HTTP
// server, and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	// Be robust to callers that don't pass a signal-aware context.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	if opts.ConsumerName == "" {
		host, err := os.Hostname()
		if err != nil {
			host = fmt.Sprintf("insight-%d", os.Getpid())
		}
		opts.ConsumerName = host
	}

	// Build process-wide logger; defaults: level=info, format=text
	logCfg := &logpkg.Config{
		Level:  getenvDefault("KLD_LOG_LEVEL", "info"),
		Format: getenvDefault("KLD_LOG_FORMAT", "text"),
	}
	procLogger, err := logpkg.ApplyConfig(logCfg)
	if err != nil {
		lvl := logpkg.InfoLevel
		if l, e := logpkg.ParseLevel(logCfg.Level); e == nil {
			lvl = l
		}
		procLogger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}

	// Redirect stdlib logs (e.g., Pebble) to our logger
	logpkg.RedirectStdLog(procLogger)

	storeDir := filepath.Join(opts.DataDir, "store")
	rt, err := runtime.Open(runtime.Options{
		DataDir: storeDir,
		Fsync:   opts.Fsync,
		Config:  opts.Config,
		Logger:  procLogger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.Config()
	procLogger.Info("starting insight workers",
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("consumer", opts.ConsumerName),
		logpkg.Str("dataDir", opts.DataDir),
		logpkg.Duration("aggWindow", cfg.Aggregation.Window()),
		logpkg.Duration("claimTimeout", cfg.Streams.ClaimTimeout()),
		logpkg.Str("level", logCfg.Level),
		logpkg.Str("format", logCfg.Format),
	)

	engine, err := aggregate.NewEngine(aggregate.Options{
		Store:        rt.Posts(),
		Streams:      rt.Streams(),
		Window:       cfg.Aggregation.Window(),
		PollInterval: cfg.Aggregation.PollInterval(),
		Logger:       procLogger,
		Metrics:      rt.Metrics(),
	})
	if err != nil {
		return err
	}
	defer engine.Close()
	if err := engine.Resume(); err != nil {
		return err
	}

	var indexer search.Indexer
	if cfg.Sync.IndexBaseURL != "" {
		indexer = search.NewHTTPIndexer(cfg.Sync.IndexBaseURL, cfg.Sync.RequestTimeout())
	} else {
		procLogger.Warn("no index endpoint configured, using in-memory indexer")
		indexer = search.NewMemoryIndexer()
	}
	syncWorker, err := search.NewWorker(search.WorkerOptions{
		Indexer:     indexer,
		MaxAttempts: cfg.Sync.MaxAttempts,
		RetryBase:   cfg.Sync.RetryBase(),
		Logger:      procLogger,
		Metrics:     rt.Metrics(),
	})
	if err != nil {
		return err
	}

	runners := []struct {
		stream  string
		group   string
		handler consumer.Handler
	}{
		{insight.StreamJobs, insight.GroupAggregator, consumer.HandlerFunc(engine.HandleJob)},
		{insight.StreamResults, insight.GroupAggregator, consumer.HandlerFunc(engine.HandleResult)},
		{insight.StreamFaces, insight.GroupAggregator, consumer.HandlerFunc(engine.HandleFace)},
		{insight.StreamSyncTasks, insight.GroupSearchSync, consumer.HandlerFunc(syncWorker.Handle)},
	}

	var wg sync.WaitGroup
	for _, rc := range runners {
		runner, err := consumer.NewRunner(consumer.Options{
			Stream:        rc.stream,
			Group:         rc.group,
			Consumer:      opts.ConsumerName,
			Streams:       rt.Streams(),
			Handler:       rc.handler,
			ClaimTimeout:  cfg.Streams.ClaimTimeout(),
			MaxDeliveries: cfg.Streams.MaxDeliveries,
			BlockTimeout:  cfg.Streams.BlockTimeout(),
			Logger:        procLogger,
			Metrics:       rt.Metrics(),
		})
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runner.Run(sctx); err != nil && sctx.Err() == nil {
				procLogger.Error("consumer stopped", logpkg.Err(err))
			}
		}()
	}

	// Janitor: trims expired stream entries and sweeps published
	// accumulators on a fixed cadence. Retention of zero disables a pass.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-sctx.Done():
				return
			case <-ticker.C:
			}
			if ret := cfg.Streams.Retention(); ret > 0 {
				n, err := rt.Streams().TrimAll(sctx, ret)
				if err != nil && sctx.Err() == nil {
					procLogger.Error("stream trim failed", logpkg.Err(err))
				} else if n > 0 {
					procLogger.Debug("trimmed stream entries", logpkg.Int("count", n))
				}
			}
			if ret := cfg.Aggregation.Retention(); ret > 0 {
				n, err := rt.Posts().Sweep(ret)
				if err != nil {
					procLogger.Error("accumulator sweep failed", logpkg.Err(err))
				} else if n > 0 {
					procLogger.Debug("swept published accumulators", logpkg.Int("count", n))
				}
			}
		}
	}()

	hsrv := httpserver.New(rt, engine)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, opts.HTTPAddr); err != nil && sctx.Err() == nil {
			procLogger.Error("http server stopped", logpkg.Err(err))
		}
	}()

	<-sctx.Done()
	// Shut the HTTP server and workers down before closing the runtime/DB
	// to avoid races.
	hsrv.Close()
	engine.Close()
	wg.Wait()

	// brief delay to allow logs flush
	time.Sleep(100 * time.Millisecond)
	return nil
}
