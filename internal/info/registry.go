package info

import (
	"context"
	"sync"
	"time"

	"github.com/benmeehan/gpio-agent/internal/utils"
	"github.com/rs/zerolog"
)

// Registry holds the diagnostics collectors and runs them concurrently on a
// shared worker pool.
type Registry struct {
	collectors map[string]Collector
	timeout    time.Duration
	workerPool *utils.WorkerPool
	logger     zerolog.Logger
	mu         sync.RWMutex
}

// NewRegistry creates an empty registry. A non-positive timeout disables the
// per-collection deadline.
func NewRegistry(timeout time.Duration, workers int, logger zerolog.Logger) *Registry {
	return &Registry{
		collectors: make(map[string]Collector),
		timeout:    timeout,
		workerPool: utils.NewWorkerPool(workers),
		logger:     logger,
	}
}

// NewDefaultRegistry registers the host collectors, keeping only the names in
// enabled unless it is empty.
func NewDefaultRegistry(enabled []string, timeout time.Duration, logger zerolog.Logger) *Registry {
	r := NewRegistry(timeout, 4, logger)

	allowed := utils.SliceToSet(enabled)
	for _, c := range []Collector{
		&MemoryCollector{},
		&CPUCollector{},
		&DiskCollector{Path: "/"},
		&HostCollector{},
		&NetworkCollector{},
		&ProcessCollector{},
		&RuntimeCollector{},
	} {
		if _, ok := allowed[c.Name()]; len(allowed) == 0 || ok {
			r.Register(c)
		}
	}
	return r
}

// Register adds a collector, replacing any with the same name.
func (r *Registry) Register(collector Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors[collector.Name()] = collector
}

// Names returns the registered collector names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return utils.SortedKeys(r.collectors)
}

// Collect runs every collector and returns their results keyed by name.
// Failing collectors are logged and left out.
func (r *Registry) Collect(ctx context.Context) map[string]any {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	r.mu.RLock()
	collectors := make([]Collector, 0, len(r.collectors))
	for _, c := range r.collectors {
		collectors = append(collectors, c)
	}
	r.mu.RUnlock()

	result := make(map[string]any, len(collectors))
	var resultMu sync.Mutex
	var wg sync.WaitGroup

	for _, collector := range collectors {
		wg.Add(1)
		err := r.workerPool.Submit(func() {
			defer wg.Done()
			value, err := collector.Collect(ctx)
			if err != nil {
				r.logger.Warn().Err(err).Str("collector", collector.Name()).Msg("Failed to collect diagnostics")
				return
			}
			resultMu.Lock()
			result[collector.Name()] = value
			resultMu.Unlock()
		})
		if err != nil {
			wg.Done()
			r.logger.Warn().Err(err).Str("collector", collector.Name()).Msg("Diagnostics collection skipped")
		}
	}

	wg.Wait()
	return result
}

// Close stops the worker pool. Collect must not be called afterwards.
func (r *Registry) Close() {
	r.workerPool.Shutdown()
}
