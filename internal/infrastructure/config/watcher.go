package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Tunables is the mutable subset of Config the watcher reloads without a
// restart: rate-limit, circuit-breaker, and backpressure knobs. Provider
// credentials and the listen port are deliberately excluded — changing
// those needs a process restart since they're baked into long-lived
// clients and listeners at startup.
type Tunables struct {
	RateLimit    RateLimitConfig
	Breaker      BreakerConfig
	Backpressure BackpressureConfig
}

// Watcher watches the optional CONFIG_FILE overlay and hot-reloads
// Tunables on change, via an fsnotify watch rather than a polling loop
// since CONFIG_FILE already goes through viper.
type Watcher struct {
	path   string
	mu     sync.RWMutex
	current Tunables
	logger *zap.Logger
	watch  *fsnotify.Watcher
	stopCh chan struct{}
}

// NewWatcher builds a Watcher seeded with initial. If path is empty, the
// watcher never fires and Tunables() always returns initial.
func NewWatcher(path string, initial Tunables, logger *zap.Logger) (*Watcher, error) {
	w := &Watcher{
		path:    path,
		current: initial,
		logger:  logger.With(zap.String("component", "config-watcher")),
		stopCh:  make(chan struct{}),
	}
	if path == "" {
		return w, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	w.watch = fw
	return w, nil
}

// Tunables returns the current mutable config (thread-safe).
func (w *Watcher) Tunables() Tunables {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start blocks, applying reloads as the watched file changes, until Stop is
// called. No-op if the watcher has no file to watch.
func (w *Watcher) Start() {
	if w.watch == nil {
		return
	}
	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watch.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			debounce.Reset(200 * time.Millisecond)
		case <-debounce.C:
			if err := w.reload(); err != nil {
				w.logger.Warn("config overlay reload failed", zap.Error(err))
			}
		case err, ok := <-w.watch.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() {
	close(w.stopCh)
	if w.watch != nil {
		w.watch.Close()
	}
}

func (w *Watcher) reload() error {
	v := viper.New()
	v.SetConfigFile(w.path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	w.mu.Lock()
	next := w.current
	if v.IsSet("rate_limit.rpm") {
		next.RateLimit.RequestsPerMinute = v.GetInt("rate_limit.rpm")
	}
	if v.IsSet("rate_limit.burst") {
		next.RateLimit.Burst = v.GetInt("rate_limit.burst")
	}
	if v.IsSet("breaker.failure_threshold") {
		next.Breaker.FailureThreshold = v.GetInt("breaker.failure_threshold")
	}
	if v.IsSet("breaker.recovery_timeout") {
		next.Breaker.RecoveryTimeout = v.GetDuration("breaker.recovery_timeout")
	}
	if v.IsSet("backpressure.memory_threshold_mb") {
		next.Backpressure.MemoryThresholdMB = v.GetInt("backpressure.memory_threshold_mb")
	}
	if v.IsSet("backpressure.soft_limit_percent") {
		next.Backpressure.SoftLimitPercent = v.GetFloat64("backpressure.soft_limit_percent")
	}
	if v.IsSet("backpressure.max_concurrent_requests") {
		next.Backpressure.MaxConcurrent = v.GetInt("backpressure.max_concurrent_requests")
	}
	w.current = next
	w.mu.Unlock()

	w.logger.Info("config overlay reloaded", zap.String("path", w.path))
	return nil
}
