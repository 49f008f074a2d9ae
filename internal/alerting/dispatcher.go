package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/raaihank/piiwatch/internal/logger"
	"go.uber.org/zap"
)

// Sink delivers alerts somewhere outside the process
type Sink interface {
	Name() string
	Deliver(ctx context.Context, alert *Alert) error
	Close(ctx context.Context) error
}

// DeliveryStats counts dispatcher outcomes
type DeliveryStats struct {
	Enqueued  uint64            `json:"enqueued"`
	Dropped   uint64            `json:"dropped"`
	Delivered map[string]uint64 `json:"delivered"`
	Failed    map[string]uint64 `json:"failed"`
}

// DispatcherConfig controls worker and queue sizing
type DispatcherConfig struct {
	QueueSize       int
	Workers         int
	DeliverTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Dispatcher queues alerts and delivers them to every sink in the background.
// Dispatch never blocks the monitor loop; a full queue drops the alert.
type Dispatcher struct {
	queue           chan *Alert
	sinks           []Sink
	logger          *logger.Logger
	deliverTimeout  time.Duration
	shutdownTimeout time.Duration

	mu      sync.RWMutex
	statsMu sync.Mutex
	stats   DeliveryStats
	closed  bool
	wg      sync.WaitGroup
}

// NewDispatcher starts the delivery workers
func NewDispatcher(cfg DispatcherConfig, sinks []Sink, log *logger.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = 15 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	d := &Dispatcher{
		queue:           make(chan *Alert, cfg.QueueSize),
		sinks:           sinks,
		logger:          log.WithComponent("alert-dispatcher"),
		deliverTimeout:  cfg.DeliverTimeout,
		shutdownTimeout: cfg.ShutdownTimeout,
		stats: DeliveryStats{
			Delivered: make(map[string]uint64, len(sinks)),
			Failed:    make(map[string]uint64, len(sinks)),
		},
	}

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	return d
}

// Dispatch enqueues an alert for delivery
func (d *Dispatcher) Dispatch(alert Alert) {
	if d == nil || len(d.sinks) == 0 {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.count(func(s *DeliveryStats) { s.Dropped++ })
		return
	}

	select {
	case d.queue <- &alert:
		d.count(func(s *DeliveryStats) { s.Enqueued++ })
	default:
		d.count(func(s *DeliveryStats) { s.Dropped++ })
		d.logger.Warn("Alert queue full, alert dropped", zap.String("alert_id", alert.ID))
	}
}

func (d *Dispatcher) count(fn func(*DeliveryStats)) {
	d.statsMu.Lock()
	fn(&d.stats)
	d.statsMu.Unlock()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for alert := range d.queue {
		d.deliver(alert)
	}
}

func (d *Dispatcher) deliver(alert *Alert) {
	for _, s := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.deliverTimeout)
		err := s.Deliver(ctx, alert)
		cancel()

		if err != nil {
			d.logger.Error("Alert delivery failed",
				zap.String("sink", s.Name()),
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
			d.count(func(st *DeliveryStats) { st.Failed[s.Name()]++ })
			continue
		}
		d.count(func(st *DeliveryStats) { st.Delivered[s.Name()]++ })
	}
}

// Stats returns a copy of the delivery counters
func (d *Dispatcher) Stats() DeliveryStats {
	if d == nil {
		return DeliveryStats{}
	}
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	out := DeliveryStats{
		Enqueued:  d.stats.Enqueued,
		Dropped:   d.stats.Dropped,
		Delivered: make(map[string]uint64, len(d.stats.Delivered)),
		Failed:    make(map[string]uint64, len(d.stats.Failed)),
	}
	for k, v := range d.stats.Delivered {
		out.Delivered[k] = v
	}
	for k, v := range d.stats.Failed {
		out.Failed[k] = v
	}
	return out
}

// Close stops accepting alerts, drains the queue and closes every sink
func (d *Dispatcher) Close(ctx context.Context) {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, d.shutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-waitCtx.Done():
		d.logger.Warn("Alert queue not drained before shutdown")
	}

	for _, s := range d.sinks {
		if err := s.Close(waitCtx); err != nil {
			d.logger.Error("Alert sink close failed", zap.String("sink", s.Name()), zap.Error(err))
		}
	}
}
