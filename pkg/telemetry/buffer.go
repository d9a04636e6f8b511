package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/picogrid/fleet-dispatch-sim/pkg/logger"
	"github.com/picogrid/fleet-dispatch-sim/pkg/metrics"
	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
	"github.com/picogrid/fleet-dispatch-sim/pkg/store"
)

// Flush failure targets, used as metric labels.
const (
	TargetSink        = "sink"
	TargetBroadcast   = "broadcast"
	TargetDroneRecord = "drone_record"
)

// BufferConfig tunes batching.
type BufferConfig struct {
	FlushInterval time.Duration
	// MaxBatchSize triggers an early flush once this many samples are queued
	MaxBatchSize int
	// Concurrency caps parallel writes per flush
	Concurrency int
	// MaxPending caps samples kept for retry; the oldest are dropped first
	MaxPending int
}

// DefaultBufferConfig returns the stock batching settings.
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		FlushInterval: time.Second,
		MaxBatchSize:  200,
		Concurrency:   10,
		MaxPending:    10000,
	}
}

// Targets are the collaborators a Buffer writes to. Nil targets are skipped.
type Targets struct {
	Sink        store.TelemetrySink
	Broadcaster store.RealtimeBroadcaster
	Drones      store.DroneRepository
	// Locks serializes drone record writes with other writers of the same record
	Locks *store.KeyedMutex
}

type publication struct {
	channel string
	payload any
}

// Stats reports buffer activity.
type Stats struct {
	SamplesWritten   int64
	SamplesFailed    int64
	SamplesDropped   int64
	Publications     int64
	PublishFailures  int64
	RecordsUpdated   int64
	RecordFailures   int64
	Flushes          int64
	LastFlush        time.Time
	LastError        error
	PendingSamples   int
	PendingPublishes int
}

// Buffer batches telemetry writes so that persistence and fan-out never run
// on the simulation tick. Failed sink and record writes are re-queued for the
// next flush; failed publications are dropped.
type Buffer struct {
	cfg     BufferConfig
	targets Targets
	log     logger.Logger
	metrics *metrics.Collector

	mu       sync.Mutex
	samples  []models.TelemetrySample
	pubs     []publication
	records  map[string]models.TelemetrySample
	stats    Stats
	flushing sync.Mutex

	kick     chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	started  bool
	wg       sync.WaitGroup
}

// NewBuffer creates a buffer. Zero config fields fall back to the defaults.
func NewBuffer(cfg BufferConfig, targets Targets, log logger.Logger, m *metrics.Collector) *Buffer {
	def := DefaultBufferConfig()
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = def.MaxPending
	}
	if targets.Locks == nil {
		targets.Locks = store.NewKeyedMutex()
	}
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Buffer{
		cfg:      cfg,
		targets:  targets,
		log:      log.WithPrefix("telemetry"),
		metrics:  m,
		records:  make(map[string]models.TelemetrySample),
		kick:     make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
}

// Start begins the automatic flush goroutine
func (b *Buffer) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ticker := time.NewTicker(b.cfg.FlushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopChan:
				return
			case <-ticker.C:
			case <-b.kick:
			}
			if err := b.Flush(ctx); err != nil {
				b.log.Errorf("Error flushing telemetry: %v", err)
			}
		}
	}()
}

// Stop halts the flush goroutine and performs a final flush with ctx.
func (b *Buffer) Stop(ctx context.Context) error {
	b.stopOnce.Do(func() { close(b.stopChan) })
	b.wg.Wait()
	return b.Flush(ctx)
}

// QueueSample queues a sample for the sink, its telemetry publication and
// the drone record update. Record updates coalesce to the newest sample.
func (b *Buffer) QueueSample(s models.TelemetrySample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, s)
	b.pubs = append(b.pubs, publication{channel: store.DroneTelemetryChannel(s.DroneID), payload: s})
	if prev, ok := b.records[s.DroneID]; !ok || !prev.RecordedAt.After(s.RecordedAt) {
		b.records[s.DroneID] = s
	}
	b.trimLocked()

	if len(b.samples) >= b.cfg.MaxBatchSize {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
}

// QueuePublish queues a fire-and-forget publication.
func (b *Buffer) QueuePublish(channel string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pubs = append(b.pubs, publication{channel: channel, payload: payload})
}

func (b *Buffer) trimLocked() {
	if over := len(b.samples) - b.cfg.MaxPending; over > 0 {
		b.samples = append([]models.TelemetrySample(nil), b.samples[over:]...)
		b.stats.SamplesDropped += int64(over)
		b.log.Warnf("Telemetry backlog full, dropped %d oldest samples", over)
	}
}

// Flush writes everything queued so far. It returns the first persistence
// error; publication failures are logged and counted but not returned.
func (b *Buffer) Flush(ctx context.Context) error {
	b.flushing.Lock()
	defer b.flushing.Unlock()

	b.mu.Lock()
	samples, pubs, records := b.samples, b.pubs, b.records
	b.samples, b.pubs = nil, nil
	b.records = make(map[string]models.TelemetrySample)
	b.mu.Unlock()

	if len(samples) == 0 && len(pubs) == 0 && len(records) == 0 {
		return nil
	}

	var counts struct {
		sync.Mutex
		written, failed, published, pubFailed, updated, recFailed int64
	}

	g := new(errgroup.Group)
	g.SetLimit(b.cfg.Concurrency)

	if b.targets.Sink != nil {
		for _, s := range samples {
			g.Go(func() error {
				if err := b.targets.Sink.Record(ctx, s); err != nil {
					b.metrics.FlushFailed(TargetSink)
					b.requeueSample(s)
					counts.Lock()
					counts.failed++
					counts.Unlock()
					return &models.PersistenceError{Op: "record telemetry", ID: s.DroneID, Err: err}
				}
				counts.Lock()
				counts.written++
				counts.Unlock()
				return nil
			})
		}
	}

	if b.targets.Broadcaster != nil {
		for _, p := range pubs {
			g.Go(func() error {
				if err := b.targets.Broadcaster.Publish(ctx, p.channel, p.payload); err != nil {
					b.metrics.FlushFailed(TargetBroadcast)
					b.log.WithField("channel", p.channel).Warnf("Publish failed: %v", err)
					counts.Lock()
					counts.pubFailed++
					counts.Unlock()
					return nil
				}
				counts.Lock()
				counts.published++
				counts.Unlock()
				return nil
			})
		}
	}

	if b.targets.Drones != nil {
		for _, s := range records {
			g.Go(func() error {
				if err := b.updateDroneRecord(ctx, s); err != nil {
					if errors.Is(err, models.ErrDroneNotFound) {
						return nil
					}
					b.metrics.FlushFailed(TargetDroneRecord)
					b.requeueRecord(s)
					counts.Lock()
					counts.recFailed++
					counts.Unlock()
					return &models.PersistenceError{Op: "update drone record", ID: s.DroneID, Err: err}
				}
				counts.Lock()
				counts.updated++
				counts.Unlock()
				return nil
			})
		}
	}

	err := g.Wait()

	b.mu.Lock()
	b.stats.SamplesWritten += counts.written
	b.stats.SamplesFailed += counts.failed
	b.stats.Publications += counts.published
	b.stats.PublishFailures += counts.pubFailed
	b.stats.RecordsUpdated += counts.updated
	b.stats.RecordFailures += counts.recFailed
	b.stats.Flushes++
	b.stats.LastFlush = time.Now()
	if err != nil {
		b.stats.LastError = err
	}
	b.mu.Unlock()

	if err != nil {
		return fmt.Errorf("flush telemetry (%d sink, %d record failures): %w", counts.failed, counts.recFailed, err)
	}
	b.log.Debugf("Flushed %d samples, %d publications, %d drone records", counts.written, counts.published, counts.updated)
	return nil
}

func (b *Buffer) updateDroneRecord(ctx context.Context, s models.TelemetrySample) error {
	unlock := b.targets.Locks.Lock(s.DroneID)
	defer unlock()

	d, err := b.targets.Drones.Get(ctx, s.DroneID)
	if err != nil {
		return err
	}
	if d.LastTelemetryAt.After(s.RecordedAt) {
		return nil
	}
	d.Location = s.Position
	d.BatteryLevel = s.Battery.Level
	d.LastTelemetryAt = s.RecordedAt
	return b.targets.Drones.Save(ctx, d)
}

func (b *Buffer) requeueSample(s models.TelemetrySample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = append(b.samples, s)
	b.trimLocked()
}

// requeueRecord keeps s for the next flush unless a newer sample is already queued.
func (b *Buffer) requeueRecord(s models.TelemetrySample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.records[s.DroneID]; ok && prev.RecordedAt.After(s.RecordedAt) {
		return
	}
	b.records[s.DroneID] = s
}

// Stats returns a snapshot of buffer activity.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.stats
	st.PendingSamples = len(b.samples)
	st.PendingPublishes = len(b.pubs)
	return st
}
