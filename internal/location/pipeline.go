// Package location implements the Location Ingest Pipeline (§4.2): it
// absorbs high-frequency driver position pings, updates the Geo Index
// synchronously, buffers pings for batched durable persistence, and fans
// each live ping out on the Update Bus. Grounded on
// other_examples/.../internal-geo-location_buffer.go.go's LocationBuffer
// (FlushInterval/MaxBufferSize config, single-flight drain, coalescing
// triggers), adapted from that source's per-driver-latest-only collapse to
// a full per-driver FIFO so persisted order and backpressure both satisfy
// §4.2 and §8 property 6 (order of pings persisted per driver is
// preserved), and extended to publish on the Update Bus, which the
// richxcame source does not do.
package location

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ridecore/internal/apperr"
	"ridecore/internal/bus"
	"ridecore/internal/domain"
	"ridecore/internal/geo"
)

// Ping is one driver position report.
type Ping struct {
	DriverID string
	Lat      float64
	Lng      float64
	Heading  *float64
	Speed    *float64
	Accuracy *float64
	At       time.Time
}

// Config tunes the buffer's flush policy, per §4.2 and §6's environment
// inputs LOCATION_BATCH_SIZE / LOCATION_BATCH_INTERVAL_MS.
type Config struct {
	BatchSize     int
	BatchInterval time.Duration
	HighWaterMark int
}

func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		BatchInterval: 10 * time.Second,
		HighWaterMark: 50_000,
	}
}

// DriverLookup answers whether a driver is currently eligible to have its
// position tracked in the Geo Index, and what ride (if any) it is actively
// serving — used to decide Geo Index updates and `ride:<id>` fan-out.
type DriverLookup interface {
	DriverStatus(ctx context.Context, driverID string) (status domain.DriverStatus, activeRideID string, tier string, rating float64, err error)
}

// PersistenceWriter is the narrow interface into the Persistence Store used
// by the drain task (§4.2's "driver_locations" batched insert).
type PersistenceWriter interface {
	BatchInsertLocations(ctx context.Context, pings []Ping) error
}

// Metrics is the narrow counter surface the pipeline reports through,
// satisfying §4.2's "dropped counts are exposed as a metric" without this
// package depending on a concrete metrics backend.
type Metrics interface {
	IncDropped(n int)
	IncFlushed(n int)
	IncFlushFailure()
}

type noopMetrics struct{}

func (noopMetrics) IncDropped(int)    {}
func (noopMetrics) IncFlushed(int)    {}
func (noopMetrics) IncFlushFailure()  {}

// Pipeline is the Location Ingest Pipeline.
type Pipeline struct {
	cfg     Config
	geoIdx  geo.Index
	persist PersistenceWriter
	bus     *bus.Bus
	lookup  DriverLookup
	metrics Metrics

	mu        sync.Mutex
	buffer    map[string][]Ping
	totalLen  int
	oldestAt  time.Time
	draining  bool
	drainAgn  bool // another trigger arrived while a drain was in flight

	stopCh chan struct{}
	doneCh chan struct{}
}

func New(cfg Config, geoIdx geo.Index, persist PersistenceWriter, b *bus.Bus, lookup DriverLookup, metrics Metrics) *Pipeline {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Pipeline{
		cfg:     cfg,
		geoIdx:  geoIdx,
		persist: persist,
		bus:     b,
		lookup:  lookup,
		metrics: metrics,
		buffer:  make(map[string][]Ping),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the periodic flush ticker. Call Stop to drain and exit.
func (p *Pipeline) Start() {
	go p.flushLoop()
}

func (p *Pipeline) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

// RecordPing implements §4.2's recordPing operation.
func (p *Pipeline) RecordPing(ctx context.Context, ping Ping) error {
	if ping.Lat < -90 || ping.Lat > 90 {
		return apperr.InvalidInputf("latitude out of range: %v", ping.Lat)
	}
	if ping.Lng < -180 || ping.Lng > 180 {
		return apperr.InvalidInputf("longitude out of range: %v", ping.Lng)
	}
	if ping.Speed != nil && *ping.Speed < 0 {
		return apperr.InvalidInputf("speed must be >= 0: %v", *ping.Speed)
	}
	if ping.At.IsZero() {
		ping.At = time.Now()
	}

	status, activeRideID, tier, rating, err := p.lookup.DriverStatus(ctx, ping.DriverID)
	if err != nil {
		return err
	}

	if status == domain.DriverAvailable || status == domain.DriverOnRide {
		if err := p.geoIdx.Add(ctx, ping.DriverID, ping.Lat, ping.Lng,
			geo.Meta{Tier: tier, Rating: rating}, ping.At.UnixNano()); err != nil {
			log.Error().Err(err).Str("driver_id", ping.DriverID).Msg("geo index update failed")
		}
	}

	p.enqueue(ping)

	if status == domain.DriverOnRide && activeRideID != "" {
		p.bus.Publish(bus.RideTopic(activeRideID), map[string]any{
			"driverLocation": map[string]float64{"lat": ping.Lat, "lng": ping.Lng},
		})
	}
	p.bus.Publish(bus.LocationTopic(ping.DriverID), ping)

	return nil
}

func (p *Pipeline) enqueue(ping Ping) {
	p.mu.Lock()
	if len(p.buffer) == 0 && p.totalLen == 0 {
		p.oldestAt = ping.At
	}
	p.buffer[ping.DriverID] = append(p.buffer[ping.DriverID], ping)
	p.totalLen++

	shouldFlush := p.totalLen >= p.cfg.BatchSize
	p.enforceHighWaterMark()
	p.mu.Unlock()

	if shouldFlush {
		p.triggerFlush()
	}
}

// enforceHighWaterMark drops the oldest ping for the fullest driver queues
// when the buffer exceeds its high-water mark, per §4.2's backpressure
// rule. Callers must hold p.mu.
func (p *Pipeline) enforceHighWaterMark() {
	for p.totalLen > p.cfg.HighWaterMark {
		var fullestDriver string
		fullestLen := 0
		for driverID, pings := range p.buffer {
			if len(pings) > fullestLen {
				fullestLen = len(pings)
				fullestDriver = driverID
			}
		}
		if fullestDriver == "" {
			return
		}
		p.buffer[fullestDriver] = p.buffer[fullestDriver][1:]
		p.totalLen--
		p.metrics.IncDropped(1)
		if len(p.buffer[fullestDriver]) == 0 {
			delete(p.buffer, fullestDriver)
		}
	}
}

func (p *Pipeline) triggerFlush() {
	p.mu.Lock()
	if p.draining {
		p.drainAgn = true
		p.mu.Unlock()
		return
	}
	p.draining = true
	p.mu.Unlock()

	go p.drain()
}

func (p *Pipeline) drain() {
	for {
		p.mu.Lock()
		batch := p.buffer
		p.buffer = make(map[string][]Ping)
		n := p.totalLen
		p.totalLen = 0
		p.mu.Unlock()

		if n > 0 {
			p.flushBatch(batch, n)
		}

		p.mu.Lock()
		if p.drainAgn {
			p.drainAgn = false
			p.mu.Unlock()
			continue
		}
		p.draining = false
		p.mu.Unlock()
		return
	}
}

func (p *Pipeline) flushBatch(batch map[string][]Ping, n int) {
	flat := make([]Ping, 0, n)
	for _, pings := range batch {
		flat = append(flat, pings...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.persist.BatchInsertLocations(ctx, flat); err != nil {
		log.Error().Err(err).Msg("location batch flush failed, retrying once")
		time.Sleep(200 * time.Millisecond)
		if err := p.persist.BatchInsertLocations(ctx, flat); err != nil {
			log.Error().Err(err).Int("count", n).Msg("location batch flush dropped after retry")
			p.metrics.IncFlushFailure()
			return
		}
	}
	p.metrics.IncFlushed(n)
}

func (p *Pipeline) flushLoop() {
	defer close(p.doneCh)
	ticker := time.NewTicker(p.cfg.BatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			p.triggerFlush()
			return
		case <-ticker.C:
			p.mu.Lock()
			due := p.totalLen > 0 && time.Since(p.oldestAt) >= p.cfg.BatchInterval
			p.mu.Unlock()
			if due {
				p.triggerFlush()
			}
		}
	}
}
