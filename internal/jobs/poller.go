// Package jobs runs the exporter's background collection cycle. The
// poller samples the device on an interval, publishes the results to
// Prometheus, and feeds the history store, the archive and the
// snapshot file.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/railmon/powerstats"
	"github.com/railmon/powerstats/internal/archive"
	"github.com/railmon/powerstats/internal/log"
	"github.com/railmon/powerstats/internal/metrics"
	"github.com/railmon/powerstats/internal/store"
	"github.com/railmon/powerstats/internal/telemetry"
)

// ErrAlreadyRunning is returned by PollNow when a cycle is in flight.
var ErrAlreadyRunning = errors.New("jobs: poll already running")

// pollTimeout bounds one full collection cycle.
const pollTimeout = 30 * time.Second

// Source produces one full telemetry snapshot. *powerstats.PowerStats
// implements it.
type Source interface {
	Snapshot(ctx context.Context) (*powerstats.Snapshot, error)
}

// Status describes the poller's last cycle.
type Status struct {
	LastRun   time.Time `json:"last_run"`
	Backend   string    `json:"backend,omitempty"`
	Meters    int       `json:"meters"`
	Consumers int       `json:"consumers"`
	Entities  int       `json:"entities"`
	Error     string    `json:"error,omitempty"`
}

// Options configures a Poller. History, Archive and SnapshotFile are
// optional; the zero value disables each sink.
type Options struct {
	Interval     time.Duration
	History      *store.History
	Archive      *archive.Archive
	SnapshotFile string
}

// Poller drives the periodic collection loop. All methods are safe for
// concurrent use.
type Poller struct {
	source       Source
	history      *store.History
	archive      *archive.Archive
	snapshotFile string

	busy       atomic.Bool
	intervalCh chan time.Duration
	logger     zerolog.Logger

	mu     sync.RWMutex
	latest *powerstats.Snapshot
	status Status
}

// NewPoller creates a poller. A non-positive interval falls back to
// 30 seconds.
func NewPoller(source Source, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	p := &Poller{
		source:       source,
		history:      opts.History,
		archive:      opts.Archive,
		snapshotFile: opts.SnapshotFile,
		intervalCh:   make(chan time.Duration, 1),
		logger:       log.WithComponent("jobs"),
	}
	p.intervalCh <- opts.Interval
	return p
}

// Run polls until ctx is canceled. The first cycle runs immediately.
func (p *Poller) Run(ctx context.Context) {
	interval := <-p.intervalCh
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info().
		Str("event", "poll.loop_started").
		Dur("interval", interval).
		Msg("poller started")

	p.tryPoll(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Str("event", "poll.loop_stopped").Msg("poller stopped")
			return
		case <-ticker.C:
			p.tryPoll(ctx, "interval")
		case d := <-p.intervalCh:
			ticker.Reset(d)
			p.logger.Info().
				Str("event", "poll.interval_changed").
				Dur("interval", d).
				Msg("poll interval updated")
		}
	}
}

// SetInterval applies a new poll interval to a running loop. The
// latest pending value wins.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case p.intervalCh <- d:
	default:
		select {
		case <-p.intervalCh:
		default:
		}
		p.intervalCh <- d
	}
}

// PollNow runs one cycle synchronously. It returns ErrAlreadyRunning
// without touching any state when a cycle is already in flight.
func (p *Poller) PollNow(ctx context.Context) (Status, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return Status{}, ErrAlreadyRunning
	}
	defer p.busy.Store(false)

	return p.runOnce(ctx, "manual")
}

// Latest returns the most recent snapshot. Callers must not modify it.
func (p *Poller) Latest() (*powerstats.Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.latest != nil
}

// Status returns a copy of the last cycle's status.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// LastPoll reports the completion time of the last successful cycle
// and the error text of the last failed one. It feeds the health
// freshness check.
func (p *Poller) LastPoll() (time.Time, string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status.LastRun, p.status.Error
}

func (p *Poller) tryPoll(ctx context.Context, trigger string) {
	if !p.busy.CompareAndSwap(false, true) {
		metrics.IncPollSkipped()
		p.logger.Warn().
			Str("event", "poll.skipped").
			Str("trigger", trigger).
			Msg("previous cycle still running, skipping tick")
		return
	}
	defer p.busy.Store(false)

	_, _ = p.runOnce(ctx, trigger)
}

// runOnce performs one collection cycle. The caller holds the busy
// flag.
func (p *Poller) runOnce(ctx context.Context, trigger string) (Status, error) {
	metrics.IncPollCycle()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	ctx = log.ContextWithJobID(ctx, uuid.NewString())
	logger := log.WithContext(ctx, p.logger)

	ctx, span := telemetry.Tracer("powerstats/jobs").Start(ctx, "poll")
	defer span.End()
	span.SetAttributes(telemetry.PollTrigger(trigger))

	logger.Debug().
		Str("event", "poll.start").
		Str("trigger", trigger).
		Msg("starting poll cycle")

	snap, err := p.source.Snapshot(ctx)
	if err != nil {
		metrics.IncPollFailure("read")
		span.SetAttributes(telemetry.ErrorAttributes("read")...)
		st := p.recordFailure(err)
		logger.Error().
			Err(err).
			Str("event", "poll.failed").
			Str("stage", "read").
			Str("trigger", trigger).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("poll cycle failed")
		return st, fmt.Errorf("poll snapshot: %w", err)
	}

	p.publish(snap)
	p.persist(ctx, logger, snap)

	st := p.recordSuccess(snap)
	duration := time.Since(start)
	metrics.ObservePollDuration(duration)
	metrics.RecordPollSuccess(snap.TakenAt)

	span.SetAttributes(telemetry.PollAttributes(st.Backend, st.Meters, st.Consumers, st.Entities)...)

	logger.Info().
		Str("event", "poll.success").
		Str("backend", st.Backend).
		Str("trigger", trigger).
		Int("meters", st.Meters).
		Int("consumers", st.Consumers).
		Int("entities", st.Entities).
		Int64("duration_ms", duration.Milliseconds()).
		Msg("poll cycle completed")

	return st, nil
}

// publish pushes the snapshot into the Prometheus gauges.
func (p *Poller) publish(snap *powerstats.Snapshot) {
	metrics.ResetReadings()
	metrics.RecordBackend(string(snap.Backend))
	metrics.RecordMonitorCounts(len(snap.Meters), len(snap.Consumers), len(snap.Entities))

	for _, m := range snap.Meters {
		metrics.RecordMeterEnergy(m.Meter.Name, m.Meter.Subsystem, m.Reading.EnergyUWs)
	}
	for _, c := range snap.Consumers {
		metrics.RecordConsumerEnergy(c.Consumer.Name, c.Consumer.Type.String(), c.Reading.EnergyUWs)
		for _, a := range c.Reading.Attribution {
			metrics.RecordAttributedEnergy(c.Consumer.Name, fmt.Sprintf("%d", a.UID), a.EnergyUWs)
		}
	}
	for _, e := range snap.Entities {
		states := make(map[int32]string, len(e.Entity.States))
		for _, s := range e.Entity.States {
			states[s.ID] = s.Name
		}
		for _, r := range e.Residency {
			name, ok := states[r.StateID]
			if !ok {
				name = fmt.Sprintf("state-%d", r.StateID)
			}
			metrics.RecordStateResidency(e.Entity.Name, name, r.TotalTime.Milliseconds(), r.TotalEntryCount)
		}
	}
}

// persist feeds the optional sinks. Sink failures are logged and
// counted but do not fail the cycle: the in-memory snapshot is already
// good and the next tick retries.
func (p *Poller) persist(ctx context.Context, logger zerolog.Logger, snap *powerstats.Snapshot) {
	if p.history != nil {
		if err := p.history.Append(ctx, snap); err != nil {
			metrics.IncPollFailure("store")
			logger.Error().
				Err(err).
				Str("event", "poll.failed").
				Str("stage", "store").
				Msg("history append failed")
		}
	}

	if p.archive != nil {
		if err := p.archive.Insert(ctx, snap); err != nil {
			metrics.IncPollFailure("archive")
			logger.Error().
				Err(err).
				Str("event", "poll.failed").
				Str("stage", "archive").
				Msg("archive insert failed")
		}
	}

	if p.snapshotFile != "" {
		if err := writeSnapshotFile(ctx, p.snapshotFile, snap); err != nil {
			metrics.IncPollFailure("snapshot_file")
			logger.Error().
				Err(err).
				Str("event", "poll.failed").
				Str("stage", "snapshot_file").
				Str("path", p.snapshotFile).
				Msg("snapshot file write failed")
		}
	}
}

func (p *Poller) recordSuccess(snap *powerstats.Snapshot) Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = snap
	p.status = Status{
		LastRun:   snap.TakenAt,
		Backend:   string(snap.Backend),
		Meters:    len(snap.Meters),
		Consumers: len(snap.Consumers),
		Entities:  len(snap.Entities),
	}
	return p.status
}

func (p *Poller) recordFailure(err error) Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Error = err.Error()
	return p.status
}
