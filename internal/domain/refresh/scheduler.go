// Package refresh keeps the embedding store consistent with the patient
// record source. A periodic full pass re-embeds every active record; change
// events from the bus trigger incremental updates between passes.
package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/clinico/clinico/internal/domain/embedding"
	"github.com/clinico/clinico/internal/domain/record"
	"github.com/clinico/clinico/internal/infra/eventbus"
	"github.com/clinico/clinico/internal/logger"
)

const (
	// DefaultInterval is how often the full refresh pass runs.
	DefaultInterval = 24 * time.Hour
	// DefaultEntityTimeout bounds the work spent on a single entity, so one
	// slow record cannot stall the whole pass.
	DefaultEntityTimeout = time.Minute
)

// ErrRunInProgress is returned when a run is requested while another run of
// the same scheduler is still active.
var ErrRunInProgress = errors.New("refresh run already in progress")

// State is the scheduler's run state. There is no failed state: partial
// failures are recorded per entity and the scheduler always returns to idle.
type State int32

const (
	StateIdle State = iota
	StateRunning
)

// RecordSource enumerates active entities and renders their embeddable text.
type RecordSource interface {
	ListActiveEntities(ctx context.Context) ([]string, error)
	GetEntityText(ctx context.Context, id string) (string, error)
}

// EmbeddingStore is the slice of the embedding store the scheduler drives.
type EmbeddingStore interface {
	Upsert(ctx context.Context, entityID, content string) (*embedding.Record, error)
	DeleteByEntity(ctx context.Context, entityID string) error
	DeleteAll(ctx context.Context) error
	ReconcileDuplicates(ctx context.Context) (int64, error)
}

// RunReport summarises one refresh pass.
type RunReport struct {
	Total     int
	Succeeded int
	Failed    int
}

// Scheduler re-embeds active records on a fixed interval and on change
// events. Stateless between runs; single-flight within one instance.
type Scheduler struct {
	source RecordSource
	store  EmbeddingStore
	bus    eventbus.EventBus // nil disables incremental updates

	interval      time.Duration
	entityTimeout time.Duration

	state atomic.Int32
}

// NewScheduler wires a record source and an embedding store. A nil bus is
// allowed; the scheduler then relies on the periodic pass alone. Non-positive
// durations fall back to the defaults.
func NewScheduler(source RecordSource, store EmbeddingStore, bus eventbus.EventBus, interval, entityTimeout time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if entityTimeout <= 0 {
		entityTimeout = DefaultEntityTimeout
	}
	return &Scheduler{
		source:        source,
		store:         store,
		bus:           bus,
		interval:      interval,
		entityTimeout: entityTimeout,
	}
}

// State reports whether a refresh pass is currently active.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// RunOnce executes one refresh pass: enumerate active entities and upsert an
// embedding for each. Per-entity failures are logged and counted, never
// abort the pass. With fullReset, all existing embeddings are deleted before
// repopulating. Returns ErrRunInProgress if a pass is already active.
func (s *Scheduler) RunOnce(ctx context.Context, fullReset bool) (*RunReport, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, ErrRunInProgress
	}
	defer s.state.Store(int32(StateIdle))

	started := time.Now()
	if fullReset {
		if err := s.store.DeleteAll(ctx); err != nil {
			return nil, err
		}
		logger.Log.Info("refresh: full reset, all embeddings deleted")
	}

	ids, err := s.source.ListActiveEntities(ctx)
	if err != nil {
		return nil, err
	}

	report := &RunReport{Total: len(ids)}
	for _, id := range ids {
		if err := s.refreshEntity(ctx, id); err != nil {
			report.Failed++
			logger.Log.WithField("entity_id", id).Errorf("refresh: entity failed: %v", err)
			continue
		}
		report.Succeeded++
	}

	// Safety net against duplicate drift; a no-op on a healthy store.
	if removed, err := s.store.ReconcileDuplicates(ctx); err != nil {
		logger.Log.Errorf("refresh: duplicate reconcile failed: %v", err)
	} else if removed > 0 {
		logger.Log.WithField("removed", removed).Warn("refresh: duplicate embeddings reconciled")
	}

	logger.Log.WithFields(map[string]any{
		"total":     report.Total,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
		"elapsed":   time.Since(started).Round(time.Millisecond).String(),
	}).Info("refresh: pass complete")
	return report, nil
}

// refreshEntity re-embeds a single entity under its own timeout.
func (s *Scheduler) refreshEntity(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.entityTimeout)
	defer cancel()

	text, err := s.source.GetEntityText(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.store.Upsert(ctx, id, text)
	return err
}

// Run drives the scheduler until ctx is cancelled: a full pass on every
// interval tick, plus incremental updates from record change events when a
// bus is wired. Launch with: go scheduler.Run(ctx)
func (s *Scheduler) Run(ctx context.Context) {
	var created, updated, archived <-chan eventbus.Event
	if s.bus != nil {
		created = s.bus.Subscribe(record.TopicRecordCreated)
		updated = s.bus.Subscribe(record.TopicRecordUpdated)
		archived = s.bus.Subscribe(record.TopicRecordArchived)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx, false); err != nil && !errors.Is(err, ErrRunInProgress) {
				logger.Log.Errorf("refresh: scheduled pass failed: %v", err)
			}
		case evt := <-created:
			s.handleChanged(ctx, evt)
		case evt := <-updated:
			s.handleChanged(ctx, evt)
		case evt := <-archived:
			s.handleArchived(ctx, evt)
		}
	}
}

// handleChanged re-embeds the changed entity immediately.
func (s *Scheduler) handleChanged(ctx context.Context, evt eventbus.Event) {
	changed, ok := evt.Payload.(record.ChangedEvent)
	if !ok {
		logger.Log.WithField("topic", evt.Topic).Warn("refresh: unexpected event payload")
		return
	}
	if err := s.refreshEntity(ctx, changed.EntityID); err != nil {
		logger.Log.WithField("entity_id", changed.EntityID).
			Errorf("refresh: incremental update failed: %v", err)
	}
}

// handleArchived drops the archived entity's embedding.
func (s *Scheduler) handleArchived(ctx context.Context, evt eventbus.Event) {
	changed, ok := evt.Payload.(record.ChangedEvent)
	if !ok {
		logger.Log.WithField("topic", evt.Topic).Warn("refresh: unexpected event payload")
		return
	}
	if err := s.store.DeleteByEntity(ctx, changed.EntityID); err != nil {
		logger.Log.WithField("entity_id", changed.EntityID).
			Errorf("refresh: archive cleanup failed: %v", err)
	}
}
