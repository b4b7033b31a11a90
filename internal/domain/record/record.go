// Package record owns the clinical record source-of-truth: the patient
// records the embedding pipeline derives its vectors from. The pipeline
// treats records as an opaque store reachable by key — enumerate active
// entities, fetch one entity's composed text — plus the minimal mutations
// needed to keep that store live (create, update, archive).
package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clinico/clinico/internal/infra/eventbus"
	"github.com/clinico/clinico/pkg/uuid"
)

// Change-event topics published on the bus after each mutation.
const (
	TopicRecordCreated  = "record.created"
	TopicRecordUpdated  = "record.updated"
	TopicRecordArchived = "record.archived"
)

// ChangeType labels a record mutation.
type ChangeType string

const (
	ChangeTypeCreated  ChangeType = "created"
	ChangeTypeUpdated  ChangeType = "updated"
	ChangeTypeArchived ChangeType = "archived"
)

// ChangedEvent is the payload published for every record mutation.
type ChangedEvent struct {
	EntityID   string
	ChangeType ChangeType
	OccurredAt time.Time
}

// TopicForChangeType resolves the event bus topic for a change type.
func TopicForChangeType(ct ChangeType) string {
	switch ct {
	case ChangeTypeCreated:
		return TopicRecordCreated
	case ChangeTypeArchived:
		return TopicRecordArchived
	default:
		return TopicRecordUpdated
	}
}

// ErrNotFound is returned when no record exists for an id.
var ErrNotFound = errors.New("record not found")

// Record statuses.
const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

// PatientRecord is one row of the source-of-truth record set.
type PatientRecord struct {
	ID          string
	FullName    string
	Summary     string
	Conditions  string
	Medications string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateInput carries the fields for a new record.
type CreateInput struct {
	FullName    string
	Summary     string
	Conditions  string
	Medications string
}

// Store provides record access backed by SQLite, publishing change events
// so the refresh pipeline can re-embed without polling.
type Store struct {
	db  *sql.DB
	bus eventbus.EventBus
}

// NewStore creates a Store. bus may be nil (no events published).
func NewStore(db *sql.DB, bus eventbus.EventBus) *Store {
	return &Store{db: db, bus: bus}
}

// Create inserts a new active record and publishes record.created.
func (s *Store) Create(ctx context.Context, in CreateInput) (*PatientRecord, error) {
	if strings.TrimSpace(in.FullName) == "" {
		return nil, fmt.Errorf("record: full name is required")
	}

	now := time.Now().UTC()
	rec := &PatientRecord{
		ID:          uuid.NewV7().String(),
		FullName:    in.FullName,
		Summary:     in.Summary,
		Conditions:  in.Conditions,
		Medications: in.Medications,
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patient_record (id, full_name, summary, conditions, medications, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.FullName, rec.Summary, rec.Conditions, rec.Medications, rec.Status,
		rec.CreatedAt.Format(time.RFC3339Nano), rec.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("record: insert: %w", err)
	}

	s.publish(rec.ID, ChangeTypeCreated)
	return rec, nil
}

// Update replaces the mutable fields of an existing record and publishes
// record.updated.
func (s *Store) Update(ctx context.Context, id string, in CreateInput) (*PatientRecord, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.FullName = in.FullName
	existing.Summary = in.Summary
	existing.Conditions = in.Conditions
	existing.Medications = in.Medications
	existing.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE patient_record
		SET full_name = ?, summary = ?, conditions = ?, medications = ?, updated_at = ?
		WHERE id = ?`,
		existing.FullName, existing.Summary, existing.Conditions, existing.Medications,
		existing.UpdatedAt.Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return nil, fmt.Errorf("record: update %s: %w", id, err)
	}

	s.publish(id, ChangeTypeUpdated)
	return existing, nil
}

// Archive marks a record inactive and publishes record.archived. Archived
// records drop out of ListActiveEntities and the refresh run.
func (s *Store) Archive(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE patient_record SET status = ?, updated_at = ? WHERE id = ?`,
		StatusArchived, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("record: archive %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.publish(id, ChangeTypeArchived)
	return nil
}

// Get fetches a record by id.
func (s *Store) Get(ctx context.Context, id string) (*PatientRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, full_name, summary, conditions, medications, status, created_at, updated_at
		FROM patient_record WHERE id = ?`, id)
	return scanRecord(row)
}

// ListActiveEntities returns the ids of every active record, the enumeration
// the refresh scheduler walks.
func (s *Store) ListActiveEntities(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM patient_record WHERE status = ? ORDER BY id`, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("record: list active: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("record: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetEntityText composes the text that represents a record for embedding.
// Field labels are part of the embedded content so retrieval can match on
// them ("medications", "conditions").
func (s *Store) GetEntityText(ctx context.Context, id string) (string, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(strings.Join([]string{
		"Patient: " + rec.FullName,
		"Summary: " + rec.Summary,
		"Conditions: " + rec.Conditions,
		"Medications: " + rec.Medications,
	}, "\n")), nil
}

func (s *Store) publish(id string, ct ChangeType) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(TopicForChangeType(ct), ChangedEvent{
		EntityID:   id,
		ChangeType: ct,
		OccurredAt: time.Now().UTC(),
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*PatientRecord, error) {
	var rec PatientRecord
	var createdAt, updatedAt string
	err := row.Scan(&rec.ID, &rec.FullName, &rec.Summary, &rec.Conditions,
		&rec.Medications, &rec.Status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("record: scan: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &rec, nil
}
