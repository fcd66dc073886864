package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/mobilize-sync/internal/actionnetwork"
	"github.com/Guizzs26/mobilize-sync/internal/broker"
	"github.com/Guizzs26/mobilize-sync/internal/models"
	"github.com/Guizzs26/mobilize-sync/pkg/metrics"

	"github.com/google/uuid"
)

// cleanupTimeout bounds the final log write after the run context was canceled
const cleanupTimeout = 30 * time.Second

// Warehouse defines the contract for pending contacts and the audit log
type Warehouse interface {
	FetchPending(ctx context.Context, limit int) ([]models.PendingContact, error)
	AppendSyncLog(ctx context.Context, entries []models.SyncLogEntry) error
}

// PeopleClient defines the contract for the external contact platform
type PeopleClient interface {
	UpsertPerson(ctx context.Context, req actionnetwork.PersonRequest) (*actionnetwork.Person, error)
}

// EventPublisher defines the contract for announcing each sync outcome
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event models.SyncEvent) error
}

type Options struct {
	BatchSize        int
	Tag              string
	IdentifierPrefix string
}

// Summary describes a finished run
type Summary struct {
	RunID   string
	Fetched int
	Synced  int
	Failed  int
	Entries []models.SyncLogEntry
}

// SyncRunner moves one batch of pending contacts into Action Network and logs every outcome
type SyncRunner struct {
	warehouse Warehouse
	people    PeopleClient
	events    EventPublisher
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

func NewSyncRunner(w Warehouse, p PeopleClient, opts Options, l *slog.Logger) *SyncRunner {
	return &SyncRunner{
		warehouse: w,
		people:    p,
		opts:      opts,
		logger:    l,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// WithPublisher enables per-record sync events
func (s *SyncRunner) WithPublisher(p EventPublisher) *SyncRunner {
	s.events = p
	return s
}

// FetchBatch reads at most limit pending contacts
func (s *SyncRunner) FetchBatch(ctx context.Context, limit int) ([]models.PendingContact, error) {
	return s.warehouse.FetchPending(ctx, limit)
}

// SyncOne upserts a single contact and converts the outcome into a log entry.
// It never fails: every error becomes an entry with Synced=false. RunID is left
// for the caller to stamp.
func (s *SyncRunner) SyncOne(ctx context.Context, c models.PendingContact) models.SyncLogEntry {
	entry := models.SyncLogEntry{
		MobilizeID: c.MobilizeID,
	}

	res := s.attempt(ctx, c)
	// Stored as UTC wall-clock on every dialect
	entry.Timestamp = s.now().UTC()

	switch r := res.(type) {
	case Success:
		id := r.ExternalID
		entry.ExternalID = &id
		entry.Synced = true
		metrics.ContactsProcessed.WithLabelValues("synced").Inc()
	case Failure:
		msg := models.TruncateError(r.Message)
		entry.Error = &msg
		metrics.ContactsProcessed.WithLabelValues("failed").Inc()
		s.logger.Info("Error for mobilize user", "mobilize_id", c.MobilizeID, "error", r.Message)
	}

	return entry
}

func (s *SyncRunner) attempt(ctx context.Context, c models.PendingContact) Result {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.UpsertDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}()

	person, err := s.people.UpsertPerson(ctx, actionnetwork.PersonRequest{
		EmailAddress: c.EmailAddress,
		GivenName:    c.GivenName,
		FamilyName:   c.FamilyName,
		MobileNumber: c.PhoneNumber,
		PostalCode:   c.PostalCode,
		Tags:         []string{s.opts.Tag},
	})
	if err != nil {
		return Failure{Message: err.Error()}
	}
	status = "success"

	id, err := person.ExternalID(s.opts.IdentifierPrefix)
	if err != nil {
		return Failure{Message: err.Error()}
	}

	return Success{ExternalID: id}
}

// Run processes one batch. An empty batch returns without writing anything.
// Only fetch and log write errors are returned; per-record failures live in the entries.
func (s *SyncRunner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: s.newID()}
	l := s.logger.With("run_id", summary.RunID)

	contacts, err := s.FetchBatch(ctx, s.opts.BatchSize)
	if err != nil {
		metrics.RunFailures.WithLabelValues("fetch").Inc()
		return summary, fmt.Errorf("fetch failure: %w", err)
	}

	summary.Fetched = len(contacts)
	metrics.BatchSize.Observe(float64(len(contacts)))
	l.Info("New mobilize users need to be synced to Action Network", "count", len(contacts))

	if len(contacts) == 0 {
		return summary, nil
	}

	defer func() {
		metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}()

	l.Info("Starting the sync now.")

	entries := make([]models.SyncLogEntry, 0, len(contacts))
	var runErr error
	for i, c := range contacts {
		if err := ctx.Err(); err != nil {
			l.Warn("Shutdown signal received. Skipping remaining contacts", "remaining", len(contacts)-i)
			runErr = err
			break
		}

		entry := s.SyncOne(ctx, c)
		entry.RunID = summary.RunID
		entries = append(entries, entry)

		if entry.Synced {
			summary.Synced++
		} else {
			summary.Failed++
		}

		s.publish(ctx, l, entry)
	}
	summary.Entries = entries
	// Cancellation during the last attempt leaves the loop without observing it
	if runErr == nil {
		runErr = ctx.Err()
	}

	l.Info("Sync finished",
		"synced", summary.Synced,
		"failed", summary.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if len(entries) == 0 {
		return summary, runErr
	}

	writeCtx := ctx
	if runErr != nil {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
	}

	if err := s.warehouse.AppendSyncLog(writeCtx, entries); err != nil {
		metrics.RunFailures.WithLabelValues("log_write").Inc()
		return summary, fmt.Errorf("log write failure: %w", err)
	}

	if runErr == nil {
		metrics.LastSuccessfulRun.SetToCurrentTime()
	}

	return summary, runErr
}

func (s *SyncRunner) publish(ctx context.Context, l *slog.Logger, entry models.SyncLogEntry) {
	if s.events == nil {
		return
	}

	event := models.SyncEvent{
		EventID:    s.newID(),
		RunID:      entry.RunID,
		MobilizeID: entry.MobilizeID,
		ExternalID: entry.ExternalID,
		Synced:     entry.Synced,
		Error:      entry.Error,
		Timestamp:  entry.Timestamp,
	}

	if err := s.events.Publish(ctx, broker.RoutingKeyFor(entry.Synced), event); err != nil {
		metrics.EventPublishFailures.Inc()
		l.Warn("Failed to publish sync event", "mobilize_id", entry.MobilizeID, "error", err)
	}
}
