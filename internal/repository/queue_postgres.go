package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/sharpsend/sendqueue/internal/apperrors"
	"github.com/sharpsend/sendqueue/internal/model"
)

const entryColumns = `id, publisher_id, campaign_id, recipient_email, recipient_name,
       subject, content, status, priority, scheduled_for, last_attempt, sent_at,
       retry_count, last_error, metadata, created_at, updated_at`

// PostgresQueueRepository is the production send-queue store.
type PostgresQueueRepository struct {
	DB    *sql.DB
	Grace time.Duration
	Clock clockwork.Clock
}

func NewPostgresQueueRepository(db *sql.DB, grace time.Duration) *PostgresQueueRepository {
	return &PostgresQueueRepository{DB: db, Grace: grace, Clock: clockwork.NewRealClock()}
}

func (r *PostgresQueueRepository) Enqueue(ctx context.Context, in model.NewQueueEntry) (*model.QueueEntry, error) {
	now := r.Clock.Now().UTC()
	if err := validateNewEntry(&in, now, r.Grace); err != nil {
		return nil, err
	}

	meta, err := marshalMetadata(in.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	entry := &model.QueueEntry{
		ID:             uuid.NewString(),
		PublisherID:    in.PublisherID,
		CampaignID:     in.CampaignID,
		RecipientEmail: in.RecipientEmail,
		RecipientName:  in.RecipientName,
		Subject:        in.Subject,
		Content:        in.Content,
		Status:         model.StatusPending,
		Priority:       in.Priority,
		ScheduledFor:   in.ScheduledFor.UTC(),
		Metadata:       in.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	query := `
        INSERT INTO queue_entries
        (id, publisher_id, campaign_id, recipient_email, recipient_name, subject, content,
         status, priority, scheduled_for, retry_count, last_error, metadata, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, '', $11, $12, $13)
    `
	_, err = r.DB.ExecContext(ctx, query,
		entry.ID, entry.PublisherID, entry.CampaignID, entry.RecipientEmail, entry.RecipientName,
		entry.Subject, entry.Content, entry.Status, entry.Priority, entry.ScheduledFor,
		meta, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert queue entry: %w", err)
	}
	return entry, nil
}

func (r *PostgresQueueRepository) GetByID(ctx context.Context, publisherID, id string) (*model.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries WHERE publisher_id=$1 AND id=$2`
	entry, err := scanEntry(r.DB.QueryRowContext(ctx, query, publisherID, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("queue entry", id)
	}
	return entry, err
}

func (r *PostgresQueueRepository) List(ctx context.Context, publisherID string, status model.EntryStatus, limit int) ([]*model.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries WHERE publisher_id=$1`
	args := []interface{}{publisherID}
	if status != "" {
		query += ` AND status=$2`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, seq DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *PostgresQueueRepository) ListDue(ctx context.Context, publisherID string, now time.Time, limit int) ([]*model.QueueEntry, error) {
	query := `SELECT ` + entryColumns + `
        FROM queue_entries
        WHERE publisher_id=$1 AND status='pending' AND scheduled_for <= $2
        ORDER BY priority DESC, scheduled_for ASC, seq ASC
        LIMIT $3`
	rows, err := r.DB.QueryContext(ctx, query, publisherID, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list due entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *PostgresQueueRepository) ListByCampaign(ctx context.Context, publisherID, campaignID string) ([]*model.QueueEntry, error) {
	query := `SELECT ` + entryColumns + `
        FROM queue_entries WHERE publisher_id=$1 AND campaign_id=$2 ORDER BY seq ASC`
	rows, err := r.DB.QueryContext(ctx, query, publisherID, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list campaign entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *PostgresQueueRepository) ClaimSending(ctx context.Context, publisherID, id string, now time.Time) error {
	query := `UPDATE queue_entries
        SET status='sending', last_attempt=$1, updated_at=$1
        WHERE publisher_id=$2 AND id=$3 AND status='pending'`
	return r.transition(ctx, query, publisherID, id, "claim", now.UTC())
}

func (r *PostgresQueueRepository) MarkSent(ctx context.Context, publisherID, id string, at time.Time) error {
	query := `UPDATE queue_entries
        SET status='sent', sent_at=$1, last_error='', updated_at=$1
        WHERE publisher_id=$2 AND id=$3 AND status='sending'`
	return r.transition(ctx, query, publisherID, id, "mark sent", at.UTC())
}

func (r *PostgresQueueRepository) MarkFailed(ctx context.Context, publisherID, id, lastError string) error {
	now := r.Clock.Now().UTC()
	query := `UPDATE queue_entries
        SET status='failed', retry_count=retry_count+1, last_error=$1, updated_at=$2
        WHERE publisher_id=$3 AND id=$4 AND status='sending'`
	res, err := r.DB.ExecContext(ctx, query, lastError, now, publisherID, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return r.checkTransition(ctx, res, publisherID, id, "mark failed")
}

func (r *PostgresQueueRepository) Requeue(ctx context.Context, publisherID, id, lastError string, nextAttempt time.Time) error {
	now := r.Clock.Now().UTC()
	query := `UPDATE queue_entries
        SET status='pending', retry_count=retry_count+1, last_error=$1, scheduled_for=$2, updated_at=$3
        WHERE publisher_id=$4 AND id=$5 AND status='sending'`
	res, err := r.DB.ExecContext(ctx, query, lastError, nextAttempt.UTC(), now, publisherID, id)
	if err != nil {
		return fmt.Errorf("requeue: %w", err)
	}
	return r.checkTransition(ctx, res, publisherID, id, "requeue")
}

func (r *PostgresQueueRepository) Cancel(ctx context.Context, publisherID, id string) (*model.QueueEntry, error) {
	now := r.Clock.Now().UTC()
	query := `UPDATE queue_entries
        SET status='cancelled', updated_at=$1
        WHERE publisher_id=$2 AND id=$3 AND status='pending'`
	res, err := r.DB.ExecContext(ctx, query, now, publisherID, id)
	if err != nil {
		return nil, fmt.Errorf("cancel: %w", err)
	}
	if err := r.checkTransition(ctx, res, publisherID, id, "cancel"); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, publisherID, id)
}

func (r *PostgresQueueRepository) CampaignStats(ctx context.Context, publisherID, campaignID string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM queue_entries
        WHERE publisher_id=$1 AND campaign_id=$2 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, publisherID, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign stats: %w", err)
	}
	defer rows.Close()
	return collectStats(rows)
}

func (r *PostgresQueueRepository) Publishers(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT DISTINCT publisher_id FROM queue_entries WHERE status='pending'`)
	if err != nil {
		return nil, fmt.Errorf("list publishers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresQueueRepository) transition(ctx context.Context, query, publisherID, id, op string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, query, at, publisherID, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return r.checkTransition(ctx, res, publisherID, id, op)
}

// checkTransition distinguishes a lost status race from a missing entry when a
// conditional update touched no rows.
func (r *PostgresQueueRepository) checkTransition(ctx context.Context, res sql.Result, publisherID, id, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	entry, err := r.GetByID(ctx, publisherID, id)
	if err != nil {
		return err
	}
	return apperrors.NewConflict(id, string(entry.Status), op+" not allowed")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*model.QueueEntry, error) {
	var e model.QueueEntry
	var meta string
	err := row.Scan(
		&e.ID, &e.PublisherID, &e.CampaignID, &e.RecipientEmail, &e.RecipientName,
		&e.Subject, &e.Content, &e.Status, &e.Priority, &e.ScheduledFor,
		&e.LastAttempt, &e.SentAt, &e.RetryCount, &e.LastError, &meta,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if e.Metadata, err = unmarshalMetadata(meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &e, nil
}

func scanEntries(rows *sql.Rows) ([]*model.QueueEntry, error) {
	entries := []*model.QueueEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func collectStats(rows *sql.Rows) (map[string]int, error) {
	stats := map[string]int{
		"total": 0, "pending": 0, "sending": 0, "sent": 0, "failed": 0, "cancelled": 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		if _, ok := stats[status]; ok {
			stats[status] = count
		}
		stats["total"] += count
	}
	return stats, rows.Err()
}

var _ QueueRepositoryInterface = (*PostgresQueueRepository)(nil)
