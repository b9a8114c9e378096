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

// SQLiteQueueRepository backs the send queue with an embedded sqlite file for
// single-node deployments. The repository integration tests run against it
// in-memory.
type SQLiteQueueRepository struct {
	DB    *sql.DB
	Grace time.Duration
	Clock clockwork.Clock
}

func NewSQLiteQueueRepository(db *sql.DB, grace time.Duration) *SQLiteQueueRepository {
	return &SQLiteQueueRepository{DB: db, Grace: grace, Clock: clockwork.NewRealClock()}
}

func (r *SQLiteQueueRepository) Enqueue(ctx context.Context, in model.NewQueueEntry) (*model.QueueEntry, error) {
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

	query := `INSERT INTO queue_entries
        (id, publisher_id, campaign_id, recipient_email, recipient_name, subject, content,
         status, priority, scheduled_for, retry_count, last_error, metadata, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, '', ?, ?, ?)`
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

func (r *SQLiteQueueRepository) GetByID(ctx context.Context, publisherID, id string) (*model.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries WHERE publisher_id=? AND id=?`
	entry, err := scanEntry(r.DB.QueryRowContext(ctx, query, publisherID, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("queue entry", id)
	}
	return entry, err
}

func (r *SQLiteQueueRepository) List(ctx context.Context, publisherID string, status model.EntryStatus, limit int) ([]*model.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries WHERE publisher_id=?`
	args := []interface{}{publisherID}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *SQLiteQueueRepository) ListDue(ctx context.Context, publisherID string, now time.Time, limit int) ([]*model.QueueEntry, error) {
	query := `SELECT ` + entryColumns + `
        FROM queue_entries
        WHERE publisher_id=? AND status='pending' AND scheduled_for <= ?
        ORDER BY priority DESC, scheduled_for ASC, seq ASC
        LIMIT ?`
	rows, err := r.DB.QueryContext(ctx, query, publisherID, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list due entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *SQLiteQueueRepository) ListByCampaign(ctx context.Context, publisherID, campaignID string) ([]*model.QueueEntry, error) {
	query := `SELECT ` + entryColumns + `
        FROM queue_entries WHERE publisher_id=? AND campaign_id=? ORDER BY seq ASC`
	rows, err := r.DB.QueryContext(ctx, query, publisherID, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list campaign entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *SQLiteQueueRepository) ClaimSending(ctx context.Context, publisherID, id string, now time.Time) error {
	query := `UPDATE queue_entries
        SET status='sending', last_attempt=?, updated_at=?
        WHERE publisher_id=? AND id=? AND status='pending'`
	at := now.UTC()
	res, err := r.DB.ExecContext(ctx, query, at, at, publisherID, id)
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	return r.checkTransition(ctx, res, publisherID, id, "claim")
}

func (r *SQLiteQueueRepository) MarkSent(ctx context.Context, publisherID, id string, at time.Time) error {
	query := `UPDATE queue_entries
        SET status='sent', sent_at=?, last_error='', updated_at=?
        WHERE publisher_id=? AND id=? AND status='sending'`
	t := at.UTC()
	res, err := r.DB.ExecContext(ctx, query, t, t, publisherID, id)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return r.checkTransition(ctx, res, publisherID, id, "mark sent")
}

func (r *SQLiteQueueRepository) MarkFailed(ctx context.Context, publisherID, id, lastError string) error {
	now := r.Clock.Now().UTC()
	query := `UPDATE queue_entries
        SET status='failed', retry_count=retry_count+1, last_error=?, updated_at=?
        WHERE publisher_id=? AND id=? AND status='sending'`
	res, err := r.DB.ExecContext(ctx, query, lastError, now, publisherID, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return r.checkTransition(ctx, res, publisherID, id, "mark failed")
}

func (r *SQLiteQueueRepository) Requeue(ctx context.Context, publisherID, id, lastError string, nextAttempt time.Time) error {
	now := r.Clock.Now().UTC()
	query := `UPDATE queue_entries
        SET status='pending', retry_count=retry_count+1, last_error=?, scheduled_for=?, updated_at=?
        WHERE publisher_id=? AND id=? AND status='sending'`
	res, err := r.DB.ExecContext(ctx, query, lastError, nextAttempt.UTC(), now, publisherID, id)
	if err != nil {
		return fmt.Errorf("requeue: %w", err)
	}
	return r.checkTransition(ctx, res, publisherID, id, "requeue")
}

func (r *SQLiteQueueRepository) Cancel(ctx context.Context, publisherID, id string) (*model.QueueEntry, error) {
	now := r.Clock.Now().UTC()
	query := `UPDATE queue_entries
        SET status='cancelled', updated_at=?
        WHERE publisher_id=? AND id=? AND status='pending'`
	res, err := r.DB.ExecContext(ctx, query, now, publisherID, id)
	if err != nil {
		return nil, fmt.Errorf("cancel: %w", err)
	}
	if err := r.checkTransition(ctx, res, publisherID, id, "cancel"); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, publisherID, id)
}

func (r *SQLiteQueueRepository) CampaignStats(ctx context.Context, publisherID, campaignID string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM queue_entries
        WHERE publisher_id=? AND campaign_id=? GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, publisherID, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign stats: %w", err)
	}
	defer rows.Close()
	return collectStats(rows)
}

func (r *SQLiteQueueRepository) Publishers(ctx context.Context) ([]string, error) {
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

func (r *SQLiteQueueRepository) checkTransition(ctx context.Context, res sql.Result, publisherID, id, op string) error {
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

var _ QueueRepositoryInterface = (*SQLiteQueueRepository)(nil)
