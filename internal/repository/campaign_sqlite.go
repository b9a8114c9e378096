package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/sharpsend/sendqueue/internal/apperrors"
	"github.com/sharpsend/sendqueue/internal/model"
)

type SQLiteCampaignRepository struct {
	DB    *sql.DB
	Clock clockwork.Clock
}

func NewSQLiteCampaignRepository(db *sql.DB) *SQLiteCampaignRepository {
	return &SQLiteCampaignRepository{DB: db, Clock: clockwork.NewRealClock()}
}

func (r *SQLiteCampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if strings.TrimSpace(c.PublisherID) == "" {
		return apperrors.NewValidation("publisher_id", "must not be empty")
	}
	if strings.TrimSpace(c.Name) == "" {
		return apperrors.NewValidation("name", "must not be empty")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = "draft"
	}
	if c.Urgency == "" {
		c.Urgency = model.UrgencyNormal
	}
	c.CreatedAt = r.Clock.Now().UTC()

	query := `INSERT INTO campaigns (id, publisher_id, name, subject, base_template, urgency, status, scheduled_at, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.DB.ExecContext(ctx, query,
		c.ID, c.PublisherID, c.Name, c.Subject, c.BaseTemplate, c.Urgency, c.Status, c.ScheduledAt, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

func (r *SQLiteCampaignRepository) GetByID(ctx context.Context, publisherID, id string) (*model.Campaign, error) {
	query := `SELECT id, publisher_id, name, subject, base_template, urgency, status, scheduled_at, created_at, updated_at
              FROM campaigns WHERE publisher_id=? AND id=?`
	var c model.Campaign
	err := r.DB.QueryRowContext(ctx, query, publisherID, id).Scan(
		&c.ID, &c.PublisherID, &c.Name, &c.Subject, &c.BaseTemplate,
		&c.Urgency, &c.Status, &c.ScheduledAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFound("campaign", id)
		}
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return &c, nil
}

func (r *SQLiteCampaignRepository) List(ctx context.Context, publisherID string, offset, limit int, status string) ([]*model.Campaign, int, error) {
	query := `SELECT id, publisher_id, name, subject, base_template, urgency, status, scheduled_at, created_at, updated_at
              FROM campaigns WHERE publisher_id=?`
	args := []interface{}{publisherID}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c := &model.Campaign{}
		if err := rows.Scan(&c.ID, &c.PublisherID, &c.Name, &c.Subject, &c.BaseTemplate,
			&c.Urgency, &c.Status, &c.ScheduledAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE publisher_id=?`
	countArgs := []interface{}{publisherID}
	if status != "" {
		countQuery += ` AND status=?`
		countArgs = append(countArgs, status)
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *SQLiteCampaignRepository) UpdateStatus(ctx context.Context, publisherID, id, status string) error {
	now := r.Clock.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		`UPDATE campaigns SET status=?, updated_at=? WHERE publisher_id=? AND id=?`,
		status, now, publisherID, id)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFound("campaign", id)
	}
	return nil
}

var _ CampaignRepositoryInterface = (*SQLiteCampaignRepository)(nil)
