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

type PostgresCampaignRepository struct {
	DB    *sql.DB
	Clock clockwork.Clock
}

func NewPostgresCampaignRepository(db *sql.DB) *PostgresCampaignRepository {
	return &PostgresCampaignRepository{DB: db, Clock: clockwork.NewRealClock()}
}

func (r *PostgresCampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
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

	query := `
        INSERT INTO campaigns (id, publisher_id, name, subject, base_template, urgency, status, scheduled_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	_, err := r.DB.ExecContext(ctx, query,
		c.ID, c.PublisherID, c.Name, c.Subject, c.BaseTemplate, c.Urgency, c.Status, c.ScheduledAt, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

func (r *PostgresCampaignRepository) GetByID(ctx context.Context, publisherID, id string) (*model.Campaign, error) {
	query := `
        SELECT id, publisher_id, name, subject, base_template, urgency, status, scheduled_at, created_at, updated_at
        FROM campaigns WHERE publisher_id=$1 AND id=$2
    `
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

func (r *PostgresCampaignRepository) List(ctx context.Context, publisherID string, offset, limit int, status string) ([]*model.Campaign, int, error) {
	query := `
        SELECT id, publisher_id, name, subject, base_template, urgency, status, scheduled_at, created_at, updated_at
        FROM campaigns WHERE publisher_id=$1
    `
	args := []interface{}{publisherID}
	if status != "" {
		query += ` AND status=$2`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
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

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE publisher_id=$1`
	countArgs := []interface{}{publisherID}
	if status != "" {
		countQuery += ` AND status=$2`
		countArgs = append(countArgs, status)
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *PostgresCampaignRepository) UpdateStatus(ctx context.Context, publisherID, id, status string) error {
	now := r.Clock.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		`UPDATE campaigns SET status=$1, updated_at=$2 WHERE publisher_id=$3 AND id=$4`,
		status, now, publisherID, id)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFound("campaign", id)
	}
	return nil
}

var _ CampaignRepositoryInterface = (*PostgresCampaignRepository)(nil)
