package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/sharpsend/sendqueue/internal/model"
)

type PostgresRecipientRepository struct {
	DB *sql.DB
}

func NewPostgresRecipientRepository(db *sql.DB) *PostgresRecipientRepository {
	return &PostgresRecipientRepository{DB: db}
}

func (r *PostgresRecipientRepository) Create(ctx context.Context, rec *model.Recipient) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	attrs, err := marshalMetadata(rec.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	query := `INSERT INTO recipients (id, publisher_id, email, name, segment, attributes)
              VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.DB.ExecContext(ctx, query,
		rec.ID, rec.PublisherID, rec.Email, rec.Name, rec.Segment, attrs); err != nil {
		return fmt.Errorf("insert recipient: %w", err)
	}
	return nil
}

func (r *PostgresRecipientRepository) GetByIDs(ctx context.Context, publisherID string, ids []string) ([]model.Recipient, error) {
	if len(ids) == 0 {
		return []model.Recipient{}, nil
	}
	query := `SELECT id, publisher_id, email, name, segment, attributes
              FROM recipients WHERE publisher_id=$1 AND id = ANY($2)`
	rows, err := r.DB.QueryContext(ctx, query, publisherID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get recipients: %w", err)
	}
	defer rows.Close()
	return scanRecipients(rows)
}

func (r *PostgresRecipientRepository) ListByPublisher(ctx context.Context, publisherID string) ([]model.Recipient, error) {
	query := `SELECT id, publisher_id, email, name, segment, attributes
              FROM recipients WHERE publisher_id=$1 ORDER BY email ASC`
	rows, err := r.DB.QueryContext(ctx, query, publisherID)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()
	return scanRecipients(rows)
}

func scanRecipients(rows *sql.Rows) ([]model.Recipient, error) {
	recipients := []model.Recipient{}
	for rows.Next() {
		var rec model.Recipient
		var attrs string
		if err := rows.Scan(&rec.ID, &rec.PublisherID, &rec.Email, &rec.Name, &rec.Segment, &attrs); err != nil {
			return nil, err
		}
		m, err := unmarshalMetadata(attrs)
		if err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
		rec.Attributes = m
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

var _ RecipientRepositoryInterface = (*PostgresRecipientRepository)(nil)
