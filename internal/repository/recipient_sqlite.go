package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sharpsend/sendqueue/internal/model"
)

type SQLiteRecipientRepository struct {
	DB *sql.DB
}

func NewSQLiteRecipientRepository(db *sql.DB) *SQLiteRecipientRepository {
	return &SQLiteRecipientRepository{DB: db}
}

func (r *SQLiteRecipientRepository) Create(ctx context.Context, rec *model.Recipient) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	attrs, err := marshalMetadata(rec.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	query := `INSERT INTO recipients (id, publisher_id, email, name, segment, attributes)
              VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := r.DB.ExecContext(ctx, query,
		rec.ID, rec.PublisherID, rec.Email, rec.Name, rec.Segment, attrs); err != nil {
		return fmt.Errorf("insert recipient: %w", err)
	}
	return nil
}

func (r *SQLiteRecipientRepository) GetByIDs(ctx context.Context, publisherID string, ids []string) ([]model.Recipient, error) {
	if len(ids) == 0 {
		return []model.Recipient{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := `SELECT id, publisher_id, email, name, segment, attributes
              FROM recipients WHERE publisher_id=? AND id IN (` + placeholders + `)`
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, publisherID)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get recipients: %w", err)
	}
	defer rows.Close()
	return scanRecipients(rows)
}

func (r *SQLiteRecipientRepository) ListByPublisher(ctx context.Context, publisherID string) ([]model.Recipient, error) {
	query := `SELECT id, publisher_id, email, name, segment, attributes
              FROM recipients WHERE publisher_id=? ORDER BY email ASC`
	rows, err := r.DB.QueryContext(ctx, query, publisherID)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()
	return scanRecipients(rows)
}

var _ RecipientRepositoryInterface = (*SQLiteRecipientRepository)(nil)
