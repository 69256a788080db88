package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"template-docgen/db"
	"template-docgen/internal/domain"
)

// PostgresStore holds business records and the template intake audit.
// records.fields is json rather than jsonb so column order survives.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: conn}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the tables when they are missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, db.InitSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, businessID string) (domain.Record, error) {
	var raw []byte
	row := s.db.QueryRowContext(ctx, `SELECT fields FROM records WHERE business_id = $1`, businessID)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Record{}, fmt.Errorf("record %q: %w", businessID, domain.ErrNotFound)
		}
		return domain.Record{}, err
	}
	return decodeRecord(businessID, raw)
}

func (s *PostgresStore) ListRecords(ctx context.Context, skip, limit int) (domain.RecordPage, error) {
	page := domain.RecordPage{Skip: skip, Limit: limit, Records: make([]domain.Record, 0)}

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`)
	if err := row.Scan(&page.Total); err != nil {
		return domain.RecordPage{}, fmt.Errorf("count records: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT business_id, fields
		FROM records
		ORDER BY seq ASC
		OFFSET $1 LIMIT $2
	`, skip, limit)
	if err != nil {
		return domain.RecordPage{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return domain.RecordPage{}, err
		}
		rec, err := decodeRecord(id, raw)
		if err != nil {
			return domain.RecordPage{}, err
		}
		page.Records = append(page.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return domain.RecordPage{}, err
	}
	return page, nil
}

// InsertRecords upserts records in one transaction. With replace set, every
// existing record is deleted first.
func (s *PostgresStore) InsertRecords(ctx context.Context, records []domain.Record, replace bool) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
			return 0, fmt.Errorf("clear records: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (business_id, fields)
		VALUES ($1, $2::json)
		ON CONFLICT (business_id) DO UPDATE SET
			fields = EXCLUDED.fields,
			imported_at = NOW()
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, rec := range records {
		payload, err := json.Marshal(rec.Fields)
		if err != nil {
			return 0, fmt.Errorf("encode record %q: %w", rec.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, string(payload)); err != nil {
			return 0, fmt.Errorf("insert record %q: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *PostgresStore) UpsertIntake(ctx context.Context, in domain.TemplateIntake) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO template_intake (template_id, status, name, field_count, detail)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (template_id) DO UPDATE SET
			status = EXCLUDED.status,
			name = EXCLUDED.name,
			field_count = EXCLUDED.field_count,
			detail = EXCLUDED.detail,
			updated_at = NOW()
	`, in.TemplateID, in.Status, in.Name, in.FieldCount, in.Detail)
	return err
}

func (s *PostgresStore) GetIntake(ctx context.Context, templateID string) (domain.TemplateIntake, error) {
	var in domain.TemplateIntake
	row := s.db.QueryRowContext(ctx, `
		SELECT template_id, status, name, field_count, detail
		FROM template_intake
		WHERE template_id = $1
	`, templateID)
	if err := row.Scan(&in.TemplateID, &in.Status, &in.Name, &in.FieldCount, &in.Detail); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TemplateIntake{}, fmt.Errorf("intake %q: %w", templateID, domain.ErrNotFound)
		}
		return domain.TemplateIntake{}, err
	}
	return in, nil
}

func decodeRecord(id string, raw []byte) (domain.Record, error) {
	var fields domain.FieldSet
	if err := json.Unmarshal(raw, &fields); err != nil {
		return domain.Record{}, fmt.Errorf("decode record %q: %w", id, err)
	}
	return domain.Record{ID: id, Fields: fields}, nil
}
