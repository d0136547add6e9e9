package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"keyforge/internal/models"
)

type LicenceStore interface {
	CreateLicence(ctx context.Context, licence *models.Licence) error
	GetLicence(ctx context.Context, id uuid.UUID) (*models.Licence, error)
	GetLicenceByKey(ctx context.Context, key string) (*models.Licence, error)
	GetLicenceByRefid(ctx context.Context, refid string) (*models.Licence, error)
	ListLicences(ctx context.Context, clientID *uuid.UUID, pagination models.PaginationParams) ([]models.Licence, int, error)
	ActivateLicence(ctx context.Context, id uuid.UUID, clientID uuid.UUID, activatedAt time.Time, expiresAt *time.Time) error
	RevokeLicence(ctx context.Context, id uuid.UUID) (bool, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	ListExpiring(ctx context.Context, now time.Time, days int) ([]models.Licence, error)
	SoftDeleteLicence(ctx context.Context, id uuid.UUID) (bool, error)
}

type PostgresLicenceStore struct {
	DB *pgxpool.Pool
}

func NewPostgresLicenceStore(db *pgxpool.Pool) *PostgresLicenceStore {
	return &PostgresLicenceStore{DB: db}
}

const licenceColumns = `id, refid, key, product_id, client_id, duration_days, status, metadata, activated_at, expires_at, created_at, updated_at`

func (s *PostgresLicenceStore) CreateLicence(ctx context.Context, licence *models.Licence) error {
	var metadata []byte
	if licence.Metadata != nil {
		var err error
		metadata, err = json.Marshal(licence.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO licences (
			id, refid, key, product_id, client_id, duration_days, status, metadata, activated_at, expires_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`
	_, err := s.DB.Exec(ctx, query,
		licence.ID,
		licence.Refid,
		licence.Key,
		licence.ProductID,
		licence.ClientID,
		licence.DurationDays,
		licence.Status,
		metadata,
		licence.ActivatedAt,
		licence.ExpiresAt,
		licence.CreatedAt,
		licence.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: licence", ErrDuplicate)
		}
		return fmt.Errorf("failed to create licence: %w", err)
	}

	return nil
}

func (s *PostgresLicenceStore) GetLicence(ctx context.Context, id uuid.UUID) (*models.Licence, error) {
	query := `SELECT ` + licenceColumns + ` FROM licences WHERE id = $1 AND deleted_at IS NULL`
	return s.queryOne(ctx, query, id)
}

func (s *PostgresLicenceStore) GetLicenceByKey(ctx context.Context, key string) (*models.Licence, error) {
	query := `SELECT ` + licenceColumns + ` FROM licences WHERE key = $1 AND deleted_at IS NULL`
	return s.queryOne(ctx, query, key)
}

func (s *PostgresLicenceStore) GetLicenceByRefid(ctx context.Context, refid string) (*models.Licence, error) {
	query := `SELECT ` + licenceColumns + ` FROM licences WHERE refid = $1 AND deleted_at IS NULL`
	return s.queryOne(ctx, query, refid)
}

func (s *PostgresLicenceStore) queryOne(ctx context.Context, query string, arg interface{}) (*models.Licence, error) {
	l, err := scanLicence(s.DB.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: licence", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get licence: %w", err)
	}
	return l, nil
}

func (s *PostgresLicenceStore) ListLicences(ctx context.Context, clientID *uuid.UUID, pagination models.PaginationParams) ([]models.Licence, int, error) {
	countQuery := `SELECT count(*) FROM licences WHERE deleted_at IS NULL`
	countArgs := []interface{}{}
	if clientID != nil {
		countQuery += ` AND client_id = $1`
		countArgs = append(countArgs, clientID)
	}

	var totalCount int
	if err := s.DB.QueryRow(ctx, countQuery, countArgs...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count of licences: %w", err)
	}

	query := `SELECT ` + licenceColumns + ` FROM licences WHERE deleted_at IS NULL`
	args := []interface{}{}
	if clientID != nil {
		query += ` AND client_id = $1`
		args = append(args, clientID)
	}
	query += ` ORDER BY created_at DESC`

	limit := pagination.Limit
	if limit <= 0 {
		limit = 10
	}
	page := pagination.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list licences: %w", err)
	}
	defer rows.Close()

	var licences []models.Licence
	for rows.Next() {
		l, err := scanLicence(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan licence: %w", err)
		}
		licences = append(licences, *l)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating licences: %w", err)
	}

	return licences, totalCount, nil
}

// ActivateLicence transitions a pending licence to active in a single
// compare-and-swap update. Concurrent activations against the same row are
// serialized here: only the write that still sees status = pending wins,
// every other one gets ErrConflict.
func (s *PostgresLicenceStore) ActivateLicence(ctx context.Context, id uuid.UUID, clientID uuid.UUID, activatedAt time.Time, expiresAt *time.Time) error {
	query := `
		UPDATE licences SET
			client_id = $1,
			status = $2,
			activated_at = $3,
			expires_at = $4,
			updated_at = $5
		WHERE id = $6 AND status = $7 AND deleted_at IS NULL
	`
	tag, err := s.DB.Exec(ctx, query,
		clientID,
		models.LicenceStatusActive,
		activatedAt,
		expiresAt,
		activatedAt,
		id,
		models.LicenceStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to activate licence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM licences WHERE id = $1 AND deleted_at IS NULL)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check licence existence: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: licence", ErrNotFound)
		}
		return fmt.Errorf("%w: licence is not pending", ErrConflict)
	}
	return nil
}

// RevokeLicence marks the licence revoked. Revoking an already-revoked
// licence is a no-op success. Returns false when the licence does not exist.
func (s *PostgresLicenceStore) RevokeLicence(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE licences SET status = $1, updated_at = $2
		WHERE id = $3 AND deleted_at IS NULL
	`
	tag, err := s.DB.Exec(ctx, query, models.LicenceStatusRevoked, time.Now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to revoke licence: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SweepExpired persists the expired status for active licences whose expiry
// date has passed. Revoked licences are never overwritten.
func (s *PostgresLicenceStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	query := `
		UPDATE licences SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at IS NOT NULL AND expires_at <= $2 AND deleted_at IS NULL
	`
	tag, err := s.DB.Exec(ctx, query, models.LicenceStatusExpired, now, models.LicenceStatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired licences: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresLicenceStore) ListExpiring(ctx context.Context, now time.Time, days int) ([]models.Licence, error) {
	query := `
		SELECT ` + licenceColumns + `
		FROM licences
		WHERE status = $1
		AND expires_at IS NOT NULL
		AND expires_at > $2
		AND expires_at <= $3
		AND deleted_at IS NULL
		ORDER BY expires_at ASC
	`
	rows, err := s.DB.Query(ctx, query, models.LicenceStatusActive, now, now.AddDate(0, 0, days))
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring licences: %w", err)
	}
	defer rows.Close()

	var licences []models.Licence
	for rows.Next() {
		l, err := scanLicence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan licence: %w", err)
		}
		licences = append(licences, *l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating licences: %w", err)
	}

	return licences, nil
}

func (s *PostgresLicenceStore) SoftDeleteLicence(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `UPDATE licences SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`
	tag, err := s.DB.Exec(ctx, query, time.Now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to soft-delete licence: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanLicence(row pgx.Row) (*models.Licence, error) {
	var l models.Licence
	var metadata []byte
	err := row.Scan(
		&l.ID,
		&l.Refid,
		&l.Key,
		&l.ProductID,
		&l.ClientID,
		&l.DurationDays,
		&l.Status,
		&metadata,
		&l.ActivatedAt,
		&l.ExpiresAt,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &l.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &l, nil
}
