package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"keyforge/internal/models"
)

type ClientStore interface {
	CreateClient(ctx context.Context, client *models.Client) error
	GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error)
	ListClients(ctx context.Context, ownerID *uuid.UUID, pagination models.PaginationParams) ([]models.Client, int, error)
	DeleteClient(ctx context.Context, id uuid.UUID) error
}

type PostgresClientStore struct {
	DB *pgxpool.Pool
}

func NewPostgresClientStore(db *pgxpool.Pool) *PostgresClientStore {
	return &PostgresClientStore{DB: db}
}

func (s *PostgresClientStore) CreateClient(ctx context.Context, client *models.Client) error {
	query := `
		INSERT INTO clients (id, owner_id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	var email *string
	if client.Email != "" {
		email = &client.Email
	}
	_, err := s.DB.Exec(ctx, query, client.ID, client.OwnerID, client.Name, email, client.CreatedAt, client.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

func (s *PostgresClientStore) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	query := `SELECT id, owner_id, name, COALESCE(email, ''), created_at, updated_at FROM clients WHERE id = $1`
	var c models.Client
	err := s.DB.QueryRow(ctx, query, id).Scan(&c.ID, &c.OwnerID, &c.Name, &c.Email, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: client", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &c, nil
}

func (s *PostgresClientStore) ListClients(ctx context.Context, ownerID *uuid.UUID, pagination models.PaginationParams) ([]models.Client, int, error) {
	countQuery := `SELECT count(*) FROM clients`
	countArgs := []interface{}{}
	if ownerID != nil {
		countQuery += ` WHERE owner_id = $1`
		countArgs = append(countArgs, ownerID)
	}

	var totalCount int
	if err := s.DB.QueryRow(ctx, countQuery, countArgs...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count of clients: %w", err)
	}

	query := `SELECT id, owner_id, name, COALESCE(email, ''), created_at, updated_at FROM clients`
	args := []interface{}{}
	if ownerID != nil {
		query += ` WHERE owner_id = $1`
		args = append(args, ownerID)
	}
	query += ` ORDER BY name ASC`

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
		return nil, 0, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []models.Client
	for rows.Next() {
		var c models.Client
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Email, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, c)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	return clients, totalCount, nil
}

func (s *PostgresClientStore) DeleteClient(ctx context.Context, id uuid.UUID) error {
	tag, err := s.DB.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: client", ErrNotFound)
	}
	return nil
}
