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

type ProductStore interface {
	CreateProduct(ctx context.Context, product *models.Product) error
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context, pagination models.PaginationParams) ([]models.Product, int, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
}

type PostgresProductStore struct {
	DB *pgxpool.Pool
}

func NewPostgresProductStore(db *pgxpool.Pool) *PostgresProductStore {
	return &PostgresProductStore{DB: db}
}

func (s *PostgresProductStore) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.DB.Exec(ctx, query, product.ID, product.Name, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (s *PostgresProductStore) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	query := `SELECT id, name, created_at, updated_at FROM products WHERE id = $1`
	var p models.Product
	err := s.DB.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: product", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

func (s *PostgresProductStore) ListProducts(ctx context.Context, pagination models.PaginationParams) ([]models.Product, int, error) {
	var totalCount int
	if err := s.DB.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count of products: %w", err)
	}

	limit := pagination.Limit
	if limit <= 0 {
		limit = 10
	}
	page := pagination.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	query := `SELECT id, name, created_at, updated_at FROM products ORDER BY name ASC LIMIT $1 OFFSET $2`
	rows, err := s.DB.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	return products, totalCount, nil
}

func (s *PostgresProductStore) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	tag, err := s.DB.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product", ErrNotFound)
	}
	return nil
}
