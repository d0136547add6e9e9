package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"keyforge/internal/models"
)

// AnalyticsScope narrows aggregations to a single client and/or to every
// client owned by a reseller. Both may apply at once.
type AnalyticsScope struct {
	ClientID   *uuid.UUID
	ResellerID *uuid.UUID
}

type AnalyticsStore interface {
	MintingStats(ctx context.Context, scope AnalyticsScope, start, end *time.Time) (*models.MintingStats, error)
	ExpirationForecast(ctx context.Context, scope AnalyticsScope, now time.Time, days int) (int, error)
	ProductPopularity(ctx context.Context, scope AnalyticsScope, start, end *time.Time) (map[uuid.UUID]int, error)
	MintingTrends(ctx context.Context, scope AnalyticsScope, start, end time.Time, bucketFormat string) ([]models.TrendPoint, error)
	ActivationTrends(ctx context.Context, scope AnalyticsScope, start, end time.Time, bucketFormat string) ([]models.TrendPoint, error)
}

type PostgresAnalyticsStore struct {
	DB *pgxpool.Pool
}

func NewPostgresAnalyticsStore(db *pgxpool.Pool) *PostgresAnalyticsStore {
	return &PostgresAnalyticsStore{DB: db}
}

// scopedQuery assembles FROM/JOIN/WHERE fragments shared by every
// aggregation. The reseller scope needs a join against the client ownership
// relation; the client scope is a plain filter.
func scopedQuery(scope AnalyticsScope) (join string, where []string, args []interface{}) {
	where = []string{"l.deleted_at IS NULL"}

	if scope.ClientID != nil {
		where = append(where, fmt.Sprintf("l.client_id = $%d", len(args)+1))
		args = append(args, scope.ClientID)
	}

	if scope.ResellerID != nil {
		join = " JOIN clients c ON c.id = l.client_id"
		where = append(where, fmt.Sprintf("c.owner_id = $%d", len(args)+1))
		args = append(args, scope.ResellerID)
	}

	return join, where, args
}

func (s *PostgresAnalyticsStore) MintingStats(ctx context.Context, scope AnalyticsScope, start, end *time.Time) (*models.MintingStats, error) {
	join, where, args := scopedQuery(scope)

	if start != nil && end != nil {
		where = append(where, fmt.Sprintf("l.created_at BETWEEN $%d AND $%d", len(args)+1, len(args)+2))
		args = append(args, start, end)
	}

	query := `
		SELECT l.status, count(*)
		FROM licences l` + join + `
		WHERE ` + strings.Join(where, " AND ") + `
		GROUP BY l.status
	`

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query minting stats: %w", err)
	}
	defer rows.Close()

	stats := &models.MintingStats{ByStatus: map[models.LicenceStatus]int{}}
	for rows.Next() {
		var status models.LicenceStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return stats, nil
}

func (s *PostgresAnalyticsStore) ExpirationForecast(ctx context.Context, scope AnalyticsScope, now time.Time, days int) (int, error) {
	join, where, args := scopedQuery(scope)

	where = append(where, fmt.Sprintf("l.status = $%d", len(args)+1))
	args = append(args, models.LicenceStatusActive)
	where = append(where, fmt.Sprintf("l.expires_at BETWEEN $%d AND $%d", len(args)+1, len(args)+2))
	args = append(args, now, now.AddDate(0, 0, days))

	query := `
		SELECT count(*)
		FROM licences l` + join + `
		WHERE ` + strings.Join(where, " AND ")

	var count int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to query expiration forecast: %w", err)
	}
	return count, nil
}

func (s *PostgresAnalyticsStore) ProductPopularity(ctx context.Context, scope AnalyticsScope, start, end *time.Time) (map[uuid.UUID]int, error) {
	join, where, args := scopedQuery(scope)

	if start != nil && end != nil {
		where = append(where, fmt.Sprintf("l.created_at BETWEEN $%d AND $%d", len(args)+1, len(args)+2))
		args = append(args, start, end)
	}

	query := `
		SELECT l.product_id, count(*)
		FROM licences l` + join + `
		WHERE ` + strings.Join(where, " AND ") + `
		GROUP BY l.product_id
	`

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query product popularity: %w", err)
	}
	defer rows.Close()

	popularity := map[uuid.UUID]int{}
	for rows.Next() {
		var productID uuid.UUID
		var count int
		if err := rows.Scan(&productID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan product count: %w", err)
		}
		popularity[productID] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product counts: %w", err)
	}

	return popularity, nil
}

func (s *PostgresAnalyticsStore) MintingTrends(ctx context.Context, scope AnalyticsScope, start, end time.Time, bucketFormat string) ([]models.TrendPoint, error) {
	return s.trends(ctx, scope, "created_at", start, end, bucketFormat)
}

func (s *PostgresAnalyticsStore) ActivationTrends(ctx context.Context, scope AnalyticsScope, start, end time.Time, bucketFormat string) ([]models.TrendPoint, error) {
	return s.trends(ctx, scope, "activated_at", start, end, bucketFormat)
}

// trends groups rows into to_char buckets of the requested granularity,
// ascending. column is one of the two timestamp columns above, never caller
// input.
func (s *PostgresAnalyticsStore) trends(ctx context.Context, scope AnalyticsScope, column string, start, end time.Time, bucketFormat string) ([]models.TrendPoint, error) {
	join, where, args := scopedQuery(scope)

	where = append(where, fmt.Sprintf("l.%s IS NOT NULL", column))
	where = append(where, fmt.Sprintf("l.%s BETWEEN $%d AND $%d", column, len(args)+1, len(args)+2))
	args = append(args, start, end)

	bucket := fmt.Sprintf("to_char(l.%s, $%d)", column, len(args)+1)
	args = append(args, bucketFormat)

	query := `
		SELECT ` + bucket + ` AS bucket, count(*)
		FROM licences l` + join + `
		WHERE ` + strings.Join(where, " AND ") + `
		GROUP BY bucket
		ORDER BY bucket ASC
	`

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trends: %w", err)
	}
	defer rows.Close()

	var points []models.TrendPoint
	for rows.Next() {
		var p models.TrendPoint
		if err := rows.Scan(&p.Bucket, &p.Count); err != nil {
			return nil, fmt.Errorf("failed to scan trend point: %w", err)
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trend points: %w", err)
	}

	return points, nil
}
