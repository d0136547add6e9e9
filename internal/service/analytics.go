package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"keyforge/internal/models"
	"keyforge/internal/store"
)

type Interval string

const (
	IntervalDaily   Interval = "daily"
	IntervalMonthly Interval = "monthly"
	IntervalYearly  Interval = "yearly"
)

func (i Interval) Valid() bool {
	switch i {
	case IntervalDaily, IntervalMonthly, IntervalYearly:
		return true
	}
	return false
}

// bucketFormat returns the to_char pattern for this granularity.
func (i Interval) bucketFormat() string {
	switch i {
	case IntervalMonthly:
		return "YYYY-MM"
	case IntervalYearly:
		return "YYYY"
	default:
		return "YYYY-MM-DD"
	}
}

const analyticsCacheTTL = time.Hour

// Analytics aggregates licence usage. Scope methods (Daily, ForClient, …)
// return copies, so a scoped value never leaks its scope into the instance it
// was derived from; the store and result cache are shared across copies.
// Results are memoized for an hour per distinct parameter set.
type Analytics struct {
	store    store.AnalyticsStore
	cache    *expirable.LRU[string, interface{}]
	interval Interval
	scope    store.AnalyticsScope
}

func NewAnalytics(st store.AnalyticsStore, cacheSize int) Analytics {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	return Analytics{
		store:    st,
		cache:    expirable.NewLRU[string, interface{}](cacheSize, nil, analyticsCacheTTL),
		interval: IntervalDaily,
	}
}

func (a Analytics) Daily() Analytics {
	a.interval = IntervalDaily
	return a
}

func (a Analytics) Monthly() Analytics {
	a.interval = IntervalMonthly
	return a
}

func (a Analytics) Yearly() Analytics {
	a.interval = IntervalYearly
	return a
}

func (a Analytics) Interval(interval Interval) Analytics {
	if interval.Valid() {
		a.interval = interval
	}
	return a
}

func (a Analytics) ForClient(id uuid.UUID) Analytics {
	a.scope.ClientID = &id
	return a
}

// ForReseller narrows every aggregation to licences of clients owned by the
// given reseller. Composes with ForClient.
func (a Analytics) ForReseller(id uuid.UUID) Analytics {
	a.scope.ResellerID = &id
	return a
}

// MintingStats counts licences created in the optional range, total and per
// stored status. A date-expired licence not yet swept still reports as
// active here.
func (a Analytics) MintingStats(ctx context.Context, start, end *time.Time) (*models.MintingStats, error) {
	key := fmt.Sprintf("minting_stats_%s_%s_%s", fmtOptTime(start), fmtOptTime(end), a.scopeKey())

	if cached, ok := a.cache.Get(key); ok {
		return cached.(*models.MintingStats), nil
	}

	stats, err := a.store.MintingStats(ctx, a.scope, start, end)
	if err != nil {
		return nil, err
	}
	a.cache.Add(key, stats)
	return stats, nil
}

// ExpirationForecast counts currently active licences expiring within the
// next N days.
func (a Analytics) ExpirationForecast(ctx context.Context, days int) (int, error) {
	key := fmt.Sprintf("expiration_forecast_%d_%s", days, a.scopeKey())

	if cached, ok := a.cache.Get(key); ok {
		return cached.(int), nil
	}

	count, err := a.store.ExpirationForecast(ctx, a.scope, time.Now().UTC(), days)
	if err != nil {
		return 0, err
	}
	a.cache.Add(key, count)
	return count, nil
}

func (a Analytics) ProductPopularity(ctx context.Context, start, end *time.Time) (map[uuid.UUID]int, error) {
	key := fmt.Sprintf("product_popularity_%s_%s_%s", fmtOptTime(start), fmtOptTime(end), a.scopeKey())

	if cached, ok := a.cache.Get(key); ok {
		return cached.(map[uuid.UUID]int), nil
	}

	popularity, err := a.store.ProductPopularity(ctx, a.scope, start, end)
	if err != nil {
		return nil, err
	}
	a.cache.Add(key, popularity)
	return popularity, nil
}

// MintingTrends buckets creation counts by the scoped interval, ascending.
func (a Analytics) MintingTrends(ctx context.Context, start, end time.Time) ([]models.TrendPoint, error) {
	key := fmt.Sprintf("minting_trends_%s_%s_%s_%s", fmtTime(start), fmtTime(end), a.interval, a.scopeKey())

	if cached, ok := a.cache.Get(key); ok {
		return cached.([]models.TrendPoint), nil
	}

	points, err := a.store.MintingTrends(ctx, a.scope, start, end, a.interval.bucketFormat())
	if err != nil {
		return nil, err
	}
	a.cache.Add(key, points)
	return points, nil
}

// ActivationTrends buckets activation counts by the scoped interval,
// ascending; never-activated licences are excluded.
func (a Analytics) ActivationTrends(ctx context.Context, start, end time.Time) ([]models.TrendPoint, error) {
	key := fmt.Sprintf("activation_trends_%s_%s_%s_%s", fmtTime(start), fmtTime(end), a.interval, a.scopeKey())

	if cached, ok := a.cache.Get(key); ok {
		return cached.([]models.TrendPoint), nil
	}

	points, err := a.store.ActivationTrends(ctx, a.scope, start, end, a.interval.bucketFormat())
	if err != nil {
		return nil, err
	}
	a.cache.Add(key, points)
	return points, nil
}

func (a Analytics) scopeKey() string {
	client := "all"
	if a.scope.ClientID != nil {
		client = a.scope.ClientID.String()
	}
	reseller := "all"
	if a.scope.ResellerID != nil {
		reseller = a.scope.ResellerID.String()
	}
	return client + "_" + reseller
}

func fmtOptTime(t *time.Time) string {
	if t == nil {
		return "all"
	}
	return fmtTime(*t)
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
