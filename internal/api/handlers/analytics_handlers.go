package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"keyforge/internal/service"
)

// scopedAnalytics applies client/reseller/interval query parameters as fluent
// scopes. The returned value is a scoped copy; the shared instance is never
// mutated.
func scopedAnalytics(c *gin.Context, analytics service.Analytics) (service.Analytics, bool) {
	if idStr := c.Query("client_id"); idStr != "" {
		id, err := uuid.Parse(idStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid client_id"})
			return analytics, false
		}
		analytics = analytics.ForClient(id)
	}

	if idStr := c.Query("reseller_id"); idStr != "" {
		id, err := uuid.Parse(idStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid reseller_id"})
			return analytics, false
		}
		analytics = analytics.ForReseller(id)
	}

	if intervalStr := c.Query("interval"); intervalStr != "" {
		interval := service.Interval(intervalStr)
		if !interval.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid interval, use daily, monthly or yearly"})
			return analytics, false
		}
		analytics = analytics.Interval(interval)
	}

	return analytics, true
}

// MintingStatsHandler handles GET /admin/analytics/minting
func MintingStatsHandler(analytics service.Analytics) gin.HandlerFunc {
	return func(c *gin.Context) {
		scoped, ok := scopedAnalytics(c, analytics)
		if !ok {
			return
		}

		start, ok := parseOptionalDate(c, "start")
		if !ok {
			return
		}
		end, ok := parseOptionalDate(c, "end")
		if !ok {
			return
		}

		stats, err := scoped.MintingStats(c.Request.Context(), start, end)
		if err != nil {
			slog.Error("Failed to compute minting stats", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute minting stats"})
			return
		}

		c.JSON(http.StatusOK, stats)
	}
}

// ExpirationForecastHandler handles GET /admin/analytics/forecast
func ExpirationForecastHandler(analytics service.Analytics) gin.HandlerFunc {
	return func(c *gin.Context) {
		scoped, ok := scopedAnalytics(c, analytics)
		if !ok {
			return
		}

		days := 30
		if daysStr := c.Query("days"); daysStr != "" {
			parsed, err := strconv.Atoi(daysStr)
			if err != nil || parsed < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid days"})
				return
			}
			days = parsed
		}

		count, err := scoped.ExpirationForecast(c.Request.Context(), days)
		if err != nil {
			slog.Error("Failed to compute expiration forecast", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute expiration forecast"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"days": days, "expiring": count})
	}
}

// ProductPopularityHandler handles GET /admin/analytics/popularity
func ProductPopularityHandler(analytics service.Analytics) gin.HandlerFunc {
	return func(c *gin.Context) {
		scoped, ok := scopedAnalytics(c, analytics)
		if !ok {
			return
		}

		start, ok := parseOptionalDate(c, "start")
		if !ok {
			return
		}
		end, ok := parseOptionalDate(c, "end")
		if !ok {
			return
		}

		popularity, err := scoped.ProductPopularity(c.Request.Context(), start, end)
		if err != nil {
			slog.Error("Failed to compute product popularity", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute product popularity"})
			return
		}

		c.JSON(http.StatusOK, popularity)
	}
}

// MintingTrendsHandler handles GET /admin/analytics/trends/minting
func MintingTrendsHandler(analytics service.Analytics) gin.HandlerFunc {
	return func(c *gin.Context) {
		scoped, start, end, ok := trendParams(c, analytics)
		if !ok {
			return
		}

		points, err := scoped.MintingTrends(c.Request.Context(), start, end)
		if err != nil {
			slog.Error("Failed to compute minting trends", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute minting trends"})
			return
		}

		c.JSON(http.StatusOK, points)
	}
}

// ActivationTrendsHandler handles GET /admin/analytics/trends/activation
func ActivationTrendsHandler(analytics service.Analytics) gin.HandlerFunc {
	return func(c *gin.Context) {
		scoped, start, end, ok := trendParams(c, analytics)
		if !ok {
			return
		}

		points, err := scoped.ActivationTrends(c.Request.Context(), start, end)
		if err != nil {
			slog.Error("Failed to compute activation trends", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute activation trends"})
			return
		}

		c.JSON(http.StatusOK, points)
	}
}

// trendParams parses the scope plus the mandatory start/end range of the
// trend endpoints.
func trendParams(c *gin.Context, analytics service.Analytics) (service.Analytics, time.Time, time.Time, bool) {
	scoped, ok := scopedAnalytics(c, analytics)
	if !ok {
		return scoped, time.Time{}, time.Time{}, false
	}

	startStr := c.Query("start")
	endStr := c.Query("end")
	if startStr == "" || endStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start and end are required"})
		return scoped, time.Time{}, time.Time{}, false
	}

	start, err := parseDate(startStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return scoped, time.Time{}, time.Time{}, false
	}
	end, err := parseDate(endStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return scoped, time.Time{}, time.Time{}, false
	}

	return scoped, start, end, true
}
