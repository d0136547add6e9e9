package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"keyforge/internal/models"
	"keyforge/internal/service"
	"keyforge/internal/store"
)

type createLicenceRequest struct {
	ProductID    string                 `json:"product_id" binding:"required"`
	ClientID     *string                `json:"client_id"`
	DurationDays *int                   `json:"duration_days"`
	Key          string                 `json:"key"`
	Status       models.LicenceStatus   `json:"status"`
	Metadata     map[string]interface{} `json:"metadata"`
}

type activateLicenceRequest struct {
	ClientID string `json:"client_id" binding:"required"`
}

// CreateLicenceHandler handles POST /admin/licences
func CreateLicenceHandler(manager *service.LicenceManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createLicenceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		productID, err := uuid.Parse(req.ProductID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product_id"})
			return
		}

		params := service.CreateLicenceParams{
			ProductID:    productID,
			DurationDays: req.DurationDays,
			Key:          req.Key,
			Status:       req.Status,
			Metadata:     req.Metadata,
		}

		if req.ClientID != nil {
			clientID, err := uuid.Parse(*req.ClientID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid client_id"})
				return
			}
			params.ClientID = &clientID
		}

		licence, err := manager.Create(c.Request.Context(), params)
		if err != nil {
			writeServiceError(c, err)
			return
		}

		c.JSON(http.StatusCreated, licence)
	}
}

// ActivateLicenceHandler handles POST /admin/licences/:id/activate
func ActivateLicenceHandler(manager *service.LicenceManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		licenceID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid licence id"})
			return
		}

		var req activateLicenceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		clientID, err := uuid.Parse(req.ClientID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid client_id"})
			return
		}

		licence, err := manager.Activate(c.Request.Context(), licenceID, clientID)
		if err != nil {
			writeServiceError(c, err)
			return
		}

		c.JSON(http.StatusOK, licence)
	}
}

// VerifyLicenceHandler handles GET /verify. Missing, pending, revoked and
// date-expired keys all answer 404 so callers cannot probe licence state.
func VerifyLicenceHandler(manager *service.LicenceManager, responseSigningPrivateKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-License-Key")
		if key == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "X-License-Key header is required"})
			return
		}

		licence, err := manager.Verify(c.Request.Context(), key)
		if err != nil {
			slog.Error("Failed to verify licence", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify licence"})
			return
		}
		if licence == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "License not found"})
			return
		}

		response := gin.H{
			"valid":      true,
			"refid":      licence.Refid,
			"product_id": licence.ProductID,
			"expires_at": licence.ExpiresAt,
		}

		if responseSigningPrivateKey != "" {
			token, err := service.SignVerification(responseSigningPrivateKey, licence)
			if err != nil {
				slog.Error("Failed to sign verification response", "error", err, "refid", licence.Refid)
			} else {
				response["token"] = token
			}
		}

		c.JSON(http.StatusOK, response)
	}
}

// GetLicenceHandler handles GET /admin/licences/:id
func GetLicenceHandler(licenceStore store.LicenceStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid licence id"})
			return
		}

		licence, err := licenceStore.GetLicence(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "License not found"})
				return
			}
			slog.Error("Failed to get licence", "error", err, "id", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get licence"})
			return
		}

		c.JSON(http.StatusOK, licence)
	}
}

// GetLicenceByRefidHandler handles GET /admin/licences/refid/:refid
func GetLicenceByRefidHandler(manager *service.LicenceManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		licence, err := manager.FindByRefid(c.Request.Context(), c.Param("refid"))
		if err != nil {
			slog.Error("Failed to find licence by refid", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to find licence"})
			return
		}
		if licence == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "License not found"})
			return
		}

		c.JSON(http.StatusOK, licence)
	}
}

// ListLicencesHandler handles GET /admin/licences
func ListLicencesHandler(licenceStore store.LicenceStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var clientID *uuid.UUID
		if idStr := c.Query("client_id"); idStr != "" {
			id, err := uuid.Parse(idStr)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid client_id"})
				return
			}
			clientID = &id
		}

		pagination := ParsePaginationParams(c)

		licences, totalCount, err := licenceStore.ListLicences(c.Request.Context(), clientID, pagination)
		if err != nil {
			slog.Error("Failed to list licences", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list licences"})
			return
		}

		if licences == nil {
			licences = []models.Licence{}
		}

		totalPages := 0
		if pagination.Limit > 0 {
			totalPages = (totalCount + pagination.Limit - 1) / pagination.Limit
		}

		c.JSON(http.StatusOK, models.PaginatedList[models.Licence]{
			Items:      licences,
			TotalCount: totalCount,
			Page:       pagination.Page,
			Limit:      pagination.Limit,
			TotalPages: totalPages,
		})
	}
}

// RevokeLicenceHandler handles DELETE /admin/licences/:id
func RevokeLicenceHandler(manager *service.LicenceManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid licence id"})
			return
		}

		revoked, err := manager.Revoke(c.Request.Context(), id)
		if err != nil {
			slog.Error("Failed to revoke licence", "error", err, "id", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke licence"})
			return
		}
		if !revoked {
			c.JSON(http.StatusNotFound, gin.H{"error": "License not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "License revoked"})
	}
}

// DeleteLicenceHandler handles DELETE /admin/licences/:id/purge. Deletion is
// logical: the row is kept with deleted_at set.
func DeleteLicenceHandler(licenceStore store.LicenceStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid licence id"})
			return
		}

		deleted, err := licenceStore.SoftDeleteLicence(c.Request.Context(), id)
		if err != nil {
			slog.Error("Failed to delete licence", "error", err, "id", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete licence"})
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{"error": "License not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "License deleted"})
	}
}

// SweepExpiredHandler handles POST /admin/licences/sweep-expired
func SweepExpiredHandler(manager *service.LicenceManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := manager.SweepExpired(c.Request.Context())
		if err != nil {
			slog.Error("Failed to sweep expired licences", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sweep expired licences"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"expired": count})
	}
}

type notifyExpiringRequest struct {
	Days int `json:"days"`
}

// NotifyExpiringHandler handles POST /admin/licences/notify-expiring
func NotifyExpiringHandler(manager *service.LicenceManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := notifyExpiringRequest{Days: 30}
		if c.Request.Body != nil && c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		if req.Days < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be at least 1"})
			return
		}

		sent, err := manager.NotifyExpiring(c.Request.Context(), req.Days)
		if err != nil {
			slog.Error("Failed to notify expiring licences", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to notify expiring licences"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"notified": sent})
	}
}
