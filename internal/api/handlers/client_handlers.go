package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"keyforge/internal/models"
	"keyforge/internal/store"
)

type createClientRequest struct {
	Name    string  `json:"name" binding:"required"`
	Email   string  `json:"email"`
	OwnerID *string `json:"owner_id"`
}

// CreateClientHandler handles POST /admin/clients
func CreateClientHandler(clientStore store.ClientStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createClientRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		now := time.Now().UTC()
		client := &models.Client{
			ID:        uuid.New(),
			Name:      req.Name,
			Email:     req.Email,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if req.OwnerID != nil {
			ownerID, err := uuid.Parse(*req.OwnerID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid owner_id"})
				return
			}
			client.OwnerID = &ownerID
		}

		if err := clientStore.CreateClient(c.Request.Context(), client); err != nil {
			slog.Error("Failed to create client", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create client"})
			return
		}

		c.JSON(http.StatusCreated, client)
	}
}

// GetClientHandler handles GET /admin/clients/:id
func GetClientHandler(clientStore store.ClientStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid client id"})
			return
		}

		client, err := clientStore.GetClient(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
				return
			}
			slog.Error("Failed to get client", "error", err, "id", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get client"})
			return
		}

		c.JSON(http.StatusOK, client)
	}
}

// ListClientsHandler handles GET /admin/clients
func ListClientsHandler(clientStore store.ClientStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ownerID *uuid.UUID
		if idStr := c.Query("owner_id"); idStr != "" {
			id, err := uuid.Parse(idStr)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid owner_id"})
				return
			}
			ownerID = &id
		}

		pagination := ParsePaginationParams(c)

		clients, totalCount, err := clientStore.ListClients(c.Request.Context(), ownerID, pagination)
		if err != nil {
			slog.Error("Failed to list clients", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list clients"})
			return
		}

		if clients == nil {
			clients = []models.Client{}
		}

		totalPages := 0
		if pagination.Limit > 0 {
			totalPages = (totalCount + pagination.Limit - 1) / pagination.Limit
		}

		c.JSON(http.StatusOK, models.PaginatedList[models.Client]{
			Items:      clients,
			TotalCount: totalCount,
			Page:       pagination.Page,
			Limit:      pagination.Limit,
			TotalPages: totalPages,
		})
	}
}

// DeleteClientHandler handles DELETE /admin/clients/:id. Licences bound to
// the client keep existing with client_id cleared by the set-null constraint.
func DeleteClientHandler(clientStore store.ClientStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid client id"})
			return
		}

		if err := clientStore.DeleteClient(c.Request.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
				return
			}
			slog.Error("Failed to delete client", "error", err, "id", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete client"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Client deleted"})
	}
}
