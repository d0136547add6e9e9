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

type createProductRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateProductHandler handles POST /admin/products
func CreateProductHandler(productStore store.ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		now := time.Now().UTC()
		product := &models.Product{
			ID:        uuid.New(),
			Name:      req.Name,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := productStore.CreateProduct(c.Request.Context(), product); err != nil {
			slog.Error("Failed to create product", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create product"})
			return
		}

		c.JSON(http.StatusCreated, product)
	}
}

// GetProductHandler handles GET /admin/products/:id
func GetProductHandler(productStore store.ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
			return
		}

		product, err := productStore.GetProduct(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
				return
			}
			slog.Error("Failed to get product", "error", err, "id", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get product"})
			return
		}

		c.JSON(http.StatusOK, product)
	}
}

// ListProductsHandler handles GET /admin/products
func ListProductsHandler(productStore store.ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		pagination := ParsePaginationParams(c)

		products, totalCount, err := productStore.ListProducts(c.Request.Context(), pagination)
		if err != nil {
			slog.Error("Failed to list products", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list products"})
			return
		}

		if products == nil {
			products = []models.Product{}
		}

		totalPages := 0
		if pagination.Limit > 0 {
			totalPages = (totalCount + pagination.Limit - 1) / pagination.Limit
		}

		c.JSON(http.StatusOK, models.PaginatedList[models.Product]{
			Items:      products,
			TotalCount: totalCount,
			Page:       pagination.Page,
			Limit:      pagination.Limit,
			TotalPages: totalPages,
		})
	}
}

// DeleteProductHandler handles DELETE /admin/products/:id. Licences of the
// product are removed by the cascade constraint.
func DeleteProductHandler(productStore store.ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
			return
		}

		if err := productStore.DeleteProduct(c.Request.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
				return
			}
			slog.Error("Failed to delete product", "error", err, "id", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete product"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
	}
}
