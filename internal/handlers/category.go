package handlers

import (
	"context"
	"log"

	"github.com/cyrus-trixie/djmoviestore/internal/models"
	"github.com/gofiber/fiber/v2"
)

// ReferenceReader lists the category and DJ reference tables
type ReferenceReader interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	ListDJs(ctx context.Context) ([]models.DJ, error)
}

// ReferenceHandler serves categories and DJs
type ReferenceHandler struct {
	catalog ReferenceReader
}

// NewReferenceHandler creates a new reference data handler
func NewReferenceHandler(catalog ReferenceReader) *ReferenceHandler {
	return &ReferenceHandler{catalog: catalog}
}

// Categories handles GET /api/categories
func (h *ReferenceHandler) Categories(c *fiber.Ctx) error {
	categories, err := h.catalog.ListCategories(c.UserContext())
	if err != nil {
		log.Printf("❌ [CATALOG] Failed to list categories: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to fetch categories",
		})
	}
	return c.JSON(fiber.Map{"success": true, "data": categories})
}

// DJs handles GET /api/djs
func (h *ReferenceHandler) DJs(c *fiber.Ctx) error {
	djs, err := h.catalog.ListDJs(c.UserContext())
	if err != nil {
		log.Printf("❌ [CATALOG] Failed to list DJs: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to fetch DJs",
		})
	}
	return c.JSON(fiber.Map{"success": true, "data": djs})
}
