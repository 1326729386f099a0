package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/cyrus-trixie/djmoviestore/internal/models"
	"github.com/cyrus-trixie/djmoviestore/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
)

const (
	defaultMovieLimit = 100
	maxMovieLimit     = 500
)

// MovieReader is the read side of the catalog
type MovieReader interface {
	ListMovies(ctx context.Context, filter models.MovieFilter) ([]models.Movie, error)
	GetMovie(ctx context.Context, id int64) (*models.Movie, error)
}

// MediaEnricher attaches playable URLs to catalog rows
type MediaEnricher interface {
	Enrich(ctx context.Context, movie models.Movie) models.MovieResponse
	EnrichAll(ctx context.Context, movies []models.Movie) []models.MovieResponse
}

// MovieHandler serves the public catalog
type MovieHandler struct {
	movies MovieReader
	media  MediaEnricher
}

// NewMovieHandler creates a new movie handler
func NewMovieHandler(movies MovieReader, media MediaEnricher) *MovieHandler {
	return &MovieHandler{movies: movies, media: media}
}

// List returns movies newest first
// GET /api/movies?search=&category_id=&dj_id=&limit=&offset=
func (h *MovieHandler) List(c *fiber.Ctx) error {
	filter, err := parseMovieFilter(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	movies, err := h.movies.ListMovies(c.UserContext(), filter)
	if err != nil {
		log.Printf("❌ [MOVIES] Failed to list movies: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to fetch movies",
		})
	}

	data := h.media.EnrichAll(c.UserContext(), movies)
	return c.JSON(fiber.Map{
		"success":      true,
		"count":        len(data),
		"data":         data,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// Get returns one movie
// GET /api/movies/:id
func (h *MovieHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid movie ID",
		})
	}

	movie, err := h.movies.GetMovie(c.UserContext(), id)
	if errors.Is(err, services.ErrMovieNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Movie not found",
		})
	}
	if err != nil {
		log.Printf("❌ [MOVIES] Failed to get movie %d: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to fetch movie",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.media.Enrich(c.UserContext(), *movie),
	})
}

var exportColumns = []string{"ID", "Title", "Category", "DJ", "Video Link", "Poster File ID", "Submitted By", "Added"}

// Export streams the whole catalog as an Excel workbook
// GET /api/movies/export
func (h *MovieHandler) Export(c *fiber.Ctx) error {
	movies, err := h.movies.ListMovies(c.UserContext(), models.MovieFilter{})
	if err != nil {
		log.Printf("❌ [MOVIES] Export query failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to export movies",
		})
	}

	data, err := buildCatalogWorkbook(movies)
	if err != nil {
		log.Printf("❌ [MOVIES] Failed to build workbook: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to export movies",
		})
	}

	log.Printf("📤 [MOVIES] Exported %d movies", len(movies))
	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="movies-%s.xlsx"`, time.Now().UTC().Format("20060102")))
	return c.Send(data)
}

const exportSheet = "Movies"

func buildCatalogWorkbook(movies []models.Movie) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, err
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	for i, name := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, name); err != nil {
			return nil, err
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(exportColumns), 1)
	if err := f.SetCellStyle(exportSheet, "A1", lastHeader, header); err != nil {
		return nil, err
	}

	for i, m := range movies {
		row := []interface{}{
			m.ID,
			m.Title,
			stringOrEmpty(m.CategoryName),
			stringOrEmpty(m.DJName),
			m.VideoLink,
			stringOrEmpty(m.PosterFileID),
			m.UserID,
			m.CreatedAt.UTC().Format(time.RFC3339),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	if err := f.SetColWidth(exportSheet, "B", "B", 40); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(exportSheet, "E", "F", 50); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func parseMovieFilter(c *fiber.Ctx) (models.MovieFilter, error) {
	filter := models.MovieFilter{
		Search: c.Query("search"),
		Limit:  defaultMovieLimit,
	}

	var err error
	if filter.CategoryID, err = optionalID(c.Query("category_id")); err != nil {
		return filter, errors.New("Invalid category_id")
	}
	if filter.DJID, err = optionalID(c.Query("dj_id")); err != nil {
		return filter, errors.New("Invalid dj_id")
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return filter, errors.New("Invalid limit")
		}
		if limit > maxMovieLimit {
			limit = maxMovieLimit
		}
		filter.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, errors.New("Invalid offset")
		}
		filter.Offset = offset
	}

	return filter, nil
}

func optionalID(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid id %q", raw)
	}
	return &id, nil
}
