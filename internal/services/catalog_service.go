package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cyrus-trixie/djmoviestore/internal/database"
	"github.com/cyrus-trixie/djmoviestore/internal/models"
)

// ErrMovieNotFound is returned by GetMovie for an unknown id
var ErrMovieNotFound = errors.New("movie not found")

// CatalogService reads and writes the movie catalog
type CatalogService struct {
	db *database.DB
}

// NewCatalogService creates a new catalog service
func NewCatalogService(db *database.DB) *CatalogService {
	return &CatalogService{db: db}
}

// FindMovieIDByVideoLink looks up an existing entry by its dedup key
func (s *CatalogService) FindMovieIDByVideoLink(ctx context.Context, videoLink string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM movies WHERE video_link = ?", videoLink).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to find movie: %w", err)
	}
	return id, true, nil
}

const mysqlUpsertMovie = `
	INSERT INTO movies (title, video_link, poster_file_id, user_id, category_id, dj_id)
	VALUES (?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		id = LAST_INSERT_ID(id),
		title = VALUES(title),
		poster_file_id = VALUES(poster_file_id),
		category_id = VALUES(category_id),
		dj_id = VALUES(dj_id)`

const sqliteUpsertMovie = `
	INSERT INTO movies (title, video_link, poster_file_id, user_id, category_id, dj_id)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(video_link) DO UPDATE SET
		title = excluded.title,
		poster_file_id = excluded.poster_file_id,
		category_id = excluded.category_id,
		dj_id = excluded.dj_id,
		updated_at = CURRENT_TIMESTAMP
	RETURNING id`

// UpsertMovie inserts a movie or updates the entry with the same video link.
// The decision is made by the unique index in a single statement, so racing
// submissions of one link cannot both insert. The submitter is only recorded
// on insert.
func (s *CatalogService) UpsertMovie(ctx context.Context, movie models.MovieUpsert) (int64, bool, error) {
	var poster interface{}
	if movie.PosterFileID != "" {
		poster = movie.PosterFileID
	}
	args := []interface{}{movie.Title, movie.VideoLink, poster, movie.SubmitterID, movie.CategoryID, movie.DJID}

	if s.db.Dialect == database.DialectSQLite {
		return s.upsertMovieSQLite(ctx, args)
	}

	result, err := s.db.ExecContext(ctx, mysqlUpsertMovie, args...)
	if err != nil {
		return 0, false, fmt.Errorf("failed to upsert movie: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read movie id: %w", err)
	}
	// 1 = inserted, 2 = updated, 0 = updated with identical values
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return id, affected == 1, nil
}

func (s *CatalogService) upsertMovieSQLite(ctx context.Context, args []interface{}) (int64, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM movies WHERE video_link = ?", args[1]).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to check existing movie: %w", err)
	}
	created := errors.Is(err, sql.ErrNoRows)

	var id int64
	if err := tx.QueryRowContext(ctx, sqliteUpsertMovie, args...).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("failed to upsert movie: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit movie: %w", err)
	}
	return id, created, nil
}

// ListCategories returns all categories ordered by name
func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM categories ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// ListDJs returns all DJs ordered by name
func (s *CatalogService) ListDJs(ctx context.Context) ([]models.DJ, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM djs ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list djs: %w", err)
	}
	defer rows.Close()

	djs := []models.DJ{}
	for rows.Next() {
		var d models.DJ
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			return nil, fmt.Errorf("failed to scan dj: %w", err)
		}
		djs = append(djs, d)
	}
	return djs, rows.Err()
}

// ResolveCategoryID matches a category name exactly
func (s *CatalogService) ResolveCategoryID(ctx context.Context, name string) (int64, bool, error) {
	return s.resolveName(ctx, "categories", name)
}

// ResolveDJID matches a DJ name exactly
func (s *CatalogService) ResolveDJID(ctx context.Context, name string) (int64, bool, error) {
	return s.resolveName(ctx, "djs", name)
}

// resolveName compares in Go because MySQL's default collation would also
// match "action" to "Action"
func (s *CatalogService) resolveName(ctx context.Context, table, name string) (int64, bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM "+table+" WHERE name = ?", name)
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve %s name: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var stored string
		if err := rows.Scan(&id, &stored); err != nil {
			return 0, false, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		if stored == name {
			return id, true, nil
		}
	}
	return 0, false, rows.Err()
}

const movieSelect = `
	SELECT m.id, m.title, m.video_link, m.poster_file_id, m.user_id,
		m.category_id, c.name, m.dj_id, d.name, m.created_at
	FROM movies m
	LEFT JOIN categories c ON m.category_id = c.id
	LEFT JOIN djs d ON m.dj_id = d.id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMovie(row rowScanner) (*models.Movie, error) {
	var m models.Movie
	var poster, categoryName, djName sql.NullString
	var categoryID, djID sql.NullInt64

	if err := row.Scan(&m.ID, &m.Title, &m.VideoLink, &poster, &m.UserID,
		&categoryID, &categoryName, &djID, &djName, &m.CreatedAt); err != nil {
		return nil, err
	}

	if poster.Valid {
		m.PosterFileID = &poster.String
	}
	if categoryID.Valid {
		m.CategoryID = &categoryID.Int64
	}
	if categoryName.Valid {
		m.CategoryName = &categoryName.String
	}
	if djID.Valid {
		m.DJID = &djID.Int64
	}
	if djName.Valid {
		m.DJName = &djName.String
	}
	return &m, nil
}

// ListMovies returns movies newest first with category and DJ names joined in
func (s *CatalogService) ListMovies(ctx context.Context, filter models.MovieFilter) ([]models.Movie, error) {
	var where []string
	var args []interface{}

	if search := strings.TrimSpace(filter.Search); search != "" {
		where = append(where, "m.title LIKE ?")
		args = append(args, "%"+search+"%")
	}
	if filter.CategoryID != nil {
		where = append(where, "m.category_id = ?")
		args = append(args, *filter.CategoryID)
	}
	if filter.DJID != nil {
		where = append(where, "m.dj_id = ?")
		args = append(args, *filter.DJID)
	}

	query := movieSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY m.created_at DESC, m.id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list movies: %w", err)
	}
	defer rows.Close()

	movies := []models.Movie{}
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan movie: %w", err)
		}
		movies = append(movies, *m)
	}
	return movies, rows.Err()
}

// GetMovie returns one movie by id
func (s *CatalogService) GetMovie(ctx context.Context, id int64) (*models.Movie, error) {
	m, err := scanMovie(s.db.QueryRowContext(ctx, movieSelect+" WHERE m.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMovieNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get movie: %w", err)
	}
	return m, nil
}

// SeedReferenceData inserts categories and DJs that do not exist yet.
// Existing rows are never renamed or removed.
func (s *CatalogService) SeedReferenceData(ctx context.Context, seed *models.CatalogSeed) (int, int, error) {
	if seed == nil {
		return 0, 0, nil
	}

	categories, err := s.insertMissingNames(ctx, "categories", seed.Categories)
	if err != nil {
		return 0, 0, err
	}
	djs, err := s.insertMissingNames(ctx, "djs", seed.DJs)
	if err != nil {
		return categories, 0, err
	}

	if categories > 0 || djs > 0 {
		log.Printf("🌱 [CATALOG] Seeded %d categories and %d DJs", categories, djs)
	}
	return categories, djs, nil
}

func (s *CatalogService) insertMissingNames(ctx context.Context, table string, names []string) (int, error) {
	insert := "INSERT IGNORE INTO " + table + " (name) VALUES (?)"
	if s.db.Dialect == database.DialectSQLite {
		insert = "INSERT OR IGNORE INTO " + table + " (name) VALUES (?)"
	}

	added := 0
	for _, name := range names {
		result, err := s.db.ExecContext(ctx, insert, name)
		if err != nil {
			return added, fmt.Errorf("failed to seed %s %q: %w", table, name, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			added++
		}
	}
	return added, nil
}
