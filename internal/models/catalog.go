package models

import "time"

// Movie is a catalog entry. VideoLink is the natural dedup key: either an
// absolute URL or an opaque Telegram file id.
type Movie struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	VideoLink    string    `json:"video_link"`
	PosterFileID *string   `json:"poster_file_id"`
	UserID       int64     `json:"user_id"`
	CategoryID   *int64    `json:"category_id"`
	CategoryName *string   `json:"category_name"`
	DJID         *int64    `json:"dj_id"`
	DJName       *string   `json:"dj_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// MovieResponse is a Movie with media references resolved to fetchable URLs
type MovieResponse struct {
	Movie
	VideoURL  *string `json:"video_url"`
	PosterURL *string `json:"poster_url"`
}

// MovieFilter narrows ListMovies results
type MovieFilter struct {
	Search     string
	CategoryID *int64
	DJID       *int64
	Limit      int
	Offset     int
}

// MovieUpsert carries everything needed to create or update a catalog entry
type MovieUpsert struct {
	Title        string
	VideoLink    string
	PosterFileID string // empty means no poster
	CategoryID   *int64
	DJID         *int64
	SubmitterID  int64
}

// Category groups movies (e.g. "Action", "Comedy")
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DJ is the attribution for a movie (the community DJ who voiced or mixed it)
type DJ struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CatalogSeed lists reference data to ensure on startup
type CatalogSeed struct {
	Categories []string `yaml:"categories"`
	DJs        []string `yaml:"djs"`
}
