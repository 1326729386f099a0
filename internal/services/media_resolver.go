package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cyrus-trixie/djmoviestore/internal/ingestion"
	"github.com/cyrus-trixie/djmoviestore/internal/models"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
)

// enrichWorkers bounds concurrent lookups for one catalog read
const enrichWorkers = 8

// ErrMediaNotFound means the reference does not name a file the bot can reach
var ErrMediaNotFound = errors.New("media reference not found")

// FileURLFetcher turns a Telegram file_id into a download URL
type FileURLFetcher interface {
	GetFileURL(ctx context.Context, fileID string) (string, error)
}

// MediaResolverService resolves media references to fetchable URLs. Direct
// links pass through; file ids are looked up through the Bot API and cached
// below Telegram's one hour link lifetime.
type MediaResolverService struct {
	files FileURLFetcher
	cache *cache.Cache
}

// NewMediaResolverService creates a resolver with a cache TTL for file URLs
func NewMediaResolverService(files FileURLFetcher, ttl time.Duration) *MediaResolverService {
	return &MediaResolverService{
		files: files,
		cache: cache.New(ttl, 10*time.Minute),
	}
}

// ResolveURL returns a URL for the reference
func (s *MediaResolverService) ResolveURL(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", ErrMediaNotFound
	}
	if ingestion.IsDirectURL(ref) {
		return ref, nil
	}

	if cached, found := s.cache.Get(ref); found {
		return cached.(string), nil
	}

	if s.files == nil {
		return "", fmt.Errorf("%w: no bot token configured", ErrMediaNotFound)
	}

	url, err := s.files.GetFileURL(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrTelegramFileNotFound) {
			return "", fmt.Errorf("%w: %v", ErrMediaNotFound, err)
		}
		return "", err
	}

	s.cache.Set(ref, url, cache.DefaultExpiration)
	return url, nil
}

// Enrich attaches resolved video and poster URLs. Unresolvable references
// leave the URL fields nil.
func (s *MediaResolverService) Enrich(ctx context.Context, movie models.Movie) models.MovieResponse {
	resp := models.MovieResponse{Movie: movie}

	if url, err := s.ResolveURL(ctx, movie.VideoLink); err == nil {
		resp.VideoURL = &url
	} else {
		log.Printf("⚠️ [MEDIA] Could not resolve video for movie %d: %v", movie.ID, err)
	}

	if movie.PosterFileID != nil {
		if url, err := s.ResolveURL(ctx, *movie.PosterFileID); err == nil {
			resp.PosterURL = &url
		} else {
			log.Printf("⚠️ [MEDIA] Could not resolve poster for movie %d: %v", movie.ID, err)
		}
	}

	return resp
}

// EnrichAll enriches a list of movies, preserving order
func (s *MediaResolverService) EnrichAll(ctx context.Context, movies []models.Movie) []models.MovieResponse {
	out := make([]models.MovieResponse, len(movies))

	var g errgroup.Group
	g.SetLimit(enrichWorkers)
	for i, m := range movies {
		g.Go(func() error {
			out[i] = s.Enrich(ctx, m)
			return nil
		})
	}
	g.Wait()

	return out
}
