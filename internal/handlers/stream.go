package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cyrus-trixie/djmoviestore/internal/security"
	"github.com/cyrus-trixie/djmoviestore/internal/services"
	"github.com/gofiber/fiber/v2"
)

// passthroughHeaders are copied from the upstream response
var passthroughHeaders = []string{
	"Content-Type",
	"Content-Range",
	"Accept-Ranges",
	"Last-Modified",
	"ETag",
}

// URLResolver turns a stored media reference into a fetchable URL
type URLResolver interface {
	ResolveURL(ctx context.Context, ref string) (string, error)
}

// StreamHandler proxies video bytes so browsers can play Telegram-hosted
// files and third-party links without CORS trouble
type StreamHandler struct {
	movies   MovieReader
	resolver URLResolver
	client   *http.Client
	validate func(rawURL string) error
}

// NewStreamHandler creates a streaming proxy. Upstream connections are
// refused for private and loopback addresses at dial time.
func NewStreamHandler(movies MovieReader, resolver URLResolver) *StreamHandler {
	dialer := security.SafeDialer(10 * time.Second)
	return &StreamHandler{
		movies:   movies,
		resolver: resolver,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext:           dialer.DialContext,
				ResponseHeaderTimeout: 20 * time.Second,
				IdleConnTimeout:       90 * time.Second,
				MaxIdleConnsPerHost:   10,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return errors.New("too many redirects")
				}
				return security.ValidateUpstreamURL(req.URL.String())
			},
		},
		validate: security.ValidateUpstreamURL,
	}
}

// StreamURL handles GET /api/stream_video?url=
func (h *StreamHandler) StreamURL(c *fiber.Ctx) error {
	target := c.Query("url")
	if target == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "url parameter is required",
		})
	}
	return h.proxy(c, target)
}

// StreamMovie handles GET /api/movies/:id/stream
func (h *StreamHandler) StreamMovie(c *fiber.Ctx) error {
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
		log.Printf("❌ [STREAM] Failed to load movie %d: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to fetch movie",
		})
	}

	target, err := h.resolver.ResolveURL(c.UserContext(), movie.VideoLink)
	if err != nil {
		if errors.Is(err, services.ErrMediaNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "Video is no longer available",
			})
		}
		log.Printf("❌ [STREAM] Failed to resolve video for movie %d: %v", id, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to resolve video",
		})
	}

	return h.proxy(c, target)
}

func (h *StreamHandler) proxy(c *fiber.Ctx, target string) error {
	c.Set("Access-Control-Allow-Origin", "*")

	if err := h.validate(target); err != nil {
		log.Printf("🚫 [STREAM] Blocked upstream %s: %v", redactURL(target), err)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   "URL is not allowed",
		})
	}

	// The request context ends when the handler returns, and the body is
	// still being streamed after that
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, target, nil)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid URL format",
		})
	}
	if rng := c.Get("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		log.Printf("❌ [STREAM] Upstream fetch failed for %s: %v", redactURL(target), stripURL(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to reach video host",
		})
	}

	if resp.StatusCode >= 400 {
		resp.Body.Close()
		log.Printf("⚠️ [STREAM] Upstream returned %d for %s", resp.StatusCode, redactURL(target))
		return c.Status(resp.StatusCode).JSON(fiber.Map{
			"success": false,
			"error":   fmt.Sprintf("Video host returned %d", resp.StatusCode),
		})
	}

	for _, name := range passthroughHeaders {
		if v := resp.Header.Get(name); v != "" {
			c.Set(name, v)
		}
	}
	c.Status(resp.StatusCode)

	// fasthttp closes the body once it has been written out
	size := -1
	if resp.ContentLength >= 0 {
		size = int(resp.ContentLength)
	}
	return c.SendStream(resp.Body, size)
}

// redactURL keeps only scheme and host. Telegram file URLs carry the bot
// token in their path.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<invalid url>"
	}
	return u.Scheme + "://" + u.Host + "/..."
}

// stripURL drops the request URL that net/http puts in transport errors
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
