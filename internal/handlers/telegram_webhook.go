package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cyrus-trixie/djmoviestore/internal/ingestion"
	"github.com/cyrus-trixie/djmoviestore/internal/models"
	"github.com/gofiber/fiber/v2"
)

// Update sources for metrics
const (
	SourceWebhook = "webhook"
	SourcePolling = "polling"
)

// Update dispositions for metrics
const (
	dispositionHandled     = "handled"
	dispositionIgnored     = "ignored"
	dispositionRateLimited = "rate_limited"
	dispositionFailed      = "failed"
)

const (
	msgSlowDown    = "⏳ You're sending messages too quickly. Please wait a moment and try again."
	msgPrivateOnly = "🔒 Please message me in a private chat to add movies."
)

// EventHandler consumes normalized chat events
type EventHandler interface {
	Handle(ctx context.Context, ev ingestion.Event) error
}

// Notifier sends a plain reply outside the ingestion flow
type Notifier interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// InboundLimiter caps messages per user
type InboundLimiter interface {
	Allow(ctx context.Context, userID int64) bool
}

// UpdateRecorder counts Telegram updates
type UpdateRecorder interface {
	RecordTelegramUpdate(source, disposition string)
}

// TelegramHandler turns Telegram updates into ingestion events. The same
// handler serves webhook deliveries and long polling.
type TelegramHandler struct {
	engine      EventHandler
	notifier    Notifier
	limiter     InboundLimiter
	metrics     UpdateRecorder
	secret      string
	allowGroups bool

	queues *senderQueues
}

// TelegramHandlerConfig holds the optional collaborators
type TelegramHandlerConfig struct {
	WebhookSecret   string
	AllowGroupChats bool
	Limiter         InboundLimiter
	Metrics         UpdateRecorder
}

// NewTelegramHandler creates a new Telegram update handler
func NewTelegramHandler(engine EventHandler, notifier Notifier, cfg TelegramHandlerConfig) *TelegramHandler {
	return &TelegramHandler{
		engine:      engine,
		notifier:    notifier,
		limiter:     cfg.Limiter,
		metrics:     cfg.Metrics,
		secret:      cfg.WebhookSecret,
		allowGroups: cfg.AllowGroupChats,
		queues:      newSenderQueues(),
	}
}

// Webhook handles POST /api/telegram/webhook/:secret
func (h *TelegramHandler) Webhook(c *fiber.Ctx) error {
	if !h.authorized(c.Params("secret"), c.Get("X-Telegram-Bot-Api-Secret-Token")) {
		log.Printf("⚠️ [TELEGRAM-WEBHOOK] Rejected delivery with invalid secret from %s", c.IP())
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Invalid webhook"})
	}

	var update models.TelegramUpdate
	if err := json.Unmarshal(c.Body(), &update); err != nil {
		log.Printf("⚠️ [TELEGRAM-WEBHOOK] Failed to parse update: %v", err)
		return c.SendStatus(fiber.StatusOK) // Return 200 to prevent Telegram from retrying
	}

	// Deliveries arrive over parallel connections. Each sender's updates run
	// in arrival order so a title sent just before a poster is seen first.
	h.queues.dispatch(senderKey(&update), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		h.HandleUpdate(ctx, &update, SourceWebhook)
	})

	// Return 200 immediately to acknowledge receipt
	return c.SendStatus(fiber.StatusOK)
}

// Wait blocks until webhook deliveries already accepted have been processed
func (h *TelegramHandler) Wait() {
	h.queues.wait()
}

// senderKey groups updates by sender, falling back to the chat
func senderKey(update *models.TelegramUpdate) int64 {
	if update.Message == nil {
		return 0
	}
	if update.Message.From != nil {
		return update.Message.From.ID
	}
	if update.Message.Chat != nil {
		return update.Message.Chat.ID
	}
	return 0
}

// senderQueues runs queued jobs one at a time per key, in enqueue order.
// Different keys drain concurrently.
type senderQueues struct {
	mu      sync.Mutex
	pending map[int64][]func()
	wg      sync.WaitGroup
}

func newSenderQueues() *senderQueues {
	return &senderQueues{pending: make(map[int64][]func())}
}

func (q *senderQueues) dispatch(key int64, job func()) {
	q.wg.Add(1)

	q.mu.Lock()
	queue, running := q.pending[key]
	q.pending[key] = append(queue, job)
	q.mu.Unlock()

	if !running {
		go q.drain(key)
	}
}

// drain owns the key until its queue is empty
func (q *senderQueues) drain(key int64) {
	for {
		q.mu.Lock()
		queue := q.pending[key]
		if len(queue) == 0 {
			delete(q.pending, key)
			q.mu.Unlock()
			return
		}
		job := queue[0]
		q.pending[key] = queue[1:]
		q.mu.Unlock()

		job()
		q.wg.Done()
	}
}

func (q *senderQueues) wait() {
	q.wg.Wait()
}

func (h *TelegramHandler) authorized(pathSecret, headerSecret string) bool {
	if h.secret == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(pathSecret), []byte(h.secret)) != 1 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(headerSecret), []byte(h.secret)) == 1
}

// PollingHandler adapts HandleUpdate to the long polling callback
func (h *TelegramHandler) PollingHandler() func(ctx context.Context, update *models.TelegramUpdate) {
	return func(ctx context.Context, update *models.TelegramUpdate) {
		h.HandleUpdate(ctx, update, SourcePolling)
	}
}

// HandleUpdate filters one update and feeds it to the ingestion engine
func (h *TelegramHandler) HandleUpdate(ctx context.Context, update *models.TelegramUpdate, source string) {
	if h.isGroupCommand(update) {
		h.record(source, dispositionIgnored)
		if err := h.notifier.SendText(ctx, update.Message.Chat.ID, msgPrivateOnly); err != nil {
			log.Printf("⚠️ [TELEGRAM] Failed to send private chat notice: %v", err)
		}
		return
	}

	ev, ok := h.toEvent(update)
	if !ok {
		h.record(source, dispositionIgnored)
		return
	}

	if h.limiter != nil && !h.limiter.Allow(ctx, ev.UserID) {
		log.Printf("⚠️ [TELEGRAM] Rate limit exceeded for user %d", ev.UserID)
		h.record(source, dispositionRateLimited)
		if err := h.notifier.SendText(ctx, ev.ChatID, msgSlowDown); err != nil {
			log.Printf("⚠️ [TELEGRAM] Failed to send rate limit notice: %v", err)
		}
		return
	}

	if err := h.engine.Handle(ctx, ev); err != nil {
		var storageErr *ingestion.StorageError
		if errors.As(err, &storageErr) {
			log.Printf("❌ [TELEGRAM] Ingestion storage failure for user %d: %v", ev.UserID, err)
		} else {
			log.Printf("⚠️ [TELEGRAM] Ingestion failed for user %d: %v", ev.UserID, err)
		}
		h.record(source, dispositionFailed)
		return
	}
	h.record(source, dispositionHandled)
}

// isGroupCommand reports a bot command sent to a group while group chats are
// disabled. Other group chatter is dropped without a reply.
func (h *TelegramHandler) isGroupCommand(update *models.TelegramUpdate) bool {
	if h.allowGroups || update == nil || update.Message == nil {
		return false
	}
	msg := update.Message
	if msg.Chat == nil || msg.Chat.Type == "private" || msg.From == nil || msg.From.IsBot {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(msg.Text), "/")
}

// toEvent maps a Telegram message to an ingestion event. Updates without a
// human sender, and group chats unless enabled, are dropped.
func (h *TelegramHandler) toEvent(update *models.TelegramUpdate) (ingestion.Event, bool) {
	if update == nil || update.Message == nil {
		return ingestion.Event{}, false
	}
	msg := update.Message
	if msg.From == nil || msg.From.IsBot || msg.Chat == nil {
		return ingestion.Event{}, false
	}
	if msg.Chat.Type != "private" && !h.allowGroups {
		return ingestion.Event{}, false
	}

	ev := ingestion.Event{
		UserID: msg.From.ID,
		ChatID: msg.Chat.ID,
		Text:   msg.Text,
	}
	// Get text content - either from text field or caption (for media)
	if ev.Text == "" {
		ev.Text = msg.Caption
	}

	for _, p := range msg.Photo {
		ev.Images = append(ev.Images, ingestion.ImageVariant{
			FileID:   p.FileID,
			Width:    p.Width,
			Height:   p.Height,
			FileSize: p.FileSize,
		})
	}

	switch {
	case msg.Video != nil:
		ev.Attachment = &ingestion.Attachment{FileID: msg.Video.FileID, MimeType: msg.Video.MimeType}
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
		// Images sent "as file" skip compression and arrive as documents
		ev.Images = append(ev.Images, ingestion.ImageVariant{FileID: msg.Document.FileID})
	case msg.Document != nil:
		ev.Attachment = &ingestion.Attachment{FileID: msg.Document.FileID, MimeType: msg.Document.MimeType}
	}

	if ev.Text == "" && len(ev.Images) == 0 && ev.Attachment == nil {
		return ingestion.Event{}, false
	}
	return ev, true
}

func (h *TelegramHandler) record(source, disposition string) {
	if h.metrics != nil {
		h.metrics.RecordTelegramUpdate(source, disposition)
	}
}
