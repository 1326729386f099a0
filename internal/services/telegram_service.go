package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cyrus-trixie/djmoviestore/internal/models"
	"golang.org/x/time/rate"
)

const defaultTelegramAPIBase = "https://api.telegram.org"

// ErrTelegramFileNotFound is returned when getFile cannot resolve a file_id
var ErrTelegramFileNotFound = errors.New("telegram file not found")

// UpdateHandler receives every update delivered by long polling
type UpdateHandler func(ctx context.Context, update *models.TelegramUpdate)

// telegramPoller handles long polling for the bot
type telegramPoller struct {
	lastOffset int64
	stopChan   chan struct{}
	done       chan struct{}
}

// TelegramService talks to the Telegram Bot API for the ingestion bot
type TelegramService struct {
	botToken      string
	apiBase       string
	httpClient    *http.Client
	pollingClient *http.Client // Longer timeout for long polling
	limiter       *rate.Limiter
	fileLimiter   *rate.Limiter // getFile lookups for catalog reads

	poller     *telegramPoller
	pollerMux  sync.Mutex
	retryDelay time.Duration
}

// NewTelegramService creates a Bot API client. Outbound messages are
// throttled to Telegram's global limit of 30 per second. getFile lookups
// have their own budget so catalog reads never queue behind bot replies.
func NewTelegramService(botToken string) *TelegramService {
	return &TelegramService{
		botToken: botToken,
		apiBase:  defaultTelegramAPIBase,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		pollingClient: &http.Client{
			Timeout: 35 * time.Second,
		},
		limiter:     rate.NewLimiter(rate.Limit(30), 30),
		fileLimiter: rate.NewLimiter(rate.Limit(20), 20),
		retryDelay:  5 * time.Second,
	}
}

// SetAPIBaseURL points the client at a different Bot API server
func (s *TelegramService) SetAPIBaseURL(base string) {
	s.apiBase = strings.TrimSuffix(base, "/")
}

func (s *TelegramService) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", s.apiBase, s.botToken, method)
}

// telegramResponse is the envelope every Bot API method returns
type telegramResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// call posts a JSON payload to a Bot API method and decodes the envelope
func (s *TelegramService) call(ctx context.Context, limiter *rate.Limiter, client *http.Client, method string, payload interface{}) (*telegramResponse, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.methodURL(method), bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		// The request URL embeds the bot token
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read Telegram response: %w", err)
	}

	var result telegramResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode Telegram response (status %d): %w", resp.StatusCode, err)
	}
	return &result, nil
}

// SendText sends a plain prompt and hides any choice keyboard
func (s *TelegramService) SendText(ctx context.Context, chatID int64, text string) error {
	return s.sendMessage(ctx, chatID, text, models.TelegramReplyKeyboardRemove{RemoveKeyboard: true})
}

// SendChoicePrompt sends a prompt with a one-button-per-row reply keyboard
func (s *TelegramService) SendChoicePrompt(ctx context.Context, chatID int64, text string, choices []string) error {
	rows := make([][]models.TelegramKeyboardButton, len(choices))
	for i, choice := range choices {
		rows[i] = []models.TelegramKeyboardButton{{Text: choice}}
	}
	return s.sendMessage(ctx, chatID, text, models.TelegramReplyKeyboard{
		Keyboard:        rows,
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
	})
}

// sendMessage sends text without a parse mode. Prompts carry user supplied
// titles and names, so nothing in them may be read as markup.
func (s *TelegramService) sendMessage(ctx context.Context, chatID int64, text string, replyMarkup interface{}) error {
	payload := map[string]interface{}{
		"chat_id":      chatID,
		"text":         text,
		"reply_markup": replyMarkup,
	}

	result, err := s.call(ctx, s.limiter, s.httpClient, "sendMessage", payload)
	if err != nil {
		return fmt.Errorf("failed to send Telegram message: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("Telegram API error: %s", result.Description)
	}
	return nil
}

// GetFileURL resolves a file_id into a time-limited download URL
func (s *TelegramService) GetFileURL(ctx context.Context, fileID string) (string, error) {
	result, err := s.call(ctx, s.fileLimiter, s.httpClient, "getFile", map[string]string{"file_id": fileID})
	if err != nil {
		return "", fmt.Errorf("failed to get file info: %w", err)
	}
	if !result.OK {
		return "", fmt.Errorf("%w: %s", ErrTelegramFileNotFound, result.Description)
	}

	var file struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(result.Result, &file); err != nil {
		return "", fmt.Errorf("failed to decode file info: %w", err)
	}
	if file.FilePath == "" {
		return "", ErrTelegramFileNotFound
	}

	return fmt.Sprintf("%s/file/bot%s/%s", s.apiBase, s.botToken, file.FilePath), nil
}

// GetMe returns the bot's username
func (s *TelegramService) GetMe(ctx context.Context) (string, error) {
	result, err := s.call(ctx, s.limiter, s.httpClient, "getMe", map[string]string{})
	if err != nil {
		return "", err
	}
	if !result.OK {
		return "", fmt.Errorf("Telegram API error: %s", result.Description)
	}

	var bot models.TelegramUser
	if err := json.Unmarshal(result.Result, &bot); err != nil {
		return "", fmt.Errorf("invalid getMe response: %w", err)
	}
	return bot.Username, nil
}

// SetWebhook registers the webhook URL with Telegram. secretToken is echoed
// back in the X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (s *TelegramService) SetWebhook(ctx context.Context, webhookURL, secretToken string) error {
	payload := map[string]interface{}{
		"url":             webhookURL,
		"allowed_updates": []string{"message"},
	}
	if secretToken != "" {
		payload["secret_token"] = secretToken
	}
	// One connection keeps each chat's updates in send order
	payload["max_connections"] = 1

	result, err := s.call(ctx, s.limiter, s.httpClient, "setWebhook", payload)
	if err != nil {
		return err
	}
	if !result.OK {
		return fmt.Errorf("failed to set webhook: %s", result.Description)
	}

	log.Printf("📡 [TELEGRAM] Webhook registered: %s", redactWebhookURL(webhookURL))
	return nil
}

// DeleteWebhook removes the webhook so getUpdates can be used
func (s *TelegramService) DeleteWebhook(ctx context.Context) error {
	result, err := s.call(ctx, s.limiter, s.httpClient, "deleteWebhook", map[string]string{})
	if err != nil {
		return err
	}
	if !result.OK {
		return fmt.Errorf("failed to delete webhook: %s", result.Description)
	}

	log.Printf("📡 [TELEGRAM] Webhook deleted")
	return nil
}

// redactWebhookURL hides the path secret when logging
func redactWebhookURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Scheme + "://" + u.Host + "/..."
}

// ============================================================================
// Long Polling Support (when no public webhook URL is configured)
// ============================================================================

// StartPolling deletes any webhook and starts the getUpdates loop
func (s *TelegramService) StartPolling(ctx context.Context, handler UpdateHandler) {
	s.pollerMux.Lock()
	defer s.pollerMux.Unlock()

	if s.poller != nil {
		log.Printf("📡 [POLLING] Poller already running")
		return
	}

	if err := s.DeleteWebhook(ctx); err != nil {
		log.Printf("⚠️ [POLLING] Failed to delete webhook before polling: %v", err)
	}

	poller := &telegramPoller{
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.poller = poller

	go s.runPoller(poller, handler)
	log.Printf("📡 [POLLING] Started Telegram poller")
}

// StopPolling stops the poller and waits for the in-flight request to end
func (s *TelegramService) StopPolling() {
	s.pollerMux.Lock()
	poller := s.poller
	s.poller = nil
	s.pollerMux.Unlock()

	if poller == nil {
		return
	}
	close(poller.stopChan)
	<-poller.done
	log.Println("📡 [POLLING] Poller stopped")
}

func (s *TelegramService) runPoller(poller *telegramPoller, handler UpdateHandler) {
	defer close(poller.done)

	// Cancelled by StopPolling so a pending long poll returns immediately
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-poller.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-poller.stopChan:
			return
		default:
		}

		updates, err := s.getUpdates(ctx, poller.lastOffset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("⚠️ [POLLING] Error getting updates: %v", err)
			select {
			case <-poller.stopChan:
				return
			case <-time.After(s.retryDelay):
			}
			continue
		}

		for _, update := range updates {
			// Acknowledge this update on the next call
			if update.UpdateID >= poller.lastOffset {
				poller.lastOffset = update.UpdateID + 1
			}
			handler(ctx, update)
		}
	}
}

// getUpdates fetches updates using long polling
func (s *TelegramService) getUpdates(ctx context.Context, offset int64) ([]*models.TelegramUpdate, error) {
	payload := map[string]interface{}{
		"timeout":         30,
		"allowed_updates": []string{"message"},
	}
	if offset > 0 {
		payload["offset"] = offset
	}

	result, err := s.call(ctx, s.limiter, s.pollingClient, "getUpdates", payload)
	if err != nil {
		return nil, fmt.Errorf("failed to get updates: %w", err)
	}
	if !result.OK {
		return nil, fmt.Errorf("Telegram API returned not OK: %s", result.Description)
	}

	var updates []*models.TelegramUpdate
	if err := json.Unmarshal(result.Result, &updates); err != nil {
		return nil, fmt.Errorf("failed to decode updates: %w", err)
	}
	return updates, nil
}
