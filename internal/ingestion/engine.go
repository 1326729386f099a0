package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"time"

	"github.com/cyrus-trixie/djmoviestore/internal/logging"
	"github.com/cyrus-trixie/djmoviestore/internal/models"
	"github.com/google/uuid"
)

// Limits match the movies.title and movies.video_link columns
const (
	maxTitleLength          = 512
	maxMediaReferenceLength = 768
)

// CatalogGateway is the catalog storage the workflow reads choices from and
// writes finished entries to
type CatalogGateway interface {
	FindMovieIDByVideoLink(ctx context.Context, videoLink string) (int64, bool, error)
	UpsertMovie(ctx context.Context, movie models.MovieUpsert) (id int64, created bool, err error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	ListDJs(ctx context.Context) ([]models.DJ, error)
	ResolveCategoryID(ctx context.Context, name string) (int64, bool, error)
	ResolveDJID(ctx context.Context, name string) (int64, bool, error)
}

// Transport delivers prompts to a chat
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendChoicePrompt(ctx context.Context, chatID int64, text string, choices []string) error
}

// MediaResolver turns an opaque media reference into a URL
type MediaResolver interface {
	ResolveURL(ctx context.Context, ref string) (string, error)
}

// Recorder receives workflow outcomes for metrics
type Recorder interface {
	RecordIngestionEvent(stage string, outcome string)
	RecordMovieSave(outcome string)
}

// Event outcomes reported to the Recorder
const (
	OutcomeAccepted    = "accepted"
	OutcomeRejected    = "rejected"
	OutcomeInvalidPick = "invalid_choice"
	OutcomeFailed      = "failed"
	OutcomeCompleted   = "completed"
	OutcomeCanceled    = "canceled"
	OutcomeStarted     = "started"
	OutcomeIgnored     = "ignored"
)

// ImageVariant is one resolution of an image attachment
type ImageVariant struct {
	FileID   string
	Width    int
	Height   int
	FileSize int
}

// Attachment is a non-image file (video or document)
type Attachment struct {
	FileID   string
	MimeType string
}

// Event is one inbound chat message
type Event struct {
	UserID     int64
	ChatID     int64
	Text       string
	Images     []ImageVariant
	Attachment *Attachment
}

// Command returns the leading command token, if the text is a command.
// Matching on the token is exact, so /ADDMOVIE is an unknown command.
func (e Event) Command() (string, bool) {
	text := strings.TrimSpace(e.Text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	token := strings.Fields(text)[0]
	// Group-style commands carry the bot name: /addmovie@MovieBot
	if at := strings.Index(token, "@"); at > 0 {
		token = token[:at]
	}
	return token, true
}

// HasImage reports whether the event carries an image attachment
func (e Event) HasImage() bool {
	return len(e.Images) > 0
}

// largestImage picks the highest resolution variant
func largestImage(images []ImageVariant) ImageVariant {
	best := images[len(images)-1]
	for _, img := range images {
		if img.Width*img.Height > best.Width*best.Height {
			best = img
		}
	}
	return best
}

// Options configures optional engine behaviour
type Options struct {
	Locker   Locker
	Recorder Recorder
	// Resolver is consulted at ingestion time when VerifyMediaReferences is set
	Resolver              MediaResolver
	VerifyMediaReferences bool
	Now                   func() time.Time
}

// Engine drives the ingestion conversation for every user
type Engine struct {
	catalog   CatalogGateway
	sessions  SessionStore
	transport Transport
	locker    Locker
	recorder  Recorder
	resolver  MediaResolver
	verify    bool
	now       func() time.Time
}

// NewEngine creates an ingestion engine
func NewEngine(catalog CatalogGateway, sessions SessionStore, transport Transport, opts Options) *Engine {
	e := &Engine{
		catalog:   catalog,
		sessions:  sessions,
		transport: transport,
		locker:    opts.Locker,
		recorder:  opts.Recorder,
		resolver:  opts.Resolver,
		verify:    opts.VerifyMediaReferences && opts.Resolver != nil,
		now:       opts.Now,
	}
	if e.locker == nil {
		e.locker = NewKeyedMutex()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Handle processes one inbound event to completion. Events for the same user
// are serialized. The returned error is for logging; the user has already
// been told what happened.
func (e *Engine) Handle(ctx context.Context, ev Event) error {
	unlock, err := e.locker.Lock(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("failed to lock session for user %d: %w", ev.UserID, err)
	}
	defer unlock()

	session, err := e.sessions.Get(ctx, ev.UserID)
	if err != nil {
		// An unreadable session cannot be resumed
		return e.fail(ctx, ev, nil, &StorageError{Op: "load session", Err: err}, msgStorageFailed)
	}

	if cmd, ok := ev.Command(); ok {
		return e.handleCommand(ctx, ev, session, cmd)
	}

	if session == nil {
		if ev.HasImage() {
			e.reply(ctx, ev.ChatID, msgIdleImage)
		} else {
			e.reply(ctx, ev.ChatID, msgIdleHint)
		}
		e.record(StageIdle, OutcomeIgnored)
		return nil
	}

	switch stage := session.Stage.(type) {
	case AwaitingMediaReference:
		return e.onMediaReference(ctx, ev, session)
	case AwaitingTitle:
		return e.onTitle(ctx, ev, session, stage)
	case AwaitingPoster:
		return e.onPoster(ctx, ev, session, stage)
	case AwaitingCategory:
		return e.onCategory(ctx, ev, session, stage)
	case AwaitingDJ:
		return e.onDJ(ctx, ev, session, stage)
	default:
		return e.fail(ctx, ev, session, &StorageError{
			Op:  "load session",
			Err: fmt.Errorf("unknown stage %T", session.Stage),
		}, msgStorageFailed)
	}
}

// Stage returns the user's current stage
func (e *Engine) Stage(ctx context.Context, userID int64) (StageName, error) {
	session, err := e.sessions.Get(ctx, userID)
	if err != nil {
		return StageIdle, err
	}
	return session.StageName(), nil
}

func (e *Engine) handleCommand(ctx context.Context, ev Event, session *Session, cmd string) error {
	switch cmd {
	case CommandStartIngestion:
		now := e.now()
		fresh := &Session{
			ID:        uuid.New().String(),
			UserID:    ev.UserID,
			ChatID:    ev.ChatID,
			Stage:     AwaitingMediaReference{},
			StartedAt: now,
			UpdatedAt: now,
		}
		if session != nil {
			e.logger(session).Info("discarding unfinished ingestion for new /addmovie")
		}
		if err := e.sessions.Set(ctx, fresh); err != nil {
			return e.fail(ctx, ev, session, &StorageError{Op: "start session", Err: err}, msgStorageFailed)
		}
		e.logger(fresh).Info("ingestion started")
		e.record(StageIdle, OutcomeStarted)
		e.reply(ctx, ev.ChatID, msgAskMediaReference)
		return nil

	case CommandCancel:
		if err := e.sessions.Clear(ctx, ev.UserID); err != nil {
			log.Printf("⚠️ [INGEST] Failed to clear session for user %d on cancel: %v", ev.UserID, err)
		}
		e.record(session.StageName(), OutcomeCanceled)
		e.reply(ctx, ev.ChatID, msgCanceled)
		return nil

	case CommandStart, CommandHelp:
		e.reply(ctx, ev.ChatID, msgWelcome)
		return nil

	default:
		e.reply(ctx, ev.ChatID, msgUnknownCmd)
		return nil
	}
}

func (e *Engine) onMediaReference(ctx context.Context, ev Event, session *Session) error {
	ref, err := e.validateMediaReference(ctx, ev)
	if err != nil {
		return e.reject(ctx, ev, session, err)
	}

	_, exists, err := e.catalog.FindMovieIDByVideoLink(ctx, ref)
	if err != nil {
		return e.fail(ctx, ev, session, &StorageError{Op: "find movie", Err: err}, msgStorageFailed)
	}

	if err := e.sessions.Set(ctx, session.advance(AwaitingTitle{MediaReference: ref}, e.now())); err != nil {
		return e.fail(ctx, ev, session, &StorageError{Op: "save session", Err: err}, msgStorageFailed)
	}

	e.record(StageAwaitingMediaReference, OutcomeAccepted)
	if exists {
		e.reply(ctx, ev.ChatID, msgAlreadyInCatalog)
	}
	e.reply(ctx, ev.ChatID, msgAskTitle)
	return nil
}

// validateMediaReference applies the acceptance policy: http(s) links are
// taken verbatim, any other non-empty text or an attached file is taken as an
// opaque platform reference
func (e *Engine) validateMediaReference(ctx context.Context, ev Event) (string, error) {
	if ev.Attachment != nil && ev.Attachment.FileID != "" {
		return ev.Attachment.FileID, nil
	}

	ref := strings.TrimSpace(ev.Text)
	if ref == "" || ev.HasImage() {
		return "", &ValidationError{Stage: StageAwaitingMediaReference, Message: msgInvalidMediaReference}
	}
	if len([]rune(ref)) > maxMediaReferenceLength {
		return "", &ValidationError{Stage: StageAwaitingMediaReference, Message: msgMediaReferenceTooLong}
	}

	if IsDirectURL(ref) {
		return ref, nil
	}

	if e.verify {
		if _, err := e.resolver.ResolveURL(ctx, ref); err != nil {
			log.Printf("⚠️ [INGEST] Rejecting unresolvable media reference from user %d: %v", ev.UserID, err)
			return "", &ValidationError{Stage: StageAwaitingMediaReference, Message: msgUnknownMediaReference}
		}
	}
	return ref, nil
}

// IsDirectURL reports whether a media reference is an http(s) link
func IsDirectURL(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func (e *Engine) onTitle(ctx context.Context, ev Event, session *Session, stage AwaitingTitle) error {
	title := strings.TrimSpace(ev.Text)
	switch {
	case title == "":
		return e.reject(ctx, ev, session, &ValidationError{Stage: StageAwaitingTitle, Message: msgTitleRequired})
	case len([]rune(title)) > maxTitleLength:
		return e.reject(ctx, ev, session, &ValidationError{Stage: StageAwaitingTitle, Message: msgTitleTooLong})
	}

	next := AwaitingPoster{MediaReference: stage.MediaReference, Title: title}
	if err := e.sessions.Set(ctx, session.advance(next, e.now())); err != nil {
		return e.fail(ctx, ev, session, &StorageError{Op: "save session", Err: err}, msgStorageFailed)
	}

	e.record(StageAwaitingTitle, OutcomeAccepted)
	e.reply(ctx, ev.ChatID, msgAskPoster)
	return nil
}

func (e *Engine) onPoster(ctx context.Context, ev Event, session *Session, stage AwaitingPoster) error {
	if !ev.HasImage() {
		return e.reject(ctx, ev, session, &ValidationError{Stage: StageAwaitingPoster, Message: msgSendImage})
	}
	poster := largestImage(ev.Images).FileID

	categories, err := e.catalog.ListCategories(ctx)
	if err != nil {
		return e.fail(ctx, ev, session, &StorageError{Op: "list categories", Err: err}, msgStorageFailed)
	}

	e.record(StageAwaitingPoster, OutcomeAccepted)

	if len(categories) == 0 {
		return e.finalize(ctx, ev, session, draft{
			mediaReference:  stage.MediaReference,
			title:           stage.Title,
			posterReference: poster,
		})
	}

	next := AwaitingCategory{
		MediaReference:  stage.MediaReference,
		Title:           stage.Title,
		PosterReference: poster,
	}
	if err := e.sessions.Set(ctx, session.advance(next, e.now())); err != nil {
		return e.fail(ctx, ev, session, &StorageError{Op: "save session", Err: err}, msgStorageFailed)
	}

	e.prompt(ctx, ev.ChatID, msgAskCategory, categoryNames(categories))
	return nil
}

func (e *Engine) onCategory(ctx context.Context, ev Event, session *Session, stage AwaitingCategory) error {
	if ev.Text == "" {
		return e.repromptCategories(ctx, ev, session, &LookupError{Kind: "category"})
	}

	categoryID, found, err := e.catalog.ResolveCategoryID(ctx, ev.Text)
	if err != nil {
		return e.fail(ctx, ev, session, &StorageError{Op: "resolve category", Err: err}, msgStorageFailed)
	}
	if !found {
		return e.repromptCategories(ctx, ev, session, &LookupError{Kind: "category", Name: ev.Text})
	}

	djs, err := e.catalog.ListDJs(ctx)
	if err != nil {
		return e.fail(ctx, ev, session, &StorageError{Op: "list djs", Err: err}, msgStorageFailed)
	}

	e.record(StageAwaitingCategory, OutcomeAccepted)

	if len(djs) == 0 {
		return e.finalize(ctx, ev, session, draft{
			mediaReference:  stage.MediaReference,
			title:           stage.Title,
			posterReference: stage.PosterReference,
			categoryID:      &categoryID,
			categoryName:    ev.Text,
		})
	}

	next := AwaitingDJ{
		MediaReference:  stage.MediaReference,
		Title:           stage.Title,
		PosterReference: stage.PosterReference,
		CategoryID:      categoryID,
		CategoryName:    ev.Text,
	}
	if err := e.sessions.Set(ctx, session.advance(next, e.now())); err != nil {
		return e.fail(ctx, ev, session, &StorageError{Op: "save session", Err: err}, msgStorageFailed)
	}

	e.prompt(ctx, ev.ChatID, msgAskDJ, djNames(djs))
	return nil
}

func (e *Engine) onDJ(ctx context.Context, ev Event, session *Session, stage AwaitingDJ) error {
	if ev.Text == "" {
		return e.repromptDJs(ctx, ev, session, &LookupError{Kind: "dj"})
	}

	djID, found, err := e.catalog.ResolveDJID(ctx, ev.Text)
	if err != nil {
		return e.fail(ctx, ev, session, &StorageError{Op: "resolve dj", Err: err}, msgStorageFailed)
	}
	if !found {
		return e.repromptDJs(ctx, ev, session, &LookupError{Kind: "dj", Name: ev.Text})
	}

	e.record(StageAwaitingDJ, OutcomeAccepted)

	categoryID := stage.CategoryID
	return e.finalize(ctx, ev, session, draft{
		mediaReference:  stage.MediaReference,
		title:           stage.Title,
		posterReference: stage.PosterReference,
		categoryID:      &categoryID,
		categoryName:    stage.CategoryName,
		djID:            &djID,
		djName:          ev.Text,
	})
}

func (e *Engine) repromptCategories(ctx context.Context, ev Event, session *Session, lookupErr *LookupError) error {
	categories, err := e.catalog.ListCategories(ctx)
	if err != nil {
		return e.fail(ctx, ev, session, &StorageError{Op: "list categories", Err: err}, msgStorageFailed)
	}
	e.logger(session).Info("category choice rejected", "error", lookupErr.Error())
	e.record(StageAwaitingCategory, OutcomeInvalidPick)
	e.touch(ctx, session)
	e.prompt(ctx, ev.ChatID, msgInvalidCategory, categoryNames(categories))
	return nil
}

func (e *Engine) repromptDJs(ctx context.Context, ev Event, session *Session, lookupErr *LookupError) error {
	djs, err := e.catalog.ListDJs(ctx)
	if err != nil {
		return e.fail(ctx, ev, session, &StorageError{Op: "list djs", Err: err}, msgStorageFailed)
	}
	e.logger(session).Info("dj choice rejected", "error", lookupErr.Error())
	e.record(StageAwaitingDJ, OutcomeInvalidPick)
	e.touch(ctx, session)
	e.prompt(ctx, ev.ChatID, msgInvalidDJ, djNames(djs))
	return nil
}

// draft is the fully collected entry handed to finalize
type draft struct {
	mediaReference  string
	title           string
	posterReference string
	categoryID      *int64
	categoryName    string
	djID            *int64
	djName          string
}

// finalize upserts the entry and clears the session whatever the outcome
func (e *Engine) finalize(ctx context.Context, ev Event, session *Session, d draft) error {
	_, created, err := e.catalog.UpsertMovie(ctx, models.MovieUpsert{
		Title:        d.title,
		VideoLink:    d.mediaReference,
		PosterFileID: d.posterReference,
		CategoryID:   d.categoryID,
		DJID:         d.djID,
		SubmitterID:  ev.UserID,
	})

	if clearErr := e.sessions.Clear(ctx, ev.UserID); clearErr != nil {
		log.Printf("⚠️ [INGEST] Failed to clear session for user %d after save: %v", ev.UserID, clearErr)
	}

	if err != nil {
		e.record(session.StageName(), OutcomeFailed)
		e.recordSave(OutcomeFailed)
		e.reply(ctx, ev.ChatID, msgSaveFailed)
		e.logger(session).Error("failed to save movie", "error", err)
		return &StorageError{Op: "upsert movie", Err: err}
	}

	outcome := "updated"
	if created {
		outcome = "created"
	}
	e.recordSave(outcome)
	e.record(session.StageName(), OutcomeCompleted)
	e.logger(session).Info("movie saved", "title", d.title, "operation", outcome)

	e.reply(ctx, ev.ChatID, successMessage(d, created))
	return nil
}

func successMessage(d draft, created bool) string {
	verb := "saved"
	if !created {
		verb = "updated"
	}

	category := "uncategorized"
	if d.categoryName != "" {
		category = d.categoryName
	}

	msg := fmt.Sprintf("✅ Movie '%s' %s successfully as %s", d.title, verb, category)
	if d.djName != "" {
		msg += fmt.Sprintf(" (DJ %s)", strings.TrimPrefix(d.djName, "DJ "))
	}
	return msg + "!"
}

// reject re-prompts the current stage without changing it
func (e *Engine) reject(ctx context.Context, ev Event, session *Session, err error) error {
	var verr *ValidationError
	if !errors.As(err, &verr) {
		return e.fail(ctx, ev, session, &StorageError{Op: "validate input", Err: err}, msgStorageFailed)
	}
	e.record(verr.Stage, OutcomeRejected)
	e.touch(ctx, session)
	e.reply(ctx, ev.ChatID, verr.Message)
	return nil
}

// fail reports a backend failure to the user and resets the session
func (e *Engine) fail(ctx context.Context, ev Event, session *Session, serr *StorageError, userMessage string) error {
	if err := e.sessions.Clear(ctx, ev.UserID); err != nil {
		log.Printf("⚠️ [INGEST] Failed to clear session for user %d after error: %v", ev.UserID, err)
	}
	e.record(session.StageName(), OutcomeFailed)
	log.Printf("❌ [INGEST] %v (user %d, stage %s)", serr, ev.UserID, session.StageName())
	e.reply(ctx, ev.ChatID, userMessage)
	return serr
}

// touch refreshes the session's idle timer after a rejected input
func (e *Engine) touch(ctx context.Context, session *Session) {
	if err := e.sessions.Set(ctx, session.advance(session.Stage, e.now())); err != nil {
		log.Printf("⚠️ [INGEST] Failed to refresh session for user %d: %v", session.UserID, err)
	}
}

func (e *Engine) reply(ctx context.Context, chatID int64, text string) {
	if err := e.transport.SendText(ctx, chatID, text); err != nil {
		log.Printf("⚠️ [INGEST] Failed to send message to chat %d: %v", chatID, err)
	}
}

func (e *Engine) prompt(ctx context.Context, chatID int64, text string, choices []string) {
	if err := e.transport.SendChoicePrompt(ctx, chatID, text, choices); err != nil {
		log.Printf("⚠️ [INGEST] Failed to send choices to chat %d: %v", chatID, err)
	}
}

func (e *Engine) record(stage StageName, outcome string) {
	if e.recorder != nil {
		e.recorder.RecordIngestionEvent(string(stage), outcome)
	}
}

func (e *Engine) recordSave(outcome string) {
	if e.recorder != nil {
		e.recorder.RecordMovieSave(outcome)
	}
}

func (e *Engine) logger(session *Session) *slog.Logger {
	return logging.WithIngestion(session.ID, session.UserID, string(session.StageName()))
}

func categoryNames(categories []models.Category) []string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}
	return names
}

func djNames(djs []models.DJ) []string {
	names := make([]string, len(djs))
	for i, d := range djs {
		names[i] = d.Name
	}
	return names
}
