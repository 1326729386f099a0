package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cyrus-trixie/djmoviestore/internal/models"
)

// fakeCatalog is an in-memory catalog keyed by video link
type fakeCatalog struct {
	mu         sync.Mutex
	categories []models.Category
	djs        []models.DJ
	movies     map[string]models.MovieUpsert
	ids        map[string]int64
	nextID     int64
	upserts    int
	failUpsert error
	failList   error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		movies: make(map[string]models.MovieUpsert),
		ids:    make(map[string]int64),
	}
}

func (c *fakeCatalog) withCategories(names ...string) *fakeCatalog {
	for i, name := range names {
		c.categories = append(c.categories, models.Category{ID: int64(i + 1), Name: name})
	}
	return c
}

func (c *fakeCatalog) withDJs(names ...string) *fakeCatalog {
	for i, name := range names {
		c.djs = append(c.djs, models.DJ{ID: int64(i + 100), Name: name})
	}
	return c
}

func (c *fakeCatalog) FindMovieIDByVideoLink(ctx context.Context, videoLink string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.ids[videoLink]
	return id, ok, nil
}

func (c *fakeCatalog) UpsertMovie(ctx context.Context, movie models.MovieUpsert) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failUpsert != nil {
		return 0, false, c.failUpsert
	}
	c.upserts++
	if id, ok := c.ids[movie.VideoLink]; ok {
		existing := c.movies[movie.VideoLink]
		movie.SubmitterID = existing.SubmitterID
		c.movies[movie.VideoLink] = movie
		return id, false, nil
	}
	c.nextID++
	c.ids[movie.VideoLink] = c.nextID
	c.movies[movie.VideoLink] = movie
	return c.nextID, true, nil
}

func (c *fakeCatalog) ListCategories(ctx context.Context) ([]models.Category, error) {
	if c.failList != nil {
		return nil, c.failList
	}
	return c.categories, nil
}

func (c *fakeCatalog) ListDJs(ctx context.Context) ([]models.DJ, error) {
	if c.failList != nil {
		return nil, c.failList
	}
	return c.djs, nil
}

func (c *fakeCatalog) ResolveCategoryID(ctx context.Context, name string) (int64, bool, error) {
	for _, cat := range c.categories {
		if cat.Name == name {
			return cat.ID, true, nil
		}
	}
	return 0, false, nil
}

func (c *fakeCatalog) ResolveDJID(ctx context.Context, name string) (int64, bool, error) {
	for _, dj := range c.djs {
		if dj.Name == name {
			return dj.ID, true, nil
		}
	}
	return 0, false, nil
}

type sentMessage struct {
	chatID  int64
	text    string
	choices []string
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (t *fakeTransport) SendText(ctx context.Context, chatID int64, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (t *fakeTransport) SendChoicePrompt(ctx context.Context, chatID int64, text string, choices []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, sentMessage{chatID: chatID, text: text, choices: choices})
	return nil
}

func (t *fakeTransport) last() sentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sent) == 0 {
		return sentMessage{}
	}
	return t.sent[len(t.sent)-1]
}

type fakeRecorder struct {
	mu     sync.Mutex
	events map[string]int
	saves  map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{events: make(map[string]int), saves: make(map[string]int)}
}

func (r *fakeRecorder) RecordIngestionEvent(stage string, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[stage+"/"+outcome]++
}

func (r *fakeRecorder) RecordMovieSave(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves[outcome]++
}

type fakeResolver struct {
	known map[string]string
}

func (r *fakeResolver) ResolveURL(ctx context.Context, ref string) (string, error) {
	if url, ok := r.known[ref]; ok {
		return url, nil
	}
	return "", errors.New("file not found")
}

type harness struct {
	engine    *Engine
	catalog   *fakeCatalog
	transport *fakeTransport
	sessions  *MemorySessionStore
	recorder  *fakeRecorder
}

func newHarness(catalog *fakeCatalog) *harness {
	h := &harness{
		catalog:   catalog,
		transport: &fakeTransport{},
		sessions:  NewMemorySessionStore(time.Hour),
		recorder:  newFakeRecorder(),
	}
	h.engine = NewEngine(h.catalog, h.sessions, h.transport, Options{Recorder: h.recorder})
	return h
}

const testUser int64 = 42

func textEvent(text string) Event {
	return Event{UserID: testUser, ChatID: testUser, Text: text}
}

func imageEvent() Event {
	return Event{
		UserID: testUser,
		ChatID: testUser,
		Images: []ImageVariant{
			{FileID: "poster-small", Width: 90, Height: 90},
			{FileID: "poster-large", Width: 1280, Height: 720},
			{FileID: "poster-medium", Width: 320, Height: 180},
		},
	}
}

func (h *harness) send(t *testing.T, ev Event) {
	t.Helper()
	if err := h.engine.Handle(context.Background(), ev); err != nil {
		var serr *StorageError
		if !errors.As(err, &serr) {
			t.Fatalf("Handle returned unexpected error: %v", err)
		}
	}
}

func (h *harness) stage(t *testing.T) StageName {
	t.Helper()
	stage, err := h.engine.Stage(context.Background(), testUser)
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	return stage
}

func TestEngine_FullScenario(t *testing.T) {
	h := newHarness(newFakeCatalog().withCategories("Action", "Comedy").withDJs("DJ Afro", "DJ Spin"))

	h.send(t, textEvent("/addmovie"))
	if h.stage(t) != StageAwaitingMediaReference {
		t.Fatalf("Expected awaiting_media_reference, got %s", h.stage(t))
	}

	h.send(t, textEvent("https://cdn.example/a.mp4"))
	if h.stage(t) != StageAwaitingTitle {
		t.Fatalf("Expected awaiting_title, got %s", h.stage(t))
	}

	h.send(t, textEvent("  Test Movie  "))
	if h.stage(t) != StageAwaitingPoster {
		t.Fatalf("Expected awaiting_poster, got %s", h.stage(t))
	}

	h.send(t, imageEvent())
	if h.stage(t) != StageAwaitingCategory {
		t.Fatalf("Expected awaiting_category, got %s", h.stage(t))
	}
	if got := h.transport.last().choices; len(got) != 2 || got[0] != "Action" {
		t.Errorf("Expected category choices, got %v", got)
	}

	h.send(t, textEvent("Action"))
	if h.stage(t) != StageAwaitingDJ {
		t.Fatalf("Expected awaiting_dj, got %s", h.stage(t))
	}
	if got := h.transport.last().choices; len(got) != 2 || got[1] != "DJ Spin" {
		t.Errorf("Expected DJ choices, got %v", got)
	}

	h.send(t, textEvent("DJ Spin"))
	if h.stage(t) != StageIdle {
		t.Fatalf("Expected idle after save, got %s", h.stage(t))
	}

	if len(h.catalog.movies) != 1 {
		t.Fatalf("Expected exactly one movie, got %d", len(h.catalog.movies))
	}
	movie := h.catalog.movies["https://cdn.example/a.mp4"]
	if movie.Title != "Test Movie" {
		t.Errorf("Expected trimmed title, got %q", movie.Title)
	}
	if movie.PosterFileID != "poster-large" {
		t.Errorf("Expected highest resolution poster, got %q", movie.PosterFileID)
	}
	if movie.CategoryID == nil || *movie.CategoryID != 1 {
		t.Errorf("Expected Action category id 1, got %v", movie.CategoryID)
	}
	if movie.DJID == nil || *movie.DJID != 101 {
		t.Errorf("Expected DJ Spin id 101, got %v", movie.DJID)
	}
	if movie.SubmitterID != testUser {
		t.Errorf("Expected submitter %d, got %d", testUser, movie.SubmitterID)
	}

	msg := h.transport.last().text
	if !strings.Contains(msg, "Test Movie") || !strings.Contains(msg, "Action") || !strings.Contains(msg, "Spin") {
		t.Errorf("Success message should name title, category and DJ: %q", msg)
	}
	if h.recorder.saves["created"] != 1 {
		t.Errorf("Expected one created save, got %v", h.recorder.saves)
	}

	count, _ := h.sessions.Count(context.Background())
	if count != 0 {
		t.Errorf("Expected no residual sessions, got %d", count)
	}
}

func runIngestion(t *testing.T, h *harness, link, title, category, dj string) {
	t.Helper()
	h.send(t, textEvent("/addmovie"))
	h.send(t, textEvent(link))
	h.send(t, textEvent(title))
	h.send(t, imageEvent())
	if category != "" {
		h.send(t, textEvent(category))
	}
	if dj != "" {
		h.send(t, textEvent(dj))
	}
}

func TestEngine_SameMediaReferenceUpdates(t *testing.T) {
	h := newHarness(newFakeCatalog().withCategories("Action", "Comedy").withDJs("DJ Spin"))

	runIngestion(t, h, "https://cdn.example/a.mp4", "First Title", "Action", "DJ Spin")
	runIngestion(t, h, "https://cdn.example/a.mp4", "Second Title", "Comedy", "DJ Spin")

	if len(h.catalog.movies) != 1 {
		t.Fatalf("Expected one movie after resubmission, got %d", len(h.catalog.movies))
	}
	movie := h.catalog.movies["https://cdn.example/a.mp4"]
	if movie.Title != "Second Title" {
		t.Errorf("Expected second run's title, got %q", movie.Title)
	}
	if movie.CategoryID == nil || *movie.CategoryID != 2 {
		t.Errorf("Expected second run's category, got %v", movie.CategoryID)
	}
	if h.recorder.saves["created"] != 1 || h.recorder.saves["updated"] != 1 {
		t.Errorf("Expected one create and one update, got %v", h.recorder.saves)
	}
	if !strings.Contains(h.transport.last().text, "updated") {
		t.Errorf("Expected update confirmation, got %q", h.transport.last().text)
	}
}

func TestEngine_WarnsWhenAlreadyInCatalog(t *testing.T) {
	h := newHarness(newFakeCatalog())
	runIngestion(t, h, "https://cdn.example/a.mp4", "First", "", "")

	h.send(t, textEvent("/addmovie"))
	h.send(t, textEvent("https://cdn.example/a.mp4"))

	found := false
	for _, m := range h.transport.sent {
		if m.text == msgAlreadyInCatalog {
			found = true
		}
	}
	if !found {
		t.Error("Expected an already-in-catalog notice")
	}
	if h.stage(t) != StageAwaitingTitle {
		t.Errorf("Duplicate reference should still advance, got %s", h.stage(t))
	}
}

func TestEngine_RejectsBlankTitle(t *testing.T) {
	h := newHarness(newFakeCatalog())
	h.send(t, textEvent("/addmovie"))
	h.send(t, textEvent("https://cdn.example/a.mp4"))

	for _, title := range []string{"", "   ", "\t\n"} {
		h.send(t, textEvent(title))
		if h.stage(t) != StageAwaitingTitle {
			t.Fatalf("Blank title %q should not advance, got %s", title, h.stage(t))
		}
		if h.transport.last().text != msgTitleRequired {
			t.Errorf("Expected title required prompt, got %q", h.transport.last().text)
		}
	}
}

func TestEngine_RejectsInvalidMediaReference(t *testing.T) {
	h := newHarness(newFakeCatalog())
	h.send(t, textEvent("/addmovie"))

	h.send(t, textEvent("   "))
	if h.stage(t) != StageAwaitingMediaReference {
		t.Fatalf("Blank reference should not advance, got %s", h.stage(t))
	}

	h.send(t, imageEvent())
	if h.stage(t) != StageAwaitingMediaReference {
		t.Fatalf("Image should not be accepted as video, got %s", h.stage(t))
	}
}

func TestEngine_RejectsOverlongMediaReference(t *testing.T) {
	h := newHarness(newFakeCatalog())
	h.send(t, textEvent("/addmovie"))

	long := "https://cdn.example/" + strings.Repeat("a", maxMediaReferenceLength)
	h.send(t, textEvent(long))
	if h.stage(t) != StageAwaitingMediaReference {
		t.Fatalf("Overlong link should not advance, got %s", h.stage(t))
	}
	if h.transport.last().text != msgMediaReferenceTooLong {
		t.Errorf("Expected link too long prompt, got %q", h.transport.last().text)
	}

	fits := "https://cdn.example/" + strings.Repeat("a", maxMediaReferenceLength-len("https://cdn.example/"))
	h.send(t, textEvent(fits))
	if h.stage(t) != StageAwaitingTitle {
		t.Errorf("Link at the column limit should be accepted, got %s", h.stage(t))
	}
}

func TestEngine_CommandsAreCaseSensitive(t *testing.T) {
	h := newHarness(newFakeCatalog())

	h.send(t, textEvent("/ADDMOVIE"))
	if h.stage(t) != StageIdle {
		t.Fatalf("Upper-case command should not start ingestion, got %s", h.stage(t))
	}
	if h.transport.last().text != msgUnknownCmd {
		t.Errorf("Expected unknown command reply, got %q", h.transport.last().text)
	}
}

func TestEngine_AcceptsOpaqueReferenceAndAttachment(t *testing.T) {
	h := newHarness(newFakeCatalog())
	h.send(t, textEvent("/addmovie"))
	h.send(t, textEvent("BAACAgQAAxkBAAIB"))
	if h.stage(t) != StageAwaitingTitle {
		t.Fatalf("Opaque reference should be accepted, got %s", h.stage(t))
	}

	h.send(t, textEvent("/addmovie"))
	h.send(t, Event{UserID: testUser, ChatID: testUser, Attachment: &Attachment{FileID: "video-file-1", MimeType: "video/mp4"}})
	h.send(t, textEvent("From File"))
	h.send(t, imageEvent())

	if _, ok := h.catalog.movies["video-file-1"]; !ok {
		t.Errorf("Expected movie keyed by attachment file id, got %v", h.catalog.movies)
	}
}

func TestEngine_VerifiesOpaqueReferences(t *testing.T) {
	catalog := newFakeCatalog()
	transport := &fakeTransport{}
	sessions := NewMemorySessionStore(time.Hour)
	engine := NewEngine(catalog, sessions, transport, Options{
		Resolver:              &fakeResolver{known: map[string]string{"good-ref": "https://files.example/good"}},
		VerifyMediaReferences: true,
	})
	ctx := context.Background()

	_ = engine.Handle(ctx, textEvent("/addmovie"))
	_ = engine.Handle(ctx, textEvent("typo-ref"))
	if stage, _ := engine.Stage(ctx, testUser); stage != StageAwaitingMediaReference {
		t.Fatalf("Unknown reference should be rejected, got %s", stage)
	}
	if transport.last().text != msgUnknownMediaReference {
		t.Errorf("Expected unknown reference prompt, got %q", transport.last().text)
	}

	_ = engine.Handle(ctx, textEvent("good-ref"))
	if stage, _ := engine.Stage(ctx, testUser); stage != StageAwaitingTitle {
		t.Fatalf("Known reference should be accepted, got %s", stage)
	}

	// Direct URLs bypass verification
	_ = engine.Handle(ctx, textEvent("/addmovie"))
	_ = engine.Handle(ctx, textEvent("https://cdn.example/b.mp4"))
	if stage, _ := engine.Stage(ctx, testUser); stage != StageAwaitingTitle {
		t.Fatalf("URL should be accepted without verification, got %s", stage)
	}
}

func TestEngine_InvalidCategoryStaysPut(t *testing.T) {
	h := newHarness(newFakeCatalog().withCategories("Action", "Comedy").withDJs("DJ Spin"))
	h.send(t, textEvent("/addmovie"))
	h.send(t, textEvent("https://cdn.example/a.mp4"))
	h.send(t, textEvent("Test Movie"))
	h.send(t, imageEvent())

	for _, input := range []string{"action", "Horror", " Action", ""} {
		h.send(t, textEvent(input))
		if h.stage(t) != StageAwaitingCategory {
			t.Fatalf("Input %q should not advance, got %s", input, h.stage(t))
		}
		last := h.transport.last()
		if last.text != msgInvalidCategory || len(last.choices) != 2 {
			t.Errorf("Expected invalid category re-prompt with choices, got %+v", last)
		}
	}

	if h.catalog.upserts != 0 {
		t.Errorf("Invalid category must not persist, got %d upserts", h.catalog.upserts)
	}
}

func TestEngine_InvalidDJStaysPut(t *testing.T) {
	h := newHarness(newFakeCatalog().withCategories("Action").withDJs("DJ Spin"))
	h.send(t, textEvent("/addmovie"))
	h.send(t, textEvent("https://cdn.example/a.mp4"))
	h.send(t, textEvent("Test Movie"))
	h.send(t, imageEvent())
	h.send(t, textEvent("Action"))

	h.send(t, textEvent("dj spin"))
	if h.stage(t) != StageAwaitingDJ {
		t.Fatalf("Expected to stay at awaiting_dj, got %s", h.stage(t))
	}
	if h.catalog.upserts != 0 {
		t.Errorf("Invalid DJ must not persist, got %d upserts", h.catalog.upserts)
	}
	if h.recorder.events["awaiting_dj/invalid_choice"] != 1 {
		t.Errorf("Expected invalid choice recorded, got %v", h.recorder.events)
	}
}

func TestEngine_NoCategoriesFinalizesAtPoster(t *testing.T) {
	h := newHarness(newFakeCatalog())
	h.send(t, textEvent("/addmovie"))
	h.send(t, textEvent("https://cdn.example/a.mp4"))
	h.send(t, textEvent("Test Movie"))
	h.send(t, imageEvent())

	if h.stage(t) != StageIdle {
		t.Fatalf("Expected idle after poster with no categories, got %s", h.stage(t))
	}
	movie, ok := h.catalog.movies["https://cdn.example/a.mp4"]
	if !ok {
		t.Fatal("Expected movie to be saved")
	}
	if movie.CategoryID != nil || movie.DJID != nil {
		t.Errorf("Expected null category and DJ, got %v %v", movie.CategoryID, movie.DJID)
	}
}

func TestEngine_NoDJsFinalizesAtCategory(t *testing.T) {
	h := newHarness(newFakeCatalog().withCategories("Action"))
	h.send(t, textEvent("/addmovie"))
	h.send(t, textEvent("https://cdn.example/a.mp4"))
	h.send(t, textEvent("Test Movie"))
	h.send(t, imageEvent())
	h.send(t, textEvent("Action"))

	if h.stage(t) != StageIdle {
		t.Fatalf("Expected idle after category with no DJs, got %s", h.stage(t))
	}
	movie := h.catalog.movies["https://cdn.example/a.mp4"]
	if movie.CategoryID == nil || *movie.CategoryID != 1 {
		t.Errorf("Expected category 1, got %v", movie.CategoryID)
	}
	if movie.DJID != nil {
		t.Errorf("Expected null DJ, got %v", *movie.DJID)
	}
}

func TestEngine_CancelFromEveryStage(t *testing.T) {
	steps := []Event{
		textEvent("https://cdn.example/a.mp4"),
		textEvent("Canceled Title"),
		imageEvent(),
		textEvent("Action"),
	}

	for depth := 0; depth <= len(steps); depth++ {
		t.Run(fmt.Sprintf("after_%d_steps", depth), func(t *testing.T) {
			h := newHarness(newFakeCatalog().withCategories("Action").withDJs("DJ Spin"))
			h.send(t, textEvent("/addmovie"))
			for _, ev := range steps[:depth] {
				h.send(t, ev)
			}

			h.send(t, textEvent("/cancel"))
			if h.stage(t) != StageIdle {
				t.Fatalf("Expected idle after cancel, got %s", h.stage(t))
			}
			if h.transport.last().text != msgCanceled {
				t.Errorf("Expected cancel confirmation, got %q", h.transport.last().text)
			}

			// A fresh run must not see the canceled title
			runIngestion(t, h, "https://cdn.example/b.mp4", "Fresh Title", "Action", "DJ Spin")
			if len(h.catalog.movies) != 1 {
				t.Fatalf("Expected one movie, got %d", len(h.catalog.movies))
			}
			if got := h.catalog.movies["https://cdn.example/b.mp4"].Title; got != "Fresh Title" {
				t.Errorf("Expected fresh title, got %q", got)
			}
		})
	}
}

func TestEngine_RestartDiscardsProgress(t *testing.T) {
	h := newHarness(newFakeCatalog())
	h.send(t, textEvent("/addmovie"))
	h.send(t, textEvent("https://cdn.example/a.mp4"))
	h.send(t, textEvent("/addmovie"))

	if h.stage(t) != StageAwaitingMediaReference {
		t.Fatalf("Restart should reset to awaiting_media_reference, got %s", h.stage(t))
	}

	session, _ := h.sessions.Get(context.Background(), testUser)
	if _, ok := session.Stage.(AwaitingMediaReference); !ok {
		t.Errorf("Expected empty accumulator, got %#v", session.Stage)
	}
}

func TestEngine_IdleInput(t *testing.T) {
	h := newHarness(newFakeCatalog())

	h.send(t, textEvent("hello"))
	if h.transport.last().text != msgIdleHint {
		t.Errorf("Expected idle hint, got %q", h.transport.last().text)
	}

	h.send(t, imageEvent())
	if h.transport.last().text != msgIdleImage {
		t.Errorf("Expected idle image hint, got %q", h.transport.last().text)
	}

	h.send(t, textEvent("/start"))
	if h.transport.last().text != msgWelcome {
		t.Errorf("Expected welcome, got %q", h.transport.last().text)
	}

	h.send(t, textEvent("/cancel"))
	if h.stage(t) != StageIdle {
		t.Errorf("Cancel while idle should stay idle, got %s", h.stage(t))
	}
}

func TestEngine_SaveFailureClearsSession(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.failUpsert = errors.New("connection refused")
	h := newHarness(catalog)

	h.send(t, textEvent("/addmovie"))
	h.send(t, textEvent("https://cdn.example/a.mp4"))
	h.send(t, textEvent("Test Movie"))

	err := h.engine.Handle(context.Background(), imageEvent())
	var serr *StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("Expected StorageError, got %v", err)
	}
	if h.stage(t) != StageIdle {
		t.Errorf("Failed save should clear the session, got %s", h.stage(t))
	}
	if h.transport.last().text != msgSaveFailed {
		t.Errorf("Expected generic failure, got %q", h.transport.last().text)
	}
	if h.recorder.saves["failed"] != 1 {
		t.Errorf("Expected failed save recorded, got %v", h.recorder.saves)
	}
}

func TestEngine_LookupFailureClearsSession(t *testing.T) {
	catalog := newFakeCatalog()
	h := newHarness(catalog)
	h.send(t, textEvent("/addmovie"))
	h.send(t, textEvent("https://cdn.example/a.mp4"))
	h.send(t, textEvent("Test Movie"))

	catalog.failList = errors.New("timeout")
	h.send(t, imageEvent())

	if h.stage(t) != StageIdle {
		t.Errorf("Storage failure should clear the session, got %s", h.stage(t))
	}
	if h.transport.last().text != msgStorageFailed {
		t.Errorf("Expected storage failure message, got %q", h.transport.last().text)
	}
}

func TestEngine_ConcurrentUsers(t *testing.T) {
	catalog := newFakeCatalog().withCategories("Action").withDJs("DJ Spin")
	transport := &fakeTransport{}
	engine := NewEngine(catalog, NewMemorySessionStore(time.Hour), transport, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			link := fmt.Sprintf("https://cdn.example/%d.mp4", user)
			for _, ev := range []Event{
				{Text: "/addmovie"},
				{Text: link},
				{Text: "Movie"},
				{Images: []ImageVariant{{FileID: "p", Width: 1, Height: 1}}},
				{Text: "Action"},
				{Text: "DJ Spin"},
			} {
				ev.UserID, ev.ChatID = user, user
				if err := engine.Handle(ctx, ev); err != nil {
					t.Errorf("user %d: %v", user, err)
				}
			}
		}(i)
	}
	wg.Wait()

	if len(catalog.movies) != 20 {
		t.Errorf("Expected 20 movies, got %d", len(catalog.movies))
	}
}

func TestEvent_Command(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"/addmovie", CommandStartIngestion, true},
		{"  /addmovie  extra", CommandStartIngestion, true},
		{"/ADDMOVIE", "/ADDMOVIE", true},
		{"/cancel@DJMovieBot", CommandCancel, true},
		{"https://cdn.example/a.mp4", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := Event{Text: tt.text}.Command()
		if got != tt.want || ok != tt.ok {
			t.Errorf("Command(%q) = %q, %v; want %q, %v", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLargestImage(t *testing.T) {
	images := []ImageVariant{
		{FileID: "a", Width: 100, Height: 100},
		{FileID: "b", Width: 800, Height: 600},
		{FileID: "c", Width: 90, Height: 90},
	}
	if got := largestImage(images).FileID; got != "b" {
		t.Errorf("Expected b, got %s", got)
	}

	single := []ImageVariant{{FileID: "only"}}
	if got := largestImage(single).FileID; got != "only" {
		t.Errorf("Expected only, got %s", got)
	}
}
