package ingestion

// StageName identifies where a conversation is in the ingestion flow
type StageName string

const (
	StageIdle                   StageName = "idle"
	StageAwaitingMediaReference StageName = "awaiting_media_reference"
	StageAwaitingTitle          StageName = "awaiting_title"
	StageAwaitingPoster         StageName = "awaiting_poster"
	StageAwaitingCategory       StageName = "awaiting_category"
	StageAwaitingDJ             StageName = "awaiting_dj"
)

// Stage is the state of an active session. Each implementation carries exactly
// the fields collected before it, so later fields cannot be read early.
type Stage interface {
	Name() StageName
	isStage()
}

// AwaitingMediaReference waits for the video link or file reference
type AwaitingMediaReference struct{}

// AwaitingTitle waits for the movie title
type AwaitingTitle struct {
	MediaReference string
}

// AwaitingPoster waits for the poster image
type AwaitingPoster struct {
	MediaReference string
	Title          string
}

// AwaitingCategory waits for a category name from the offered list
type AwaitingCategory struct {
	MediaReference  string
	Title           string
	PosterReference string
}

// AwaitingDJ waits for a DJ name from the offered list
type AwaitingDJ struct {
	MediaReference  string
	Title           string
	PosterReference string
	CategoryID      int64
	CategoryName    string
}

func (AwaitingMediaReference) Name() StageName { return StageAwaitingMediaReference }
func (AwaitingTitle) Name() StageName          { return StageAwaitingTitle }
func (AwaitingPoster) Name() StageName         { return StageAwaitingPoster }
func (AwaitingCategory) Name() StageName       { return StageAwaitingCategory }
func (AwaitingDJ) Name() StageName             { return StageAwaitingDJ }

func (AwaitingMediaReference) isStage() {}
func (AwaitingTitle) isStage()          {}
func (AwaitingPoster) isStage()         {}
func (AwaitingCategory) isStage()       {}
func (AwaitingDJ) isStage()             {}
