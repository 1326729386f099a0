package ingestion

import (
	"encoding/json"
	"fmt"
	"time"
)

// Session is one user's in-progress ingestion conversation
type Session struct {
	ID        string
	UserID    int64
	ChatID    int64
	Stage     Stage
	StartedAt time.Time
	UpdatedAt time.Time
}

// StageName returns the session's stage, or StageIdle for a nil session
func (s *Session) StageName() StageName {
	if s == nil || s.Stage == nil {
		return StageIdle
	}
	return s.Stage.Name()
}

// advance returns a copy of the session moved to the next stage
func (s *Session) advance(next Stage, now time.Time) *Session {
	cp := *s
	cp.Stage = next
	cp.UpdatedAt = now
	return &cp
}

// sessionRecord is the flat wire form used by external session stores
type sessionRecord struct {
	ID              string    `json:"id"`
	UserID          int64     `json:"user_id"`
	ChatID          int64     `json:"chat_id"`
	Stage           StageName `json:"stage"`
	MediaReference  string    `json:"media_reference,omitempty"`
	Title           string    `json:"title,omitempty"`
	PosterReference string    `json:"poster_reference,omitempty"`
	CategoryID      int64     `json:"category_id,omitempty"`
	CategoryName    string    `json:"category_name,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MarshalJSON flattens the stage variant into a record
func (s *Session) MarshalJSON() ([]byte, error) {
	rec := sessionRecord{
		ID:        s.ID,
		UserID:    s.UserID,
		ChatID:    s.ChatID,
		Stage:     s.StageName(),
		StartedAt: s.StartedAt,
		UpdatedAt: s.UpdatedAt,
	}

	switch st := s.Stage.(type) {
	case AwaitingMediaReference:
	case AwaitingTitle:
		rec.MediaReference = st.MediaReference
	case AwaitingPoster:
		rec.MediaReference = st.MediaReference
		rec.Title = st.Title
	case AwaitingCategory:
		rec.MediaReference = st.MediaReference
		rec.Title = st.Title
		rec.PosterReference = st.PosterReference
	case AwaitingDJ:
		rec.MediaReference = st.MediaReference
		rec.Title = st.Title
		rec.PosterReference = st.PosterReference
		rec.CategoryID = st.CategoryID
		rec.CategoryName = st.CategoryName
	default:
		return nil, fmt.Errorf("cannot encode session in stage %s", rec.Stage)
	}

	return json.Marshal(rec)
}

// UnmarshalJSON rebuilds the stage variant and rejects records missing
// fields their stage requires
func (s *Session) UnmarshalJSON(data []byte) error {
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	var stage Stage
	switch rec.Stage {
	case StageAwaitingMediaReference:
		stage = AwaitingMediaReference{}
	case StageAwaitingTitle:
		stage = AwaitingTitle{MediaReference: rec.MediaReference}
	case StageAwaitingPoster:
		stage = AwaitingPoster{MediaReference: rec.MediaReference, Title: rec.Title}
	case StageAwaitingCategory:
		stage = AwaitingCategory{
			MediaReference:  rec.MediaReference,
			Title:           rec.Title,
			PosterReference: rec.PosterReference,
		}
	case StageAwaitingDJ:
		stage = AwaitingDJ{
			MediaReference:  rec.MediaReference,
			Title:           rec.Title,
			PosterReference: rec.PosterReference,
			CategoryID:      rec.CategoryID,
			CategoryName:    rec.CategoryName,
		}
	default:
		return fmt.Errorf("unknown session stage %q", rec.Stage)
	}

	if rec.Stage != StageAwaitingMediaReference && rec.MediaReference == "" {
		return fmt.Errorf("session in stage %s is missing media_reference", rec.Stage)
	}
	if (rec.Stage == StageAwaitingPoster || rec.Stage == StageAwaitingCategory || rec.Stage == StageAwaitingDJ) && rec.Title == "" {
		return fmt.Errorf("session in stage %s is missing title", rec.Stage)
	}
	if (rec.Stage == StageAwaitingCategory || rec.Stage == StageAwaitingDJ) && rec.PosterReference == "" {
		return fmt.Errorf("session in stage %s is missing poster_reference", rec.Stage)
	}
	if rec.Stage == StageAwaitingDJ && rec.CategoryID == 0 {
		return fmt.Errorf("session in stage %s is missing category_id", rec.Stage)
	}

	*s = Session{
		ID:        rec.ID,
		UserID:    rec.UserID,
		ChatID:    rec.ChatID,
		Stage:     stage,
		StartedAt: rec.StartedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	return nil
}
