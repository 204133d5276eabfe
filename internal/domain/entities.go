package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Language is a BCP-47-ish story/UI language code ("en", "ta", "hi", ...)
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageTamil   Language = "ta"
	LanguageHindi   Language = "hi"
)

// Audience distinguishes the kids and adults content catalogs
type Audience string

const (
	AudienceKids   Audience = "kids"
	AudienceAdults Audience = "adults"
)

// StoryID is a server-assigned 64-bit story identifier.
//
// IDs travel as decimal strings in every JSON document (wire and local
// store) because JSON numbers cannot hold the full 64-bit range. A bare
// number is still accepted on decode for older records.
type StoryID int64

// MarshalJSON encodes the ID as a decimal string
func (id StoryID) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatInt(int64(id), 10))
}

// UnmarshalJSON decodes either a decimal string or a bare number
func (id *StoryID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, perr := strconv.ParseInt(s, 10, 64)
		if perr != nil {
			return fmt.Errorf("invalid story id %q: %w", s, perr)
		}
		*id = StoryID(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid story id %s", data)
	}
	*id = StoryID(n)
	return nil
}

func (id StoryID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseStoryID parses a decimal string identifier
func ParseStoryID(s string) (StoryID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid story id %q: %w", s, err)
	}
	return StoryID(n), nil
}

// Story is a readable item in the catalog
type Story struct {
	ID          StoryID  `json:"id"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Language    Language `json:"language"`
	Audience    Audience `json:"audience"`
	Category    string   `json:"category"`
	Summary     string   `json:"summary"`
	Content     string   `json:"content"`
	CoverURL    string   `json:"coverUrl"`
	ReadMinutes int      `json:"readMinutes"`
	AddedAt     int64    `json:"addedAt"`   // Unix timestamp when published
	UpdatedAt   int64    `json:"updatedAt"` // Unix timestamp when last edited
}

// HistoryEntry records one reading session of a story
type HistoryEntry struct {
	StoryID   StoryID `json:"storyId"`
	Timestamp int64   `json:"timestamp"`
	Progress  float64 `json:"progress"` // 0.0 .. 1.0
}

// Preferences holds per-user reading preferences. All fields are merged as
// a nested sub-object patch: changing one never clobbers its siblings.
type Preferences struct {
	Language   Language `json:"language"`
	Mode       Audience `json:"mode"`
	FontSize   int      `json:"fontSize"`
	Background string   `json:"background"`
	AutoScroll bool     `json:"autoScroll"`
	Categories []string `json:"categories"`
}

// DefaultPreferences returns the preferences for a fresh install
func DefaultPreferences() Preferences {
	return Preferences{
		Language:   LanguageEnglish,
		Mode:       AudienceKids,
		FontSize:   16,
		Background: "default",
	}
}

// Profile holds a user's public-facing details
type Profile struct {
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
	Bio         string `json:"bio"`
}

// DraftTTL is how long a guest-authored draft survives before lazy pruning
// removes it.
const DraftTTL = 24 * time.Hour

// Draft is an authored story that has not been submitted yet. Guest drafts
// expire DraftTTL after creation.
type Draft struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Language  Language `json:"language"`
	CreatedAt int64    `json:"createdAt"`
	ExpiresAt int64    `json:"expiresAt"`
}

// Expired reports whether the draft is past its expiry at the given time
func (d Draft) Expired(now time.Time) bool {
	return d.ExpiresAt > 0 && now.Unix() >= d.ExpiresAt
}

// UserRecord is the full per-user record the remote service owns. Writes
/// are full-record replaces: callers read the current record, merge their
// patch, and write the union back.
type UserRecord struct {
	Favorites   []StoryID      `json:"favorites"`
	History     []HistoryEntry `json:"history"`
	Preferences Preferences    `json:"preferences"`
	Profile     Profile        `json:"profile"`
}

// EngagementStats tracks the device-scoped streak/badge/share counters
type EngagementStats struct {
	CurrentStreak int      `json:"currentStreak"`
	BestStreak    int      `json:"bestStreak"`
	LastReadDay   string   `json:"lastReadDay"` // YYYY-MM-DD in local time
	Badges        []string `json:"badges"`
	ShareCount    int      `json:"shareCount"`
}

// SocialOverlay is the per-story local overlay of social interactions
type SocialOverlay struct {
	Liked  bool `json:"liked"`
	Shares int  `json:"shares"`
}
