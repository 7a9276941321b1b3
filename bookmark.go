package tradewatch

import (
	"fmt"
	"time"
)

// TargetType identifies what kind of trade identifier a bookmark tracks
type TargetType string

const (
	TargetHSCode TargetType = "HS_CODE"
	TargetCargo  TargetType = "CARGO"
)

// Channel is a notification delivery channel
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
)

// Importance grades an update feed entry
type Importance string

const (
	ImportanceLow    Importance = "LOW"
	ImportanceMedium Importance = "MEDIUM"
	ImportanceHigh   Importance = "HIGH"
)

// FeedTypePolicyUpdate is the feed type written by the monitoring engine
const FeedTypePolicyUpdate = "POLICY_UPDATE"

// Bookmark is a user's persistent interest in a trade identifier,
// paired with per-channel notification opt-ins. Managed by another
// service; the engine treats it as read-only.
type Bookmark struct {
	ID           int64
	UserID       int64
	Type         TargetType
	TargetValue  string
	DisplayName  string
	EmailEnabled bool
	SMSEnabled   bool
}

// MonitoringActive reports whether any notification channel is enabled.
// The engine only loads bookmarks where this holds, and re-checks it
// inside the persist transaction to close the deactivation race.
func (b *Bookmark) MonitoringActive() bool {
	return b.EmailEnabled || b.SMSEnabled
}

// FeedTitle derives the human-readable feed title from the display name
func (b *Bookmark) FeedTitle() string {
	return fmt.Sprintf("'%s'에 대한 새로운 업데이트", b.DisplayName)
}

// UpdateFeed is a durable user-visible record that something changed
// for a bookmarked identifier. Created once per novel finding; never
// updated by the engine.
type UpdateFeed struct {
	ID          int64
	UserID      int64
	FeedType    string
	TargetType  TargetType
	TargetValue string
	Title       string
	Content     string
	Importance  Importance
	CreatedAt   time.Time
}

// ChannelPolicy decides which channels a finding for a bookmark fans
// out to. Injected so callers can resolve user-level notification
// preferences; the default honors the bookmark's own flags.
type ChannelPolicy func(b *Bookmark) []Channel

// BookmarkChannels is the default ChannelPolicy
func BookmarkChannels(b *Bookmark) []Channel {
	var channels []Channel
	if b.EmailEnabled {
		channels = append(channels, ChannelEmail)
	}
	if b.SMSEnabled {
		channels = append(channels, ChannelSMS)
	}
	return channels
}

// RunStatus is the outcome class of a monitoring run
type RunStatus string

const (
	RunStatusSuccess            RunStatus = "success"
	RunStatusAlreadyRunning     RunStatus = "already_running"
	RunStatusServiceUnavailable RunStatus = "service_unavailable"
)

// LockStatus reports whether this run held the single-flight lock
type LockStatus string

const (
	LockAcquired    LockStatus = "acquired"
	LockNotAcquired LockStatus = "not_acquired"
)

// RunSummary is returned to the trigger surface after every run
type RunSummary struct {
	Status             RunStatus  `json:"status"`
	MonitoredBookmarks int        `json:"monitored_bookmarks"`
	UpdatesFound       int        `json:"updates_found"`
	LockStatus         LockStatus `json:"lock_status"`
}
