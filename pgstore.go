package tradewatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// BookmarkSource lists the bookmarks a monitoring run covers
type BookmarkSource interface {
	ListActiveBookmarks(ctx context.Context) ([]Bookmark, error)
}

// FindingPersister durably records a novel finding for a bookmark.
// Soft aborts (ErrDuplicateFinding, ErrBookmarkInactive) are the
// expected dedup/deactivation paths, not failures.
type FindingPersister interface {
	PersistFinding(ctx context.Context, b *Bookmark, summary string) (*UpdateFeed, error)
}

// DB is the slice of pgxpool.Pool the store needs. Each PersistFinding
// call begins its own transaction so worker-scope failures never touch
// another worker's writes.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store reads bookmarks and writes update feeds in Postgres
type Store struct {
	db     DB
	logger Logger
}

// NewStore creates a store over a pgx pool (or any DB-compatible handle)
func NewStore(db DB, logger Logger) *Store {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &Store{db: db, logger: logger}
}

const listActiveSQL = `
	SELECT id, user_id, type, target_value, display_name, email_enabled, sms_enabled
	FROM bookmarks
	WHERE email_enabled OR sms_enabled`

// ListActiveBookmarks returns every bookmark with at least one
// notification channel enabled
func (s *Store) ListActiveBookmarks(ctx context.Context) ([]Bookmark, error) {
	rows, err := s.db.Query(ctx, listActiveSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list active bookmarks: %w", err)
	}
	defer rows.Close()

	var bookmarks []Bookmark
	for rows.Next() {
		var b Bookmark
		if err := rows.Scan(&b.ID, &b.UserID, &b.Type, &b.TargetValue, &b.DisplayName, &b.EmailEnabled, &b.SMSEnabled); err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		bookmarks = append(bookmarks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading bookmarks: %w", err)
	}

	return bookmarks, nil
}

// PersistFinding writes one update feed row inside its own transaction:
//
//  1. Re-read the bookmark's channel flags; a bookmark deactivated
//     after load must not produce a feed row.
//  2. Skip if an identical (user_id, target_value, content) row exists.
//  3. Insert the feed row and return it with its generated id and
//     created_at.
//
// Steps 1 and 2 abort with ErrBookmarkInactive / ErrDuplicateFinding.
func (s *Store) PersistFinding(ctx context.Context, b *Bookmark, summary string) (*UpdateFeed, error) {
	if summary == "" {
		return nil, fmt.Errorf("refusing to persist empty summary for bookmark %d", b.ID)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin persist transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Freshness re-read closes the load-to-persist race window.
	var emailEnabled, smsEnabled bool
	err = tx.QueryRow(ctx,
		`SELECT email_enabled, sms_enabled FROM bookmarks WHERE id = $1`,
		b.ID,
	).Scan(&emailEnabled, &smsEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		// Deleted counts the same as deactivated.
		return nil, WithContext(ErrBookmarkInactive, map[string]interface{}{
			"bookmark_id": b.ID,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to re-read bookmark %d: %w", b.ID, err)
	}
	if !emailEnabled && !smsEnabled {
		return nil, WithContext(ErrBookmarkInactive, map[string]interface{}{
			"bookmark_id": b.ID,
		})
	}
	b.EmailEnabled, b.SMSEnabled = emailEnabled, smsEnabled

	var exists int
	err = tx.QueryRow(ctx,
		`SELECT 1 FROM update_feeds WHERE user_id = $1 AND target_value = $2 AND content = $3 LIMIT 1`,
		b.UserID, b.TargetValue, summary,
	).Scan(&exists)
	if err == nil {
		return nil, WithContext(ErrDuplicateFinding, map[string]interface{}{
			"bookmark_id":  b.ID,
			"target_value": b.TargetValue,
		})
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed dedup lookup for bookmark %d: %w", b.ID, err)
	}

	feed := &UpdateFeed{
		UserID:      b.UserID,
		FeedType:    FeedTypePolicyUpdate,
		TargetType:  b.Type,
		TargetValue: b.TargetValue,
		Title:       b.FeedTitle(),
		Content:     summary,
		Importance:  ImportanceMedium,
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO update_feeds (user_id, feed_type, target_type, target_value, title, content, importance)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		feed.UserID, feed.FeedType, feed.TargetType, feed.TargetValue, feed.Title, feed.Content, feed.Importance,
	).Scan(&feed.ID, &feed.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert update feed for bookmark %d: %w", b.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit update feed for bookmark %d: %w", b.ID, err)
	}

	s.logger.Debug("update feed persisted",
		"bookmark_id", b.ID,
		"feed_id", feed.ID,
		"target_value", feed.TargetValue,
	)
	return feed, nil
}
