package tradewatch

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// recordingLogger captures log calls for assertions
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level  string
	msg    string
	fields map[string]interface{}
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{}
}

func (l *recordingLogger) record(level, msg string, fields ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m := make(map[string]interface{})
	for i := 0; i+1 < len(fields); i += 2 {
		if k, ok := fields[i].(string); ok {
			m[k] = fields[i+1]
		}
	}
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: m})
}

func (l *recordingLogger) Debug(msg string, fields ...interface{}) { l.record("debug", msg, fields...) }
func (l *recordingLogger) Info(msg string, fields ...interface{})  { l.record("info", msg, fields...) }
func (l *recordingLogger) Warn(msg string, fields ...interface{})  { l.record("warn", msg, fields...) }
func (l *recordingLogger) Error(msg string, fields ...interface{}) { l.record("error", msg, fields...) }

// find returns the first entry at the given level whose fields contain
// the given key, or nil
func (l *recordingLogger) find(level, key string) *logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		e := &l.entries[i]
		if e.level != level {
			continue
		}
		if _, ok := e.fields[key]; ok {
			return e
		}
	}
	return nil
}

// fakeDetector returns scripted detections per target value
type fakeDetector struct {
	mu      sync.Mutex
	calls   map[string]int
	respond func(target string, call int) (Detection, error)
}

func newFakeDetector(respond func(target string, call int) (Detection, error)) *fakeDetector {
	return &fakeDetector{
		calls:   make(map[string]int),
		respond: respond,
	}
}

func (d *fakeDetector) Detect(ctx context.Context, target string) (Detection, error) {
	d.mu.Lock()
	d.calls[target]++
	call := d.calls[target]
	d.mu.Unlock()
	return d.respond(target, call)
}

func (d *fakeDetector) callCount(target string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[target]
}

// memPersister simulates the persister's transactional checks in
// memory: a mutable active set for the deactivation race and a dedup
// set keyed like the feed table
type memPersister struct {
	mu       sync.Mutex
	nextID   int64
	inactive map[int64]bool
	seen     map[string]bool
	feeds    []*UpdateFeed
	failWith error
}

func newMemPersister() *memPersister {
	return &memPersister{
		nextID:   1,
		inactive: make(map[int64]bool),
		seen:     make(map[string]bool),
	}
}

func (p *memPersister) deactivate(bookmarkID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inactive[bookmarkID] = true
}

func (p *memPersister) PersistFinding(ctx context.Context, b *Bookmark, summary string) (*UpdateFeed, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failWith != nil {
		return nil, p.failWith
	}
	if p.inactive[b.ID] {
		return nil, ErrBookmarkInactive
	}
	key := dedupKey(b.UserID, b.TargetValue, summary)
	if p.seen[key] {
		return nil, ErrDuplicateFinding
	}
	p.seen[key] = true

	feed := &UpdateFeed{
		ID:          p.nextID,
		UserID:      b.UserID,
		FeedType:    FeedTypePolicyUpdate,
		TargetType:  b.Type,
		TargetValue: b.TargetValue,
		Title:       b.FeedTitle(),
		Content:     summary,
		Importance:  ImportanceMedium,
		CreatedAt:   time.Now(),
	}
	p.nextID++
	p.feeds = append(p.feeds, feed)
	return feed, nil
}

func (p *memPersister) feedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.feeds)
}

func dedupKey(userID int64, target, content string) string {
	return fmt.Sprintf("%d|%s|%s", userID, target, content)
}

// staticSource serves a fixed bookmark list
type staticSource struct {
	bookmarks []Bookmark
	err       error
}

func (s *staticSource) ListActiveBookmarks(ctx context.Context) ([]Bookmark, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.bookmarks, nil
}

// noWaitGate is an UpstreamGate that never blocks
type noWaitGate struct{}

func (noWaitGate) Acquire(ctx context.Context) error { return ctx.Err() }

// fastRetry is a retry policy with negligible backoff for tests
func fastRetry() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		MinBackoff:    1,
		MaxBackoff:    2,
		Multiplier:    1,
		JitterPercent: 0,
	}
}
