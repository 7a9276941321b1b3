package tradewatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/redis/go-redis/v9"
)

// countingSource tracks how often the bookmark list was loaded
type countingSource struct {
	bookmarks []Bookmark
	err       error
	calls     atomic.Int64
}

func (s *countingSource) ListActiveBookmarks(ctx context.Context) ([]Bookmark, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.bookmarks, nil
}

func monitoredBookmarks() []Bookmark {
	return []Bookmark{
		{ID: 10, UserID: 7, Type: TargetHSCode, TargetValue: "6109.10", DisplayName: "T-shirts", EmailEnabled: true},
		{ID: 11, UserID: 8, Type: TargetCargo, TargetValue: "MSKU1234567", DisplayName: "봄 시즌 화물", EmailEnabled: true, SMSEnabled: true},
	}
}

type coordinatorFixture struct {
	coord     *Coordinator
	detector  *fakeDetector
	persister *memPersister
	source    *countingSource
	logger    *recordingLogger
	cfg       Config
}

// newCoordinatorFixture wires a coordinator whose enqueuer writes to
// enqueueClient; pass the run client to exercise the full path, or a
// dead client to simulate a post-commit enqueue failure.
func newCoordinatorFixture(t *testing.T, runClient, enqueueClient *redis.Client, respond func(target string, call int) (Detection, error)) *coordinatorFixture {
	t.Helper()

	cfg := DefaultConfig()
	detector := newFakeDetector(respond)
	persister := newMemPersister()
	logger := newRecordingLogger()
	source := &countingSource{bookmarks: monitoredBookmarks()}

	enqueuer := NewNotificationEnqueuer(enqueueClient, cfg, logger, nil)
	worker := NewWorker(noWaitGate{}, detector, persister, enqueuer, fastRetry(), logger, nil)

	return &coordinatorFixture{
		coord:     NewCoordinator(runClient, source, worker, cfg, logger, nil),
		detector:  detector,
		persister: persister,
		source:    source,
		logger:    logger,
		cfg:       cfg,
	}
}

func oneUpdateAmongNoise(target string, call int) (Detection, error) {
	if target == "6109.10" {
		return updateFound("관세율이 8%로 인상되었습니다"), nil
	}
	return Detection{Status: StatusNoUpdate}, nil
}

func TestCoordinator_RunHappyPath(t *testing.T) {
	mr, client := newTestRedis(t)
	f := newCoordinatorFixture(t, client, client, oneUpdateAmongNoise)
	ctx := context.Background()

	summary, err := f.coord.Run(ctx)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	want := RunSummary{
		Status:             RunStatusSuccess,
		MonitoredBookmarks: 2,
		UpdatesFound:       1,
		LockStatus:         LockAcquired,
	}
	if summary != want {
		t.Errorf("summary = %+v, want %+v", summary, want)
	}

	if f.persister.feedCount() != 1 {
		t.Fatalf("feeds persisted = %d, want 1", f.persister.feedCount())
	}

	// The T-shirts bookmark is email-only, so exactly one task exists.
	queueKey := f.cfg.QueueKeyPrefix + string(ChannelEmail)
	taskIDs, err := client.LRange(ctx, queueKey, 0, -1).Result()
	if err != nil {
		t.Fatalf("reading queue: %v", err)
	}
	if len(taskIDs) != 1 {
		t.Fatalf("EMAIL queue length = %d, want 1", len(taskIDs))
	}

	detail, err := client.HGetAll(ctx, f.cfg.DetailKeyPrefix+taskIDs[0]).Result()
	if err != nil {
		t.Fatalf("reading detail hash: %v", err)
	}
	if detail["user_id"] != "7" {
		t.Errorf("detail user_id = %q, want 7", detail["user_id"])
	}
	if detail["message"] != "'T-shirts'에 대한 새로운 업데이트" {
		t.Errorf("detail message = %q", detail["message"])
	}

	if mr.Exists(f.cfg.LockKey) {
		t.Error("run lock should be released after the run")
	}
}

func TestCoordinator_AlreadyRunning(t *testing.T) {
	mr, client := newTestRedis(t)
	f := newCoordinatorFixture(t, client, client, oneUpdateAmongNoise)

	// Another instance holds the lock.
	if err := mr.Set(f.cfg.LockKey, "other-instance-token"); err != nil {
		t.Fatal(err)
	}

	summary, err := f.coord.Run(context.Background())
	if err != nil {
		t.Fatalf("contended run should not error: %v", err)
	}
	if summary.Status != RunStatusAlreadyRunning {
		t.Errorf("status = %s, want already_running", summary.Status)
	}
	if summary.LockStatus != LockNotAcquired {
		t.Errorf("lock_status = %s, want not_acquired", summary.LockStatus)
	}

	if f.source.calls.Load() != 0 {
		t.Error("contended run must not load bookmarks")
	}
	if f.detector.callCount("6109.10") != 0 {
		t.Error("contended run must not call the detector")
	}

	// The holder's lock is untouched.
	if got, _ := mr.Get(f.cfg.LockKey); got != "other-instance-token" {
		t.Errorf("lock value = %q, want the other instance's token", got)
	}
}

func TestCoordinator_SecondRunDeduplicates(t *testing.T) {
	_, client := newTestRedis(t)
	f := newCoordinatorFixture(t, client, client, oneUpdateAmongNoise)
	ctx := context.Background()

	first, err := f.coord.Run(ctx)
	if err != nil || first.UpdatesFound != 1 {
		t.Fatalf("first run: summary=%+v err=%v", first, err)
	}

	second, err := f.coord.Run(ctx)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.UpdatesFound != 0 {
		t.Errorf("second run updates_found = %d, want 0 (same content)", second.UpdatesFound)
	}

	if f.persister.feedCount() != 1 {
		t.Errorf("feeds persisted = %d, want 1", f.persister.feedCount())
	}
	queueLen, _ := client.LLen(ctx, f.cfg.QueueKeyPrefix+string(ChannelEmail)).Result()
	if queueLen != 1 {
		t.Errorf("EMAIL queue length = %d, want 1 (no task for the duplicate)", queueLen)
	}
}

func TestCoordinator_DeactivationDuringRun(t *testing.T) {
	_, client := newTestRedis(t)
	f := newCoordinatorFixture(t, client, client, oneUpdateAmongNoise)

	// Deactivated after load, before persist.
	f.persister.deactivate(10)

	summary, err := f.coord.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.UpdatesFound != 0 {
		t.Errorf("updates_found = %d, want 0", summary.UpdatesFound)
	}
	if f.persister.feedCount() != 0 {
		t.Error("deactivated bookmark must not produce a feed")
	}
	queueLen, _ := client.LLen(context.Background(), f.cfg.QueueKeyPrefix+string(ChannelEmail)).Result()
	if queueLen != 0 {
		t.Error("deactivated bookmark must not produce a notification task")
	}
}

func TestCoordinator_EnqueueFailureAfterCommit(t *testing.T) {
	_, runClient := newTestRedis(t)

	deadMr, deadClient := newTestRedis(t)
	deadMr.Close()

	f := newCoordinatorFixture(t, runClient, deadClient, oneUpdateAmongNoise)

	summary, err := f.coord.Run(context.Background())
	if err != nil {
		t.Fatalf("run should complete despite enqueue failures: %v", err)
	}
	if summary.Status != RunStatusSuccess {
		t.Errorf("status = %s, want success", summary.Status)
	}
	if summary.UpdatesFound != 0 {
		t.Errorf("updates_found = %d, want 0 (notification was lost)", summary.UpdatesFound)
	}

	// The feed row survives; only the notification was lost.
	if f.persister.feedCount() != 1 {
		t.Errorf("feeds persisted = %d, want 1", f.persister.feedCount())
	}
	entry := f.logger.find("error", "update_feed_id")
	if entry == nil {
		t.Fatal("lost notification should be logged at error with the feed id")
	}
	if entry.fields["critical"] != true {
		t.Error("lost notification log should be flagged critical")
	}
}

func TestCoordinator_RedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	f := newCoordinatorFixture(t, client, client, oneUpdateAmongNoise)
	mr.Close()

	summary, err := f.coord.Run(context.Background())
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("error = %v, want ErrServiceUnavailable", err)
	}
	if summary.Status != RunStatusServiceUnavailable {
		t.Errorf("status = %s, want service_unavailable", summary.Status)
	}
	if summary.LockStatus != LockNotAcquired {
		t.Errorf("lock_status = %s, want not_acquired", summary.LockStatus)
	}
	if f.source.calls.Load() != 0 {
		t.Error("run must not load bookmarks when Redis is down")
	}
}

func TestCoordinator_NoActiveBookmarks(t *testing.T) {
	mr, client := newTestRedis(t)
	f := newCoordinatorFixture(t, client, client, oneUpdateAmongNoise)
	f.source.bookmarks = nil

	summary, err := f.coord.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	want := RunSummary{Status: RunStatusSuccess, LockStatus: LockAcquired}
	if summary != want {
		t.Errorf("summary = %+v, want %+v", summary, want)
	}
	if mr.Exists(f.cfg.LockKey) {
		t.Error("run lock should be released after the run")
	}
}

func TestCoordinator_BookmarkLoadFailure(t *testing.T) {
	mr, client := newTestRedis(t)
	f := newCoordinatorFixture(t, client, client, oneUpdateAmongNoise)
	f.source.err = errors.New("connection refused")

	summary, err := f.coord.Run(context.Background())
	if err == nil {
		t.Fatal("expected the load error to surface")
	}
	if summary.LockStatus != LockAcquired {
		t.Errorf("lock_status = %s, want acquired (failure came after the lock)", summary.LockStatus)
	}
	if mr.Exists(f.cfg.LockKey) {
		t.Error("run lock must be released even when loading fails")
	}
}

// A panicking worker must not take down the run or leak the lock
func TestCoordinator_WorkerPanicIsContained(t *testing.T) {
	mr, client := newTestRedis(t)
	f := newCoordinatorFixture(t, client, client, func(target string, call int) (Detection, error) {
		if target == "MSKU1234567" {
			panic("detector client bug")
		}
		return updateFound("관세율이 8%로 인상되었습니다"), nil
	})

	summary, err := f.coord.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.UpdatesFound != 1 {
		t.Errorf("updates_found = %d, want 1 (healthy bookmark unaffected)", summary.UpdatesFound)
	}
	if f.logger.find("error", "panic") == nil {
		t.Error("worker panic should be logged with the bookmark id")
	}
	if mr.Exists(f.cfg.LockKey) {
		t.Error("run lock must be released after a worker panic")
	}
}
