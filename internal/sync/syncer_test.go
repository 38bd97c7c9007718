package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubsync/internal/model"
)

// fakeEventStore is an in-memory EventStore. Tests run sequentially, so no
// locking is needed.
type fakeEventStore struct {
	events map[string]model.Event
	nextID int

	// failExternalIDs makes writes for these external IDs fail, to test
	// per-instance error isolation.
	failExternalIDs map[string]bool
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{
		events:          map[string]model.Event{},
		failExternalIDs: map[string]bool{},
	}
}

func (f *fakeEventStore) CreateEvent(_ context.Context, fields model.EventFields) (model.Event, error) {
	if f.failExternalIDs[fields.ExternalID] {
		return model.Event{}, errors.New("store rejected event")
	}
	f.nextID++
	ev := model.Event{
		ID:          fmt.Sprintf("evt-%d", f.nextID),
		EventFields: fields,
		CreatedAt:   time.Now().UnixMilli(),
		UpdatedAt:   time.Now().UnixMilli(),
	}
	f.events[ev.ID] = ev
	return ev, nil
}

func (f *fakeEventStore) UpdateEvent(_ context.Context, id string, fields model.EventFields) error {
	ev, ok := f.events[id]
	if !ok {
		return errors.New("no such event")
	}
	if f.failExternalIDs[fields.ExternalID] {
		return errors.New("store rejected event")
	}
	ev.EventFields = fields
	ev.UpdatedAt = time.Now().UnixMilli()
	f.events[id] = ev
	return nil
}

func (f *fakeEventStore) DeleteEvent(_ context.Context, id string) error {
	delete(f.events, id)
	return nil
}

func (f *fakeEventStore) FindByExternalID(_ context.Context, clubID, externalID string) (*model.Event, error) {
	for _, ev := range f.events {
		if ev.ClubID == clubID && ev.ExternalID == externalID {
			out := ev
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeEventStore) FindByOwningSync(_ context.Context, syncID string) ([]model.Event, error) {
	var out []model.Event
	for _, ev := range f.events {
		if ev.SyncID == syncID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeEventStore) ListByClub(_ context.Context, clubID string) ([]model.Event, error) {
	var out []model.Event
	for _, ev := range f.events {
		if ev.ClubID == clubID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeEventStore) byExternalID(externalID string) *model.Event {
	for _, ev := range f.events {
		if ev.ExternalID == externalID {
			out := ev
			return &out
		}
	}
	return nil
}

// fakeConfigStore is an in-memory ConfigStore.
type fakeConfigStore struct {
	configs map[string]*model.SyncConfiguration
	history map[string]model.SyncHistoryEntry

	// cancelAfterFlushes flips the configuration to cancelled after that
	// many progress writes, simulating an external cancel mid-run.
	cancelAfterFlushes int
	flushes            int
}

func newFakeConfigStore(cfgs ...*model.SyncConfiguration) *fakeConfigStore {
	f := &fakeConfigStore{
		configs:            map[string]*model.SyncConfiguration{},
		history:            map[string]model.SyncHistoryEntry{},
		cancelAfterFlushes: -1,
	}
	for _, c := range cfgs {
		f.configs[c.ID] = c
	}
	return f
}

func (f *fakeConfigStore) GetConfig(_ context.Context, id string) (*model.SyncConfiguration, error) {
	cfg, ok := f.configs[id]
	if !ok {
		return nil, nil
	}
	out := *cfg
	return &out, nil
}

func (f *fakeConfigStore) ListConfigs(_ context.Context, clubID string) ([]model.SyncConfiguration, error) {
	var out []model.SyncConfiguration
	for _, c := range f.configs {
		if c.ClubID == clubID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeConfigStore) ListActiveConfigs(_ context.Context) ([]model.SyncConfiguration, error) {
	var out []model.SyncConfiguration
	for _, c := range f.configs {
		if c.Active {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeConfigStore) ListRunning(_ context.Context) ([]model.SyncConfiguration, error) {
	var out []model.SyncConfiguration
	for _, c := range f.configs {
		if c.LastSyncStatus == model.StatusRunning {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeConfigStore) CreateConfig(_ context.Context, cfg model.SyncConfiguration) error {
	f.configs[cfg.ID] = &cfg
	return nil
}

func (f *fakeConfigStore) UpdateConfig(_ context.Context, id string, upd model.ConfigUpdate) (*model.SyncConfiguration, error) {
	cfg, ok := f.configs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Name != nil {
		cfg.Name = *upd.Name
	}
	if upd.FeedURL != nil {
		cfg.FeedURL = *upd.FeedURL
	}
	if upd.Active != nil {
		cfg.Active = *upd.Active
	}
	out := *cfg
	return &out, nil
}

func (f *fakeConfigStore) DeleteConfig(_ context.Context, id string) error {
	delete(f.configs, id)
	return nil
}

func (f *fakeConfigStore) TryMarkRunning(_ context.Context, id string, run model.SyncRun) (bool, error) {
	cfg, ok := f.configs[id]
	if !ok {
		return false, ErrNotFound
	}
	if cfg.LastSyncStatus == model.StatusRunning {
		return false, nil
	}
	cfg.LastSyncStatus = model.StatusRunning
	cfg.Run = &run
	return true, nil
}

func (f *fakeConfigStore) WriteProgress(_ context.Context, id string, run model.SyncRun) (bool, error) {
	cfg, ok := f.configs[id]
	if !ok {
		return false, ErrNotFound
	}
	if cfg.LastSyncStatus != model.StatusRunning {
		return false, nil
	}

	f.flushes++
	if f.cancelAfterFlushes >= 0 && f.flushes > f.cancelAfterFlushes {
		cfg.LastSyncStatus = model.StatusCancelled
		cfg.Run = nil
		return false, nil
	}

	cfg.Run = &run
	return true, nil
}

func (f *fakeConfigStore) CancelRun(_ context.Context, id string) error {
	cfg, ok := f.configs[id]
	if !ok {
		return ErrNotFound
	}
	cfg.LastSyncStatus = model.StatusCancelled
	cfg.Run = nil
	return nil
}

func (f *fakeConfigStore) CompleteRun(_ context.Context, id string, status model.SyncStatus, errMsg string, completedAt int64, stats model.SyncStats) error {
	cfg, ok := f.configs[id]
	if !ok {
		return ErrNotFound
	}
	cfg.LastSyncStatus = status
	cfg.LastSyncError = errMsg
	cfg.LastSyncAt = completedAt
	cfg.Stats = stats
	cfg.Run = nil
	return nil
}

func (f *fakeConfigStore) CreateHistory(_ context.Context, entry model.SyncHistoryEntry) error {
	f.history[entry.ID] = entry
	return nil
}

func (f *fakeConfigStore) CompleteHistory(_ context.Context, entry model.SyncHistoryEntry) error {
	f.history[entry.ID] = entry
	return nil
}

func (f *fakeConfigStore) ListHistory(_ context.Context, syncID string, _ int) ([]model.SyncHistoryEntry, error) {
	var out []model.SyncHistoryEntry
	for _, h := range f.history {
		if h.SyncID == syncID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeConfigStore) RecentActivity(_ context.Context, _ int) ([]model.ActivityEntry, error) {
	return nil, nil
}

func (f *fakeConfigStore) StatsSummary(_ context.Context, _ string) (model.StatsSummary, error) {
	return model.StatsSummary{}, nil
}

func (f *fakeConfigStore) soleHistory(t *testing.T) model.SyncHistoryEntry {
	t.Helper()
	require.Len(t, f.history, 1)
	for _, h := range f.history {
		return h
	}
	return model.SyncHistoryEntry{}
}

// fakeFetcher serves a mutable in-memory feed.
type fakeFetcher struct {
	body string
	err  error
}

func (f *fakeFetcher) Fetch(context.Context, string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

func icsTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func singleEvent(uid, summary string, start time.Time) string {
	return "BEGIN:VEVENT\n" +
		"UID:" + uid + "\n" +
		"DTSTART:" + icsTime(start) + "\n" +
		"DTEND:" + icsTime(start.Add(time.Hour)) + "\n" +
		"SUMMARY:" + summary + "\n" +
		"END:VEVENT\n"
}

func feed(events ...string) string {
	body := "BEGIN:VCALENDAR\n"
	for _, ev := range events {
		body += ev
	}
	return body + "END:VCALENDAR\n"
}

func testConfig() *model.SyncConfiguration {
	return &model.SyncConfiguration{
		ID:             "sync-1",
		ClubID:         "club-1",
		Name:           "Team calendar",
		FeedURL:        "https://example.org/team.ics",
		Active:         true,
		LastSyncStatus: model.StatusIdle,
	}
}

func TestSyncCreatesEventsFromFeed(t *testing.T) {
	start := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	events := newFakeEventStore()
	configs := newFakeConfigStore(testConfig())
	fetcher := &fakeFetcher{body: feed(
		singleEvent("a", "Practice", start),
		singleEvent("b", "Match", start.Add(24*time.Hour)),
	)}

	res, err := New(events, configs, fetcher).Sync(context.Background(), "sync-1")
	require.NoError(t, err)

	assert.Equal(t, model.StatusSuccess, res.Status)
	assert.Equal(t, 2, res.Progress.CreatedEvents)
	assert.Equal(t, 2, res.Progress.TotalEvents)
	assert.Len(t, events.events, 2)

	created := events.byExternalID("a")
	require.NotNil(t, created)
	assert.Equal(t, "Practice", created.Title)
	assert.Equal(t, "club-1", created.ClubID)
	assert.Equal(t, "sync-1", created.SyncID)
	assert.Equal(t, start.UnixMilli(), created.StartTime)

	cfg := configs.configs["sync-1"]
	assert.Equal(t, model.StatusSuccess, cfg.LastSyncStatus)
	assert.Nil(t, cfg.Run)
	assert.Equal(t, 1, cfg.Stats.TotalRuns)
	assert.Equal(t, 1, cfg.Stats.SuccessfulRuns)

	hist := configs.soleHistory(t)
	assert.Equal(t, model.StatusSuccess, hist.Status)
	assert.NotZero(t, hist.CompletedAt)
	assert.Equal(t, res.RunID, hist.RunID)
}

func TestSyncIsIdempotent(t *testing.T) {
	start := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	events := newFakeEventStore()
	configs := newFakeConfigStore(testConfig())
	fetcher := &fakeFetcher{body: feed(singleEvent("a", "Practice", start))}
	syncer := New(events, configs, fetcher)

	_, err := syncer.Sync(context.Background(), "sync-1")
	require.NoError(t, err)

	res, err := syncer.Sync(context.Background(), "sync-1")
	require.NoError(t, err)

	assert.Equal(t, 0, res.Progress.CreatedEvents)
	assert.Equal(t, 1, res.Progress.SkippedEvents)
	assert.Len(t, events.events, 1)
}

func TestSyncUpdatesDriftedEvents(t *testing.T) {
	start := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	events := newFakeEventStore()
	configs := newFakeConfigStore(testConfig())
	fetcher := &fakeFetcher{body: feed(singleEvent("a", "Practice", start))}
	syncer := New(events, configs, fetcher)

	_, err := syncer.Sync(context.Background(), "sync-1")
	require.NoError(t, err)

	fetcher.body = feed(singleEvent("a", "Practice (moved)", start.Add(time.Hour)))
	res, err := syncer.Sync(context.Background(), "sync-1")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Progress.UpdatedEvents)
	assert.Len(t, events.events, 1)
	assert.Equal(t, "Practice (moved)", events.byExternalID("a").Title)
}

func TestSyncRemovesFutureOrphansOnly(t *testing.T) {
	start := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	events := newFakeEventStore()
	configs := newFakeConfigStore(testConfig())
	fetcher := &fakeFetcher{body: feed(
		singleEvent("keep", "Practice", start),
		singleEvent("drop", "Cancelled match", start.Add(24*time.Hour)),
	)}
	syncer := New(events, configs, fetcher)

	_, err := syncer.Sync(context.Background(), "sync-1")
	require.NoError(t, err)

	// A past event this sync owns that is no longer in the feed stays as
	// historical record.
	_, err = events.CreateEvent(context.Background(), model.EventFields{
		Title:      "Old practice",
		ClubID:     "club-1",
		SyncID:     "sync-1",
		ExternalID: "past",
		StartTime:  time.Now().Add(-30 * 24 * time.Hour).UnixMilli(),
	})
	require.NoError(t, err)

	fetcher.body = feed(singleEvent("keep", "Practice", start))
	res, err := syncer.Sync(context.Background(), "sync-1")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Progress.RemovedEvents)
	assert.Nil(t, events.byExternalID("drop"))
	assert.NotNil(t, events.byExternalID("keep"))
	assert.NotNil(t, events.byExternalID("past"))
}

func TestSyncRejectsConcurrentRuns(t *testing.T) {
	cfg := testConfig()
	cfg.LastSyncStatus = model.StatusRunning
	configs := newFakeConfigStore(cfg)
	syncer := New(newFakeEventStore(), configs, &fakeFetcher{body: feed()})

	_, err := syncer.Sync(context.Background(), "sync-1")
	assert.ErrorIs(t, err, ErrSyncInProgress)
}

func TestSyncFetchFailure(t *testing.T) {
	configs := newFakeConfigStore(testConfig())
	fetcher := &fakeFetcher{err: errors.New("connection refused")}

	res, err := New(newFakeEventStore(), configs, fetcher).Sync(context.Background(), "sync-1")
	require.Error(t, err)
	require.NotNil(t, res)

	assert.Equal(t, model.StatusError, res.Status)

	cfg := configs.configs["sync-1"]
	assert.Equal(t, model.StatusError, cfg.LastSyncStatus)
	assert.Contains(t, cfg.LastSyncError, "connection refused")
	assert.Equal(t, 1, cfg.Stats.FailedRuns)
	assert.Nil(t, cfg.Run)

	hist := configs.soleHistory(t)
	assert.Equal(t, model.StatusError, hist.Status)
	assert.Contains(t, hist.ErrorMessage, "connection refused")
}

func TestSyncObservesCancelAtFlush(t *testing.T) {
	start := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	configs := newFakeConfigStore(testConfig())
	configs.cancelAfterFlushes = 1
	fetcher := &fakeFetcher{body: feed(singleEvent("a", "Practice", start))}

	res, err := New(newFakeEventStore(), configs, fetcher).Sync(context.Background(), "sync-1")
	assert.ErrorIs(t, err, ErrSyncCancelled)
	require.NotNil(t, res)
	assert.Equal(t, model.StatusCancelled, res.Status)

	// A cancelled run never touches the running totals.
	cfg := configs.configs["sync-1"]
	assert.Equal(t, model.StatusCancelled, cfg.LastSyncStatus)
	assert.Zero(t, cfg.Stats.TotalRuns)

	hist := configs.soleHistory(t)
	assert.Equal(t, model.StatusCancelled, hist.Status)
}

func TestSyncInactiveConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Active = false
	configs := newFakeConfigStore(cfg)

	_, err := New(newFakeEventStore(), configs, &fakeFetcher{body: feed()}).Sync(context.Background(), "sync-1")
	assert.ErrorIs(t, err, ErrInactive)
}

func TestSyncUnknownConfig(t *testing.T) {
	configs := newFakeConfigStore()
	_, err := New(newFakeEventStore(), configs, &fakeFetcher{}).Sync(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSyncIsolatesPerInstanceFailures(t *testing.T) {
	start := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	events := newFakeEventStore()
	events.failExternalIDs["bad"] = true
	configs := newFakeConfigStore(testConfig())
	fetcher := &fakeFetcher{body: feed(
		singleEvent("good", "Practice", start),
		singleEvent("bad", "Cursed event", start.Add(time.Hour)),
		singleEvent("also-good", "Match", start.Add(2*time.Hour)),
	)}

	res, err := New(events, configs, fetcher).Sync(context.Background(), "sync-1")
	require.NoError(t, err)

	assert.Equal(t, model.StatusSuccess, res.Status)
	assert.Equal(t, 2, res.Progress.CreatedEvents)
	assert.Equal(t, 1, res.Progress.ErrorEvents)
	assert.Len(t, events.events, 2)
}

func TestSyncExpandsRecurringSeries(t *testing.T) {
	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	events := newFakeEventStore()
	configs := newFakeConfigStore(testConfig())
	fetcher := &fakeFetcher{body: feed(
		"BEGIN:VEVENT\n" +
			"UID:weekly\n" +
			"DTSTART:" + icsTime(start) + "\n" +
			"DTEND:" + icsTime(start.Add(time.Hour)) + "\n" +
			"SUMMARY:Weekly practice\n" +
			"RRULE:FREQ=WEEKLY;COUNT=4\n" +
			"END:VEVENT\n",
	)}

	res, err := New(events, configs, fetcher).Sync(context.Background(), "sync-1")
	require.NoError(t, err)

	assert.Equal(t, 4, res.Progress.CreatedEvents)
	assert.Len(t, events.events, 4)
	for _, ev := range events.events {
		assert.Equal(t, "weekly", ev.RecurringEventID)
		assert.Contains(t, ev.ExternalID, "weekly_")
	}
}

func TestCancelRequiresRunningSync(t *testing.T) {
	configs := newFakeConfigStore(testConfig())
	syncer := New(newFakeEventStore(), configs, &fakeFetcher{})

	err := syncer.Cancel(context.Background(), "sync-1")
	assert.ErrorIs(t, err, ErrNotRunning)

	err = syncer.Cancel(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSyncAllContinuesPastFailures(t *testing.T) {
	good := testConfig()
	bad := testConfig()
	bad.ID = "sync-2"
	bad.FeedURL = "https://example.org/broken.ics"
	inactive := testConfig()
	inactive.ID = "sync-3"
	inactive.Active = false

	configs := newFakeConfigStore(good, bad, inactive)
	events := newFakeEventStore()
	start := time.Now().Add(48 * time.Hour).Truncate(time.Second)

	// The shared fetcher fails for the broken feed only.
	fetcher := &urlFetcher{bodies: map[string]string{
		good.FeedURL: feed(singleEvent("a", "Practice", start)),
	}}

	results, err := New(events, configs, fetcher).SyncAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[string]Result{}
	for _, r := range results {
		byID[r.SyncID] = r
	}
	assert.Equal(t, model.StatusSuccess, byID["sync-1"].Status)
	assert.Equal(t, model.StatusError, byID["sync-2"].Status)
}

// urlFetcher maps URLs to bodies; unknown URLs fail.
type urlFetcher struct {
	bodies map[string]string
}

func (f *urlFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	body, ok := f.bodies[url]
	if !ok {
		return nil, errors.New("feed unavailable")
	}
	return []byte(body), nil
}

func TestAdvanceStats(t *testing.T) {
	stats := advance(model.SyncStats{}, 1000, true)
	assert.Equal(t, model.SyncStats{TotalRuns: 1, SuccessfulRuns: 1, AvgDurationMs: 1000}, stats)

	stats = advance(stats, 2000, true)
	assert.Equal(t, 2, stats.TotalRuns)
	assert.Equal(t, int64(1500), stats.AvgDurationMs)

	stats = advance(stats, 9999, false)
	assert.Equal(t, 3, stats.TotalRuns)
	assert.Equal(t, 1, stats.FailedRuns)
	assert.Equal(t, int64(1500), stats.AvgDurationMs)
}
