package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/clitic/music/internal/aggregator"
	"github.com/clitic/music/internal/config"
	"github.com/clitic/music/internal/notify"
	"github.com/clitic/music/internal/snapshot"
	"github.com/clitic/music/internal/youtube"
)

type fakeRegions struct {
	codes []string
	err   error
}

func (f fakeRegions) Regions(context.Context) ([]string, error) {
	return f.codes, f.err
}

type fakeTrending struct {
	charts map[string][]aggregator.Entry
	errs   map[string]error
	delay  map[string]time.Duration

	mu    sync.Mutex
	calls []string
}

func (f *fakeTrending) Trending(ctx context.Context, region string) ([]aggregator.Entry, error) {
	f.mu.Lock()
	f.calls = append(f.calls, region)
	f.mu.Unlock()

	if d := f.delay[region]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.errs[region]; err != nil {
		return nil, err
	}
	return f.charts[region], nil
}

type recordObserver struct {
	mu      sync.Mutex
	runID   string
	total   int
	regions []string
	phases  []string
}

func (r *recordObserver) OnStart(runID string, regions int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runID = runID
	r.total = regions
}

func (r *recordObserver) OnRegionDone(_, _ int, region string, _ int, _ error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regions = append(r.regions, region)
}

func (r *recordObserver) OnPhaseDone(name string, _ map[string]any, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, name)
}

func song(id string, views int) aggregator.Entry {
	return aggregator.Entry{ID: id, Title: "Song " + id, ViewCount: fmt.Sprint(views), LikeCount: "10", CommentCount: "1"}
}

// Three regions: a trends everywhere, b in two, c and d in one each.
func charts() map[string][]aggregator.Entry {
	return map[string][]aggregator.Entry{
		"US": {song("a", 100), song("b", 200), song("c", 300)},
		"FR": {song("b", 200), song("a", 100), song("d", 50)},
		"DE": {song("a", 100)},
	}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Concurrency = 2
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(cfg *config.Config, trending TrendingSource, store snapshot.Store, opts ...Option) *Pipeline {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return New(cfg, fakeRegions{codes: []string{"US", "FR", "DE"}}, trending, store, opts...)
}

func ids(records []aggregator.VideoRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestRun_FirstRunWritesCatalogOnly(t *testing.T) {
	store := snapshot.NewFileStore(t.TempDir())

	res, err := newTestPipeline(testConfig(), &fakeTrending{charts: charts()}, store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := ids(res.Catalog); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Errorf("catalog should keep videos seen in 2+ regions by views, got %v", got)
	}
	if got := *res.Catalog[1].TrendScore; got != 100 {
		t.Errorf("video trending everywhere should score 100, got %v", got)
	}
	if res.DiffComputed() {
		t.Error("first run has no previous snapshot and should not diff")
	}
	if res.RegionsSurveyed != 3 {
		t.Errorf("expected 3 regions surveyed, got %d", res.RegionsSurveyed)
	}

	ok, _ := store.Exists(context.Background(), snapshot.NameCatalog)
	if !ok {
		t.Error("catalog snapshot should be written")
	}
	ok, _ = store.Exists(context.Background(), snapshot.NameNew)
	if ok {
		t.Error("newly added snapshot should not be written without a diff")
	}
}

func TestRun_SecondRunWritesNewlyAdded(t *testing.T) {
	store := snapshot.NewFileStore(t.TempDir())
	ctx := context.Background()
	if err := store.Write(ctx, snapshot.NameCatalog, []aggregator.VideoRecord{{ID: "a", Title: "Song a"}}); err != nil {
		t.Fatal(err)
	}

	res, err := newTestPipeline(testConfig(), &fakeTrending{charts: charts()}, store).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := ids(res.New); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("only b is new, got %v", got)
	}
	newly, err := store.Read(ctx, snapshot.NameNew)
	if err != nil {
		t.Fatalf("read newly added: %v", err)
	}
	if got := ids(newly); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("newly added snapshot should hold b, got %v", got)
	}
	current, _ := store.Read(ctx, snapshot.NameCatalog)
	if got := ids(current); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Errorf("catalog snapshot should be replaced, got %v", got)
	}
}

func TestRun_EmptyDiffStillWritten(t *testing.T) {
	store := snapshot.NewFileStore(t.TempDir())
	ctx := context.Background()
	cfg := testConfig()

	p := newTestPipeline(cfg, &fakeTrending{charts: charts()}, store)
	if _, err := p.Run(ctx); err != nil {
		t.Fatal(err)
	}
	res, err := p.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if !res.DiffComputed() || len(res.New) != 0 {
		t.Errorf("identical rerun should compute an empty diff, got %v", ids(res.New))
	}
	newly, err := store.Read(ctx, snapshot.NameNew)
	if err != nil || len(newly) != 0 {
		t.Errorf("empty newly added snapshot should be written, got %v %v", newly, err)
	}
}

func TestRun_DeterministicAcrossConcurrency(t *testing.T) {
	// Later regions finish first so completion order differs from region order.
	delays := map[string]time.Duration{"US": 30 * time.Millisecond, "FR": 15 * time.Millisecond}

	var results [][]aggregator.VideoRecord
	for _, mode := range []aggregator.Mode{aggregator.ModeFrequency, aggregator.ModeSet} {
		results = results[:0]
		for _, workers := range []int{1, 8} {
			cfg := testConfig()
			cfg.Mode = mode
			cfg.Concurrency = workers
			p := newTestPipeline(cfg, &fakeTrending{charts: charts(), delay: delays}, snapshot.NewFileStore(t.TempDir()))

			res, err := p.Run(context.Background())
			if err != nil {
				t.Fatalf("%s/%d: %v", mode, workers, err)
			}
			results = append(results, res.Catalog)
		}
		if !reflect.DeepEqual(results[0], results[1]) {
			t.Errorf("%s mode: sequential and parallel runs differ:\n%v\n%v", mode, results[0], results[1])
		}
	}
}

func TestRun_SetModeKeepsEveryVideo(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = aggregator.ModeSet

	res, err := newTestPipeline(cfg, &fakeTrending{charts: charts()}, snapshot.NewFileStore(t.TempDir())).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if got := ids(res.Catalog); !reflect.DeepEqual(got, []string{"c", "b", "a", "d"}) {
		t.Errorf("set mode should keep all distinct videos by views, got %v", got)
	}
	for _, r := range res.Catalog {
		if r.TrendScore != nil {
			t.Errorf("set mode records carry no score, %s has %v", r.ID, *r.TrendScore)
		}
	}
}

func TestRun_TransportFailureWritesNothing(t *testing.T) {
	store := snapshot.NewFileStore(t.TempDir())
	trending := &fakeTrending{charts: charts(), errs: map[string]error{"FR": errors.New("connection reset")}}

	_, err := newTestPipeline(testConfig(), trending, store).Run(context.Background())

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageFetch {
		t.Fatalf("expected fetch stage error, got %v", err)
	}
	if ok, _ := store.Exists(context.Background(), snapshot.NameCatalog); ok {
		t.Error("failed run must not write a snapshot")
	}
}

func TestRun_RegionsFailure(t *testing.T) {
	p := New(testConfig(), fakeRegions{err: errors.New("quota")}, &fakeTrending{}, snapshot.NewFileStore(t.TempDir()), WithLogger(quietLogger()))

	_, err := p.Run(context.Background())

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageRegions {
		t.Fatalf("expected regions stage error, got %v", err)
	}
}

func TestRun_RejectedRegionSkipped(t *testing.T) {
	trending := &fakeTrending{
		charts: charts(),
		errs:   map[string]error{"DE": fmt.Errorf("%w DE: chart not available", youtube.ErrRegionRejected)},
	}

	res, err := newTestPipeline(testConfig(), trending, snapshot.NewFileStore(t.TempDir())).Run(context.Background())
	if err != nil {
		t.Fatalf("rejected region should not fail the run: %v", err)
	}

	if !reflect.DeepEqual(res.RegionsSkipped, []string{"DE"}) {
		t.Errorf("expected DE skipped, got %v", res.RegionsSkipped)
	}
	if res.RegionsSurveyed != 3 {
		t.Errorf("skipped regions still count as surveyed, got %d", res.RegionsSurveyed)
	}
	// a and b each appear in 2 of 3 surveyed regions.
	for _, r := range res.Catalog {
		if got := *r.TrendScore; got < 66.6 || got > 66.7 {
			t.Errorf("%s should score 2/3, got %v", r.ID, got)
		}
	}
}

func TestRun_CorruptSnapshot(t *testing.T) {
	setup := func(t *testing.T) *snapshot.FileStore {
		store := snapshot.NewFileStore(t.TempDir())
		if err := os.WriteFile(store.Path(snapshot.NameCatalog), []byte("{not json"), 0o644); err != nil {
			t.Fatal(err)
		}
		return store
	}

	t.Run("strict", func(t *testing.T) {
		store := setup(t)

		_, err := newTestPipeline(testConfig(), &fakeTrending{charts: charts()}, store).Run(context.Background())

		if !errors.Is(err, snapshot.ErrCorrupt) {
			t.Fatalf("expected corrupt snapshot error, got %v", err)
		}
		data, _ := os.ReadFile(store.Path(snapshot.NameCatalog))
		if string(data) != "{not json" {
			t.Error("corrupt snapshot should be left untouched")
		}
	})

	t.Run("ignored", func(t *testing.T) {
		store := setup(t)
		cfg := testConfig()
		cfg.Snapshot.IgnoreCorrupt = true
		stale := []aggregator.VideoRecord{{ID: "old", Title: "Old"}}
		if err := store.Write(context.Background(), snapshot.NameNew, stale); err != nil {
			t.Fatal(err)
		}

		res, err := newTestPipeline(cfg, &fakeTrending{charts: charts()}, store).Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if res.DiffComputed() {
			t.Error("ignored corrupt snapshot counts as absent")
		}
		if _, err := store.Read(context.Background(), snapshot.NameCatalog); err != nil {
			t.Errorf("catalog should be rewritten, read failed: %v", err)
		}
		if ok, _ := store.Exists(context.Background(), snapshot.NameNew); ok {
			t.Error("newly added list from an earlier run should be removed when no diff is computed")
		}
	})
}

func TestRun_EveryRegionRejected(t *testing.T) {
	store := snapshot.NewFileStore(t.TempDir())
	if _, err := newTestPipeline(testConfig(), &fakeTrending{charts: charts()}, store).Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	before, _ := os.ReadFile(store.Path(snapshot.NameCatalog))

	rejected := fmt.Errorf("%w: invalid category", youtube.ErrRegionRejected)
	trending := &fakeTrending{errs: map[string]error{"US": rejected, "FR": rejected, "DE": rejected}}
	_, err := newTestPipeline(testConfig(), trending, store).Run(context.Background())

	if !errors.Is(err, ErrAllRegionsRejected) {
		t.Fatalf("expected ErrAllRegionsRejected, got %v", err)
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageFetch {
		t.Errorf("expected fetch stage error, got %#v", err)
	}
	after, _ := os.ReadFile(store.Path(snapshot.NameCatalog))
	if string(before) != string(after) {
		t.Error("previous catalog should be left untouched")
	}
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	store := snapshot.NewFileStore(t.TempDir())
	var published []string
	pub := notify.NewNATSPublisher("music.trending.new", func(m *nats.Msg) error {
		published = append(published, m.Header.Get(nats.MsgIdHdr))
		return nil
	})

	res, err := newTestPipeline(testConfig(), &fakeTrending{charts: charts()}, store, WithDryRun(true), WithPublisher(pub)).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Catalog) != 2 || !res.DryRun {
		t.Errorf("dry run should still compute the catalog, got %+v", res)
	}
	if ok, _ := store.Exists(context.Background(), snapshot.NameCatalog); ok {
		t.Error("dry run must not write snapshots")
	}
	if len(published) != 0 {
		t.Errorf("dry run must not publish, got %v", published)
	}
}

func TestRun_PublishesNewVideos(t *testing.T) {
	store := snapshot.NewFileStore(t.TempDir())
	ctx := context.Background()
	_ = store.Write(ctx, snapshot.NameCatalog, []aggregator.VideoRecord{{ID: "a", Title: "Song a"}})

	var subjects []string
	var payload notify.Message
	pub := notify.NewNATSPublisher("music.trending.new", func(m *nats.Msg) error {
		subjects = append(subjects, m.Subject)
		return json.Unmarshal(m.Data, &payload)
	})

	res, err := newTestPipeline(testConfig(), &fakeTrending{charts: charts()}, store, WithPublisher(pub)).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if res.Notified != 1 || len(subjects) != 1 {
		t.Fatalf("expected one notification, got %d (%v)", res.Notified, subjects)
	}
	if payload.Video.ID != "b" || payload.URL != "https://www.youtube.com/watch?v=b" {
		t.Errorf("unexpected payload %+v", payload)
	}
}

func TestRun_PublishFailureIsNotFatal(t *testing.T) {
	store := snapshot.NewFileStore(t.TempDir())
	ctx := context.Background()
	_ = store.Write(ctx, snapshot.NameCatalog, nil)

	pub := notify.NewNATSPublisher("s", func(*nats.Msg) error { return nats.ErrConnectionClosed })

	res, err := newTestPipeline(testConfig(), &fakeTrending{charts: charts()}, store, WithPublisher(pub)).Run(ctx)
	if err != nil {
		t.Fatalf("publish failure should only be logged: %v", err)
	}
	if res.Notified != 0 {
		t.Errorf("failed publish should not count as notified, got %d", res.Notified)
	}
	if newly, _ := store.Read(ctx, snapshot.NameNew); len(newly) != 2 {
		t.Errorf("snapshots should be written before publishing, got %v", newly)
	}
}

func TestRun_LockHeldByAnotherRun(t *testing.T) {
	dir := t.TempDir()
	holder := snapshot.NewFileStore(dir)
	if err := holder.Lock(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer holder.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newTestPipeline(testConfig(), &fakeTrending{charts: charts()}, snapshot.NewFileStore(dir)).Run(ctx)

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageLock {
		t.Fatalf("expected lock stage error, got %v", err)
	}
}

func TestRun_ObserverEvents(t *testing.T) {
	obs := &recordObserver{}
	p := newTestPipeline(testConfig(), &fakeTrending{charts: charts()}, snapshot.NewFileStore(t.TempDir()), WithObserver(obs))
	p.newRunID = func() string { return "run-1" }

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if obs.runID != "run-1" || obs.total != 3 {
		t.Errorf("OnStart got %q/%d", obs.runID, obs.total)
	}
	if len(obs.regions) != 3 {
		t.Errorf("expected 3 region events, got %v", obs.regions)
	}
	want := []string{StageRegions, StageFetch, StageAggregate, StageSnapshot, StageWrite}
	if !reflect.DeepEqual(obs.phases, want) {
		t.Errorf("phases = %v, want %v", obs.phases, want)
	}
}

func TestRun_NoRegions(t *testing.T) {
	p := New(testConfig(), fakeRegions{}, &fakeTrending{}, snapshot.NewFileStore(t.TempDir()), WithLogger(quietLogger()))

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Catalog == nil || len(res.Catalog) != 0 {
		t.Errorf("no regions should produce an empty catalog, got %v", res.Catalog)
	}
}

func TestRun_YouTubeEndToEnd(t *testing.T) {
	videos := map[string]string{
		"US": `{"items":[
			{"id":"a","snippet":{"title":"Alpha"},"statistics":{"viewCount":"1000","likeCount":"10","commentCount":"1"}},
			{"id":"b","snippet":{"title":"Beta"},"statistics":{"viewCount":"5000","likeCount":"50","commentCount":"5"}}]}`,
		"FR": `{"items":[
			{"id":"b","snippet":{"title":"Beta"},"statistics":{"viewCount":"5000","likeCount":"50","commentCount":"5"}},
			{"id":"a","snippet":{"title":"Alpha"},"statistics":{"viewCount":"1000","likeCount":"10","commentCount":"1"}}]}`,
		"KP": `{"error":{"code":400,"message":"regionCode not supported","errors":[{"reason":"invalidRegionCode"}]}}`,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/youtube/v3/i18nRegions":
			_, _ = io.WriteString(w, `{"items":[{"id":"US"},{"id":"FR"},{"id":"KP"}]}`)
		case "/youtube/v3/videos":
			region := r.URL.Query().Get("regionCode")
			if region == "KP" {
				w.WriteHeader(http.StatusBadRequest)
			}
			_, _ = io.WriteString(w, videos[region])
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	source := NewYouTubeSource(youtube.NewClient("key", youtube.WithBaseURL(server.URL)))
	store := snapshot.NewFileStore(t.TempDir())

	res, err := New(testConfig(), source, source, store, WithLogger(quietLogger())).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := ids(res.Catalog); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Errorf("expected b then a, got %v", got)
	}
	if !reflect.DeepEqual(res.RegionsSkipped, []string{"KP"}) {
		t.Errorf("expected KP skipped, got %v", res.RegionsSkipped)
	}
	saved, err := store.Read(context.Background(), snapshot.NameCatalog)
	if err != nil || len(saved) != 2 || saved[0].ViewCount != 5000 {
		t.Errorf("snapshot should hold parsed records, got %+v %v", saved, err)
	}
}
