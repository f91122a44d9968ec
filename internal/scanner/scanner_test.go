package scanner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/michaelswisa/FileExporter/internal/classify"
	"github.com/michaelswisa/FileExporter/internal/config"
	"github.com/michaelswisa/FileExporter/internal/event"
	"github.com/michaelswisa/FileExporter/internal/fsprobe"
	"github.com/michaelswisa/FileExporter/internal/metrics"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// landing builds a root path with:
//
//	svc-a-landing-dir-prod/item1/observed.txt   (observed zombie)
//	svc-a-landing-dir-prod/item2/data.bin       (non-observed zombie)
//	svc-b-landing-dir-dev/                      (other env)
//	svc-c-landing-dir-prod/                     (no failed or transcoded dir)
//	Failed/svc-a-landing-dir-prod/item/fail.txt (failure)
//	SVC-A-transcoded/c1/out.mp4                 (transcoded)
func landing(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	base := filepath.Join(root, "svc-a-landing-dir-prod")

	writeAged(t, filepath.Join(base, "item1"), "observed.txt", 90*time.Minute)
	writeAged(t, filepath.Join(base, "item2"), "data.bin", 3*time.Hour)
	age(t, filepath.Join(base, "item2"), 3*time.Hour)

	mkdir(t, filepath.Join(root, "svc-b-landing-dir-dev"))
	mkdir(t, filepath.Join(root, "svc-c-landing-dir-prod"))
	mkdir(t, filepath.Join(root, "random"))

	writeAged(t, filepath.Join(root, "Failed", "svc-a-landing-dir-prod", "item"), "fail.txt", time.Hour)
	writeAged(t, filepath.Join(root, "SVC-A-transcoded", "c1"), "out.mp4", time.Hour)
	return root
}

func mkdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating dir %s: %v", dir, err)
	}
}

func writeAged(t *testing.T, dir, name string, d time.Duration) {
	t.Helper()
	mkdir(t, dir)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("test"), 0o644); err != nil {
		t.Fatalf("creating file %s: %v", path, err)
	}
	age(t, path, d)
}

func age(t *testing.T, path string, d time.Duration) {
	t.Helper()
	stamp := fixedNow.Add(-d)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatal(err)
	}
}

func setupManager(t *testing.T, root string, mutate ...func(*config.ScanConfig)) (*Manager, *prometheus.Registry) {
	t.Helper()
	cfg := config.Default().Scan
	cfg.RootPath = root
	cfg.Env = "prod"
	for _, fn := range mutate {
		fn(&cfg)
	}

	reg := prometheus.NewRegistry()
	logger := testLogger()
	m := New(Deps{
		Config:      cfg,
		FS:          fsprobe.NewOS(logger),
		Publisher:   metrics.NewPublisher(metrics.NewPrometheusSink(reg), metrics.NewSeriesStore(), logger),
		Instruments: metrics.NewInstruments(reg),
		Clock:       func() time.Time { return fixedNow },
		Logger:      logger,
	})
	return m, reg
}

func TestParseDirName(t *testing.T) {
	tests := []struct {
		name   string
		tenant string
		env    string
		ok     bool
	}{
		{"svc-a-landing-dir-prod", "svc-a", "prod", true},
		{"my-service-landing-dir-prod", "my-service", "prod", true},
		{"another-complex-service-name-landing-dir-int", "another-complex-service-name", "int", true},
		{"short-landing-dir-dev", "short", "dev", true},
		{"UPPERCASE-SERVICE-landing-dir-PROD", "UPPERCASE-SERVICE", "PROD", true},
		{"my-service-landing-dir-uat", "", "", false},
		{"landing-dir-prod", "", "", false},
		{"my-service-landing-dir-", "", "", false},
		{"svc-a-transcoded", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDirName(tt.name)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if got.Tenant != tt.tenant || got.Env != tt.env {
				t.Errorf("got (%q, %q), want (%q, %q)", got.Tenant, got.Env, tt.tenant, tt.env)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"svc-a": "Svc-a",
		"Svc-a": "Svc-a",
		"élan":  "Élan",
		"":      "",
	}
	for in, want := range tests {
		if got := DisplayName(in); got != want {
			t.Errorf("DisplayName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestScanAll_CompletesEveryKind(t *testing.T) {
	root := landing(t)
	m, reg := setupManager(t, root)

	res := m.ScanAll(context.Background(), "SVC-A")
	if !res.FailureScan || !res.ObservedZombieScan || !res.NonObservedZombieScan || !res.TranscodedScan {
		t.Fatalf("result = %+v, want every scan completed", res)
	}
	if res.Messages[0] != "Failure scan: Completed." {
		t.Errorf("message = %q", res.Messages[0])
	}

	totals := map[Kind]int64{}
	for _, r := range m.Status() {
		if r.Status != StatusCompleted {
			t.Errorf("%s run status = %s (%s)", r.Kind, r.Status, r.Error)
		}
		if r.Trigger != TriggerScheduled {
			t.Errorf("%s trigger = %s", r.Kind, r.Trigger)
		}
		totals[r.Kind] = r.Total
	}
	for _, k := range Kinds {
		if totals[k] != 1 {
			t.Errorf("%s total = %d, want 1", k, totals[k])
		}
	}

	if _, err := os.Stat(filepath.Join(root, "Failed", "svc-a-landing-dir-prod", classify.ReasonsAllFile)); err != nil {
		t.Errorf("reasons snapshot not written: %v", err)
	}

	for family, want := range map[string]int{
		"total_failures":           2,
		"total_zombies":            4,
		"total_transcoded_folders": 2,
	} {
		n, err := testutil.GatherAndCount(reg, family)
		if err != nil {
			t.Fatal(err)
		}
		if n != want {
			t.Errorf("%s series = %d, want %d", family, n, want)
		}
	}
	if n, _ := testutil.GatherAndCount(reg, "fileexporter_scans_total"); n != 4 {
		t.Errorf("scan counter series = %d, want 4", n)
	}
}

func TestScanAll_MissingDirectoriesAreSkipped(t *testing.T) {
	m, _ := setupManager(t, landing(t))

	res := m.ScanAll(context.Background(), "svc-c")
	if res.FailureScan || res.TranscodedScan {
		t.Errorf("result = %+v, want failure and transcoded skipped", res)
	}
	if !res.ObservedZombieScan || !res.NonObservedZombieScan {
		t.Errorf("result = %+v, want zombie scans completed", res)
	}
	want := []string{
		"Failure scan: Skipped.",
		"Observed Zombie scan: Completed.",
		"Non-Observed Zombie scan: Completed.",
		"Transcoded scan: Skipped.",
	}
	if strings.Join(res.Messages, "|") != strings.Join(want, "|") {
		t.Errorf("messages = %v, want %v", res.Messages, want)
	}
}

func TestScan_UnknownTenantIsNotFound(t *testing.T) {
	m, _ := setupManager(t, landing(t))
	ctx := context.Background()

	if ok, err := m.ScanFailures(ctx, "svc-b"); ok || !errors.Is(err, ErrNotFound) {
		t.Errorf("dev tenant in prod: ok=%v err=%v, want ErrNotFound", ok, err)
	}
	if _, err := m.QueueZombies(ctx, "nope", classify.Observed); !errors.Is(err, ErrNotFound) {
		t.Errorf("QueueZombies err = %v, want ErrNotFound", err)
	}
	if _, err := m.QueueAll(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("QueueAll err = %v, want ErrNotFound", err)
	}
	if len(m.Status()) != 0 {
		t.Errorf("runs = %d, want none for rejected requests", len(m.Status()))
	}
}

func TestScanFailures_SnapshotErrorPublishesNothing(t *testing.T) {
	root := landing(t)
	failedDir := filepath.Join(root, "Failed", "svc-a-landing-dir-prod")
	mkdir(t, filepath.Join(failedDir, classify.ReasonsRecentFile))
	m, reg := setupManager(t, root)

	ok, err := m.ScanFailures(context.Background(), "svc-a")
	if ok || err == nil {
		t.Fatalf("ScanFailures: ok=%v err=%v, want a failed scan", ok, err)
	}
	if n, err := testutil.GatherAndCount(reg, "total_failures"); err != nil || n != 0 {
		t.Errorf("total_failures series = %d, want 0", n)
	}

	runs := m.Status()
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if runs[0].Status != StatusFailed || runs[0].Error == "" {
		t.Errorf("run = %+v, want failed with an error", runs[0])
	}
	if _, err := os.Stat(filepath.Join(failedDir, classify.ReasonsAllFile)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("%s written without %s: %v", classify.ReasonsAllFile, classify.ReasonsRecentFile, err)
	}
	temps, _ := filepath.Glob(filepath.Join(failedDir, ".*.tmp"))
	if len(temps) != 0 {
		t.Errorf("temp files remain: %v", temps)
	}
}

func TestScanZombies(t *testing.T) {
	m, reg := setupManager(t, landing(t))
	ctx := context.Background()

	ok, err := m.ScanZombies(ctx, "SVC-A", classify.Observed)
	if !ok || err != nil {
		t.Fatalf("ScanZombies: ok=%v err=%v", ok, err)
	}
	run := m.Status()[0]
	if run.Kind != KindObservedZombies || run.Status != StatusCompleted || run.Total != 1 {
		t.Errorf("run = %+v, want one completed observed zombie", run)
	}
	if n, err := testutil.GatherAndCount(reg, "total_zombies"); err != nil || n == 0 {
		t.Error("total_zombies not published")
	}

	if ok, err := m.ScanZombies(ctx, "svc-a", classify.NonObserved); !ok || err != nil {
		t.Fatalf("non-observed ScanZombies: ok=%v err=%v", ok, err)
	}
	if run := m.Status()[0]; run.Kind != KindNonObservedZombies || run.Total != 1 {
		t.Errorf("run = %+v, want one non-observed zombie", run)
	}

	if ok, err := m.ScanZombies(ctx, "nobody", classify.NonObserved); ok || !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown tenant: ok=%v err=%v, want ErrNotFound", ok, err)
	}
}

func TestQueueAll_RunsInBackground(t *testing.T) {
	m, _ := setupManager(t, landing(t))

	res, err := m.QueueAll(context.Background(), "svc-a")
	if err != nil {
		t.Fatalf("QueueAll: %v", err)
	}
	if len(res.Runs) != 4 {
		t.Fatalf("runs = %d, want 4", len(res.Runs))
	}
	if res.Messages[3] != "Transcoded scan: Queued." {
		t.Errorf("message = %q", res.Messages[3])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	for _, queued := range res.Runs {
		r, ok := m.RunByID(queued.ID)
		if !ok {
			t.Fatalf("run %s not retained", queued.ID)
		}
		if r.Status != StatusCompleted || r.Trigger != TriggerOnDemand {
			t.Errorf("run %s = %s/%s", r.Kind, r.Status, r.Trigger)
		}
	}
}

func TestQueue_CancelledRequestContextStillScans(t *testing.T) {
	m, _ := setupManager(t, landing(t))
	ctx, cancel := context.WithCancel(context.Background())

	run, err := m.QueueTranscoded(ctx, "svc-a")
	cancel()
	if err != nil {
		t.Fatalf("QueueTranscoded: %v", err)
	}
	if err := m.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if r, _ := m.RunByID(run.ID); r.Status != StatusCompleted || r.Total != 1 {
		t.Errorf("run = %+v", r)
	}
}

func TestDiscoverAndScanAll_FiltersEnv(t *testing.T) {
	m, _ := setupManager(t, landing(t), func(c *config.ScanConfig) { c.MaxParallelTenantScans = 1 })

	if n := m.DiscoverAndScanAll(context.Background()); n != 2 {
		t.Errorf("tenants scanned = %d, want 2 (svc-a and svc-c)", n)
	}
	for _, r := range m.Status() {
		if strings.EqualFold(r.Tenant, "svc-b") {
			t.Errorf("dev tenant scanned in prod: %+v", r)
		}
	}
}

func TestHistory_Bounded(t *testing.T) {
	m, _ := setupManager(t, landing(t), func(c *config.ScanConfig) { c.RunHistorySize = 3 })
	m.ScanAll(context.Background(), "svc-a")
	if n := len(m.Status()); n != 3 {
		t.Errorf("retained runs = %d, want 3", n)
	}
}

func TestSubscribe_NewDirectoryQueuesScans(t *testing.T) {
	m, _ := setupManager(t, landing(t))
	bus := event.NewBus(testLogger(), 8)
	m.Subscribe(bus)
	go bus.Start()
	defer bus.Stop(time.Second)

	bus.Publish(event.Event{Type: event.TenantDirCreated, DirName: "svc-b-landing-dir-dev", Tenant: "svc-b", Env: "dev"})
	bus.Publish(event.Event{Type: event.TenantDirCreated, DirName: "svc-a-landing-dir-prod", Tenant: "svc-a", Env: "prod"})

	deadline := time.Now().Add(5 * time.Second)
	for len(m.Status()) < 4 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := m.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	runs := m.Status()
	if len(runs) != 4 {
		t.Fatalf("runs = %d, want 4", len(runs))
	}
	for _, r := range runs {
		if r.Tenant != "svc-a" {
			t.Errorf("unexpected run for %s", r.Tenant)
		}
	}
}

func TestScanCompletedEventsPublished(t *testing.T) {
	root := landing(t)
	cfg := config.Default().Scan
	cfg.RootPath = root
	logger := testLogger()
	bus := event.NewBus(logger, 16)

	got := make(chan event.Event, 8)
	bus.Subscribe(event.ScanCompleted, func(e event.Event) { got <- e })
	go bus.Start()
	defer bus.Stop(time.Second)

	m := New(Deps{Config: cfg, FS: fsprobe.NewOS(logger), Bus: bus, Clock: func() time.Time { return fixedNow }, Logger: logger})
	if ok, err := m.ScanTranscoded(context.Background(), "svc-a"); !ok || err != nil {
		t.Fatalf("ScanTranscoded = %v, %v", ok, err)
	}

	select {
	case e := <-got:
		if e.Data["kind"] != string(KindTranscoded) || e.Data["status"] != StatusCompleted {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no scan.completed event")
	}
}
