package downloads

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/haul-dl/haul/internal/domain"
	"github.com/haul-dl/haul/internal/events"
	"github.com/haul-dl/haul/internal/store"
	"github.com/haul-dl/haul/internal/transfer"
)

var errTest = errors.New("induced store failure")

func seedStore(t *testing.T, jobs ...*domain.Job) *store.FileStore {
	t.Helper()
	fs := store.New(filepath.Join(t.TempDir(), "active.json"))
	if err := fs.Save(jobs); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return fs
}

func TestRestoreReattachesLiveTransfers(t *testing.T) {
	fs := seedStore(t, twoResourceJob(t))
	f := newFixture(t, func(cfg *Config) { cfg.Store = fs })

	live := f.engine.Seed(mustURL(t, urlA), transfer.StateRunning, 0.3)

	f.svc.Restore()

	job := f.svc.Lookup("job-1")
	if job == nil {
		t.Fatal("restored job not active")
	}
	if job.State() != domain.StateRunning {
		t.Errorf("restored state = %s, want running", job.State())
	}
	if got := job.FractionFor(job.Resources[0]); got != 0.3 {
		t.Errorf("reattached resource fraction = %v, want 0.3", got)
	}
	// the resource with no surviving transfer stays unbound
	if got := job.FractionFor(job.Resources[1]); got != 0 {
		t.Errorf("unmatched resource fraction = %v, want 0", got)
	}
	if got := live.CancelCount(); got != 0 {
		t.Errorf("reattached transfer cancelled %d times", got)
	}

	names := f.log.names()
	if len(names) != 1 || names[0] != events.JobRestored {
		t.Fatalf("events = %v, want exactly one job.restored", names)
	}
}

func TestRestoreCompletesJobWithNoLiveTransfers(t *testing.T) {
	fs := seedStore(t, twoResourceJob(t))
	f := newFixture(t, func(cfg *Config) { cfg.Store = fs })

	f.svc.Restore()

	if got := f.svc.Lookup("job-1"); got != nil {
		t.Error("job with no surviving transfers still active")
	}

	names := f.log.names()
	if len(names) != 1 || names[0] != events.JobCompleted {
		t.Fatalf("events = %v, want exactly one job.complete and no resource events", names)
	}
	done := f.log.byName(events.JobCompleted)[0]
	if done.Fraction != 1 || done.State != domain.StateCompleted {
		t.Errorf("completion snapshot = %v/%s, want 1/completed", done.Fraction, done.State)
	}

	recs := f.archive.list()
	if len(recs) != 1 || recs[0].outcome != domain.StateCompleted {
		t.Fatalf("archive records = %v, want one completed", recs)
	}
}

func TestRestoreCancelsOrphanTransfers(t *testing.T) {
	fs := store.New(filepath.Join(t.TempDir(), "active.json"))
	f := newFixture(t, func(cfg *Config) { cfg.Store = fs })

	orphan := f.engine.Seed(mustURL(t, urlC), transfer.StateRunning, 0.7)

	f.svc.Restore()

	if got := orphan.CancelCount(); got != 1 {
		t.Errorf("orphan cancelled %d times, want 1", got)
	}
	if got := len(f.svc.Jobs()); got != 0 {
		t.Errorf("active jobs = %d, want 0", got)
	}
	if got := len(f.log.all()); got != 0 {
		t.Errorf("orphan cleanup emitted %d event(s)", got)
	}
}

func TestRestoreMixedOutcomes(t *testing.T) {
	gone := domain.NewJob("gone", "", []*domain.Resource{
		domain.NewResource("g1", mustURL(t, urlC), "c.bin"),
	})
	fs := seedStore(t, twoResourceJob(t), gone)
	f := newFixture(t, func(cfg *Config) { cfg.Store = fs })

	f.engine.Seed(mustURL(t, urlB), transfer.StateSuspended, 0)

	f.svc.Restore()

	if f.svc.Lookup("job-1") == nil {
		t.Error("job with a live transfer not restored")
	}
	if f.svc.Lookup("gone") != nil {
		t.Error("job without live transfers still active")
	}

	names := f.log.names()
	want := []events.Name{events.JobCompleted, events.JobRestored}
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestRestoreUnreadableStore(t *testing.T) {
	f := newFixture(t, nil)
	f.store.loadErr = errTest

	f.svc.Restore()

	if got := len(f.svc.Jobs()); got != 0 {
		t.Errorf("active jobs = %d, want 0", got)
	}
	if got := len(f.log.all()); got != 0 {
		t.Errorf("unreadable store emitted %d event(s)", got)
	}
}
