package downloads

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/haul-dl/haul/internal/domain"
	"github.com/haul-dl/haul/internal/events"
	"github.com/haul-dl/haul/internal/transfer"
)

func TestProgressEmitsUpdates(t *testing.T) {
	f := newFixture(t, nil)
	job := twoResourceJob(t)
	if err := f.svc.Enqueue(job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	h := f.engine.HandleFor(urlA)
	h.SetFraction(0.5)
	f.svc.handleEvent(transfer.Event{
		Kind:          transfer.EventProgress,
		Handle:        h,
		Written:       512,
		TotalWritten:  512,
		TotalExpected: 1024,
	})

	resourceUpdates := f.log.byName(events.ResourceUpdated)
	if len(resourceUpdates) != 1 {
		t.Fatalf("resource updates = %d, want 1", len(resourceUpdates))
	}
	if resourceUpdates[0].Resource.ClientID != "r1" || resourceUpdates[0].Fraction != 0.5 {
		t.Errorf("resource update = %s %.2f, want r1 0.50",
			resourceUpdates[0].Resource.ClientID, resourceUpdates[0].Fraction)
	}

	jobUpdates := f.log.byName(events.JobUpdated)
	if len(jobUpdates) != 1 {
		t.Fatalf("job updates = %d, want 1", len(jobUpdates))
	}
	// mean of 0.5 and 0
	if jobUpdates[0].Fraction != 0.25 {
		t.Errorf("job update fraction = %v, want 0.25", jobUpdates[0].Fraction)
	}
}

func TestProgressForUnknownTransferDropped(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.svc.Enqueue(twoResourceJob(t)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	before := len(f.log.all())

	stray := f.engine.Seed(mustURL(t, urlC), transfer.StateRunning, 0.9)
	f.svc.handleEvent(transfer.Event{Kind: transfer.EventProgress, Handle: stray})

	if got := len(f.log.all()); got != before {
		t.Fatalf("stray progress emitted %d event(s)", got-before)
	}
}

func TestDoneWithoutErrorIsIgnored(t *testing.T) {
	f := newFixture(t, nil)
	job := twoResourceJob(t)
	if err := f.svc.Enqueue(job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	before := len(f.log.all())

	f.svc.handleEvent(transfer.Event{Kind: transfer.EventDone, Handle: f.engine.HandleFor(urlA)})

	if got := len(f.log.all()); got != before {
		t.Fatalf("nil-error completion emitted %d event(s)", got-before)
	}
	if f.svc.Lookup("job-1") == nil {
		t.Error("nil-error completion removed the job")
	}
}

// Enqueue J(R1, R2); R1 reaches 100% and finishes, then R2 finishes. The
// job completes and leaves the active set only after both payloads are
// handed over.
func TestWholeJobCompletion(t *testing.T) {
	f := newFixture(t, nil)
	job := twoResourceJob(t)
	if err := f.svc.Enqueue(job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	h1 := f.engine.HandleFor(urlA)
	h1.SetFraction(1)
	f.svc.handleEvent(transfer.Event{Kind: transfer.EventProgress, Handle: h1, TotalWritten: 10, TotalExpected: 10})

	jobUpdates := f.log.byName(events.JobUpdated)
	if len(jobUpdates) != 1 || jobUpdates[0].Fraction != 0.5 {
		t.Fatalf("job update after first payload = %v, want fraction 0.5", jobUpdates)
	}

	h1.SetState(transfer.StateCompleted)
	f.svc.handleEvent(transfer.Event{Kind: transfer.EventFinished, Handle: h1, Location: "/tmp/part-a"})
	f.svc.handleEvent(transfer.Event{Kind: transfer.EventDone, Handle: h1})
	f.waitHandover(t)

	if got := f.log.byName(events.ResourceCompleted); len(got) != 1 || got[0].Resource.ClientID != "r1" {
		t.Fatalf("resource completes after first finish = %v, want r1 only", got)
	}
	if f.svc.Lookup("job-1") == nil {
		t.Fatal("job left the active set before its second resource finished")
	}
	if len(f.log.byName(events.JobCompleted)) != 0 {
		t.Fatal("job completed before its second resource finished")
	}

	h2 := f.engine.HandleFor(urlB)
	h2.SetFraction(1)
	h2.SetState(transfer.StateCompleted)
	f.svc.handleEvent(transfer.Event{Kind: transfer.EventFinished, Handle: h2, Location: "/tmp/part-b"})
	f.svc.handleEvent(transfer.Event{Kind: transfer.EventDone, Handle: h2})
	f.waitHandover(t)

	if len(f.log.byName(events.JobCompleted)) != 1 {
		t.Fatal("job did not complete after every resource finished")
	}
	if f.svc.Lookup("job-1") != nil {
		t.Error("completed job still in the active set")
	}

	recs := f.archive.list()
	if len(recs) != 1 || recs[0].outcome != domain.StateCompleted {
		t.Fatalf("archive records = %v, want one completed", recs)
	}

	payloads := f.acceptedPayloads()
	if len(payloads) != 2 {
		t.Fatalf("payload handovers = %d, want 2", len(payloads))
	}
	if payloads[0].location != "/tmp/part-a" {
		t.Errorf("first payload location = %s, want /tmp/part-a", payloads[0].location)
	}
	if want := filepath.Join(job.ID, "one.bin"); payloads[0].suggested != want {
		t.Errorf("first payload destination hint = %s, want %s", payloads[0].suggested, want)
	}
}

// R1 fails mid-transfer. R2 is cancelled by the service, Fail events carry
// R1's error, and the job leaves the active set. R2 never gets a Fail of
// its own.
func TestResourceFailureFailsWholeJob(t *testing.T) {
	f := newFixture(t, nil)
	job := twoResourceJob(t)
	if err := f.svc.Enqueue(job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	boom := errors.New("connection reset")
	h1 := f.engine.HandleFor(urlA)
	h1.SetState(transfer.StateFailed)
	f.svc.handleEvent(transfer.Event{Kind: transfer.EventDone, Handle: h1, Err: boom})

	if got := f.engine.HandleFor(urlB).CancelCount(); got != 1 {
		t.Errorf("sibling cancelled %d times, want 1", got)
	}
	if got := h1.CancelCount(); got != 0 {
		t.Errorf("failed handle itself cancelled %d times, want 0", got)
	}

	fails := f.log.byName(events.ResourceFailed)
	if len(fails) != 1 {
		t.Fatalf("resource fails = %d, want 1 (the sibling is cancelled, not failed)", len(fails))
	}
	if fails[0].Resource.ClientID != "r1" || !errors.Is(fails[0].Err, boom) {
		t.Errorf("resource fail = %s/%v, want r1/%v", fails[0].Resource.ClientID, fails[0].Err, boom)
	}

	jobFails := f.log.byName(events.JobFailed)
	if len(jobFails) != 1 {
		t.Fatalf("job fails = %d, want 1", len(jobFails))
	}
	if !errors.Is(jobFails[0].Err, boom) {
		t.Errorf("job fail error %v does not unwrap to the transfer error", jobFails[0].Err)
	}
	var te *domain.TransferError
	if !errors.As(jobFails[0].Err, &te) || te.Resource.ClientID != "r1" {
		t.Errorf("job fail error %v does not name the failing resource", jobFails[0].Err)
	}

	if f.svc.Lookup("job-1") != nil {
		t.Error("failed job still active")
	}

	// the cancelled sibling's own terminal callback arrives later and
	// resolves to nothing
	before := len(f.log.all())
	h2 := f.engine.HandleFor(urlB)
	f.svc.handleEvent(transfer.Event{Kind: transfer.EventDone, Handle: h2, Err: errors.New("cancelled")})
	if got := len(f.log.all()); got != before {
		t.Errorf("late sibling callback emitted %d event(s)", got-before)
	}

	recs := f.archive.list()
	if len(recs) != 1 || recs[0].outcome != domain.StateFailed {
		t.Fatalf("archive records = %v, want one failed", recs)
	}
}

func TestRunConsumesEngineStream(t *testing.T) {
	f := newFixture(t, nil)
	job := twoResourceJob(t)
	if err := f.svc.Enqueue(job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- f.svc.Run(ctx) }()

	f.engine.Finish(f.engine.HandleFor(urlA), "/tmp/part-a")
	f.waitHandover(t)

	if got := f.log.byName(events.ResourceCompleted); len(got) != 1 {
		t.Fatalf("resource completes via run loop = %d, want 1", len(got))
	}

	cancel()
	select {
	case err := <-runDone:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunStopsWhenEngineCloses(t *testing.T) {
	f := newFixture(t, nil)

	runDone := make(chan error, 1)
	go func() { runDone <- f.svc.Run(context.Background()) }()

	f.engine.Close()

	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run after engine close = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the engine closed its stream")
	}
}
