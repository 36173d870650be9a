package events

import "testing"

func TestBusDeliversByName(t *testing.T) {
	b := NewBus()

	var got []Event
	cancel := b.Subscribe(JobCompleted, func(ev Event) { got = append(got, ev) })

	b.Publish(Event{Name: JobCompleted})
	b.Publish(Event{Name: JobFailed})

	if len(got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(got))
	}
	if got[0].Name != JobCompleted {
		t.Fatalf("delivered %q, want %q", got[0].Name, JobCompleted)
	}

	cancel()
	cancel() // repeat cancels must stay safe

	b.Publish(Event{Name: JobCompleted})
	if len(got) != 1 {
		t.Fatalf("deliveries after cancel = %d, want 1", len(got))
	}
}

func TestBusSubscribeAll(t *testing.T) {
	b := NewBus()

	var names []Name
	cancel := b.SubscribeAll(func(ev Event) { names = append(names, ev.Name) })
	defer cancel()

	b.Publish(Event{Name: JobBegan})
	b.Publish(Event{Name: ResourceUpdated})
	b.Publish(Event{Name: JobFailed})

	want := []Name{JobBegan, ResourceUpdated, JobFailed}
	if len(names) != len(want) {
		t.Fatalf("deliveries = %d, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("delivery %d = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestBusSubscribersAreIndependent(t *testing.T) {
	b := NewBus()

	var first, second int
	cancelFirst := b.Subscribe(JobUpdated, func(Event) { first++ })
	cancelSecond := b.Subscribe(JobUpdated, func(Event) { second++ })
	defer cancelSecond()

	b.Publish(Event{Name: JobUpdated})
	cancelFirst()
	b.Publish(Event{Name: JobUpdated})

	if first != 1 {
		t.Errorf("cancelled subscriber deliveries = %d, want 1", first)
	}
	if second != 2 {
		t.Errorf("live subscriber deliveries = %d, want 2", second)
	}
}
