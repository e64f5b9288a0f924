package partition

import "testing"

func TestQueuePushPopOrder(t *testing.T) {
	q := NewQueue(4)
	q.Push(Record{Source: "a"})
	q.Push(Record{Source: "b"})

	rec, err := q.Pop()
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if rec.Source != "a" {
		t.Fatalf("Pop = %q, want %q (FIFO order)", rec.Source, "a")
	}
}

func TestQueueDropsOldestOnOverflow(t *testing.T) {
	q := NewQueue(2)
	q.Push(Record{Source: "a"})
	q.Push(Record{Source: "b"})
	q.Push(Record{Source: "c"})

	if q.Len() != 2 {
		t.Fatalf("Len = %d, want 2", q.Len())
	}
	rec, _ := q.Pop()
	if rec.Source != "b" {
		t.Fatalf("Pop after overflow = %q, want %q (oldest dropped)", rec.Source, "b")
	}
}

func TestQueuePopEmpty(t *testing.T) {
	q := NewQueue(4)
	if _, err := q.Pop(); err != ErrQueueEmpty {
		t.Fatalf("Pop on an empty queue: err = %v, want ErrQueueEmpty", err)
	}
}

func TestPolicyTableDefaultsToLogOnly(t *testing.T) {
	p := NewPolicyTable()
	if got := p.Lookup("unconfigured-source"); got != PolicyLogOnly {
		t.Fatalf("Lookup for an unconfigured source = %v, want PolicyLogOnly", got)
	}
	p.Set("tlb1", PolicyStopPartition)
	if got := p.Lookup("tlb1"); got != PolicyStopPartition {
		t.Fatalf("Lookup after Set = %v, want PolicyStopPartition", got)
	}
}

func TestManagerRaiseAppliesPolicy(t *testing.T) {
	var notified, stopped, logged bool
	m := NewManager(4, 4, 4,
		func(rec Record) { notified = true },
		func(rec Record) { stopped = true },
		func(rec Record) { logged = true },
	)
	m.Policy.Set("doorbell", PolicyNotify)
	m.Raise(Record{Domain: ErrorDomainGuest, Source: "doorbell", Message: "test"})

	if !notified || stopped {
		t.Fatalf("Raise with PolicyNotify: notified=%v stopped=%v, want true, false", notified, stopped)
	}
	if !logged {
		t.Fatalf("Raise: expected the log callback to fire regardless of policy")
	}
	if m.Guest.Len() != 1 || m.Global.Len() != 1 {
		t.Fatalf("Raise of a guest-domain record: Guest.Len=%d Global.Len=%d, want 1, 1", m.Guest.Len(), m.Global.Len())
	}
}

func TestManagerRaiseStopPolicy(t *testing.T) {
	var stopped bool
	m := NewManager(4, 4, 4, nil, func(rec Record) { stopped = true }, nil)
	m.Policy.Set("watchdog", PolicyStopPartition)
	m.Raise(Record{Domain: ErrorDomainGuest, Source: "watchdog"})
	if !stopped {
		t.Fatalf("Raise with PolicyStopPartition: expected the stop callback to fire")
	}
}
