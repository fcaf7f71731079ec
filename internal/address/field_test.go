package address

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type blockingLookup struct {
	mu      sync.Mutex
	release map[string]chan struct{}
	results map[string]Address
	errs    map[string]error
	started chan string
}

func newBlockingLookup() *blockingLookup {
	return &blockingLookup{
		release: make(map[string]chan struct{}),
		results: make(map[string]Address),
		errs:    make(map[string]error),
		started: make(chan string, 8),
	}
}

func (b *blockingLookup) gate(code string) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.release[code]
	if !ok {
		ch = make(chan struct{})
		b.release[code] = ch
	}
	return ch
}

func (b *blockingLookup) Resolve(ctx context.Context, code string) (Address, error) {
	gate := b.gate(code)
	b.started <- code
	select {
	case <-gate:
	case <-ctx.Done():
		// Respond only once released, after the newer lookup.
		<-gate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.results[code], b.errs[code]
}

func TestFieldLookupAppliesResult(t *testing.T) {
	lookup := newBlockingLookup()
	lookup.results["01310100"] = Address{Street: "Avenida Paulista", District: "Bela Vista", City: "São Paulo"}
	close(lookup.gate("01310100"))

	var field Field
	var applied Address
	if err := field.Lookup(context.Background(), lookup, "01310100", func(a Address) { applied = a }); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if applied.Street != "Avenida Paulista" {
		t.Fatalf("expected address applied, got %+v", applied)
	}
	if field.Loading() {
		t.Fatalf("expected loading cleared")
	}
	if last, ok := field.Last(); !ok || last.City != "São Paulo" {
		t.Fatalf("expected last address recorded, got %+v %v", last, ok)
	}
}

func TestFieldLookupNotFoundLeavesFieldsUntouched(t *testing.T) {
	lookup := newBlockingLookup()
	lookup.errs["99999999"] = ErrNotFound
	close(lookup.gate("99999999"))

	var field Field
	applied := false
	err := field.Lookup(context.Background(), lookup, "99999999", func(Address) { applied = true })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if applied {
		t.Fatalf("expected apply not called on not found")
	}
	if _, ok := field.Last(); ok {
		t.Fatalf("expected no address recorded on not found")
	}
}

func TestFieldLookupStaleResponseDoesNotOverwrite(t *testing.T) {
	lookup := newBlockingLookup()
	lookup.results["11111111"] = Address{Street: "Rua A", City: "Cidade A"}
	lookup.results["22222222"] = Address{Street: "Rua B", City: "Cidade B"}

	var field Field
	var mu sync.Mutex
	var current Address
	apply := func(a Address) {
		mu.Lock()
		current = a
		mu.Unlock()
	}

	errA := make(chan error, 1)
	go func() {
		errA <- field.Lookup(context.Background(), lookup, "11111111", apply)
	}()
	waitStarted(t, lookup, "11111111")
	if !field.Loading() {
		t.Fatalf("expected loading while lookup A is in flight")
	}

	errB := make(chan error, 1)
	go func() {
		errB <- field.Lookup(context.Background(), lookup, "22222222", apply)
	}()
	waitStarted(t, lookup, "22222222")

	close(lookup.gate("22222222"))
	if err := <-errB; err != nil {
		t.Fatalf("lookup B: %v", err)
	}

	close(lookup.gate("11111111"))
	if err := <-errA; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected lookup A superseded, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if current.Street != "Rua B" || current.City != "Cidade B" {
		t.Fatalf("expected fields from B, got %+v", current)
	}
	if last, _ := field.Last(); last.Street != "Rua B" {
		t.Fatalf("expected last address from B, got %+v", last)
	}
	if field.Loading() {
		t.Fatalf("expected loading cleared after latest lookup")
	}
}

func TestTrackerReturnsSameFieldPerOwnerAndName(t *testing.T) {
	tracker := NewTracker()
	a := tracker.Field("sess-1", "patient.cep")
	if tracker.Field("sess-1", "patient.cep") != a {
		t.Fatalf("expected same field instance")
	}
	if tracker.Field("sess-2", "patient.cep") == a {
		t.Fatalf("expected distinct field per owner")
	}

	tracker.Drop("sess-1")
	if tracker.Field("sess-1", "patient.cep") == a {
		t.Fatalf("expected fresh field after drop")
	}
}

func TestTrackerReleasesIdleOwners(t *testing.T) {
	now := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	tracker := NewTracker(WithIdleTTL(time.Minute))
	tracker.now = func() time.Time { return now }

	for i := 0; i < 1000; i++ {
		field := tracker.Field(fmt.Sprintf("expired-%d", i), "patient.cep")
		field.last = &Address{PostalCode: "01001-000"}
	}
	held := tracker.Field("expired-0", "patient.cep")
	if tracker.Owners() != 1000 {
		t.Fatalf("expected 1000 owners, got %d", tracker.Owners())
	}

	now = now.Add(2 * time.Minute)
	tracker.Field("active", "patient.cep")

	if tracker.Owners() != 1 {
		t.Fatalf("expected idle owners to be released, got %d", tracker.Owners())
	}
	if _, ok := held.Last(); ok {
		t.Fatalf("expected released field to forget its address")
	}
}

func TestTrackerWithoutTTLKeepsOwners(t *testing.T) {
	now := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	tracker := NewTracker()
	tracker.now = func() time.Time { return now }

	tracker.Field("sess-1", "patient.cep")
	now = now.Add(24 * time.Hour)
	tracker.Field("sess-2", "patient.cep")

	if tracker.Owners() != 2 {
		t.Fatalf("expected owners to be kept until dropped, got %d", tracker.Owners())
	}
}

func waitStarted(t *testing.T, lookup *blockingLookup, code string) {
	t.Helper()
	select {
	case got := <-lookup.started:
		if got != code {
			t.Fatalf("expected lookup %s to start, got %s", code, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("lookup %s did not start", code)
	}
}
