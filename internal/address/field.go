package address

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSuperseded is returned to a lookup whose result arrived after a newer
// lookup for the same field had started.
var ErrSuperseded = errors.New("postal code lookup superseded")

// Field tracks lookups for one postal-code input. Only the most recent
// lookup may apply its result; starting a new one cancels the previous.
type Field struct {
	mu      sync.Mutex
	seq     uint64
	cancel  context.CancelFunc
	loading bool
	last    *Address
}

func (f *Field) begin(ctx context.Context) (context.Context, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancel != nil {
		f.cancel()
	}
	lookupCtx, cancel := context.WithCancel(ctx)
	f.seq++
	f.cancel = cancel
	f.loading = true
	return lookupCtx, f.seq
}

// finish runs apply only while seq is still the latest lookup.
func (f *Field) finish(seq uint64, apply func()) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if seq != f.seq {
		return false
	}
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.loading = false
	if apply != nil {
		apply()
	}
	return true
}

// Last returns the address applied by the most recent successful lookup.
func (f *Field) Last() (Address, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return Address{}, false
	}
	return *f.last, true
}

func (f *Field) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// Lookup resolves postalCode and hands the address to apply if this lookup
// is still current once the resolver returns. Errors of a current lookup are
// returned as-is; a stale lookup always yields ErrSuperseded and never calls
// apply.
func (f *Field) Lookup(ctx context.Context, resolver Lookuper, postalCode string, apply func(Address)) error {
	lookupCtx, seq := f.begin(ctx)

	address, err := resolver.Resolve(lookupCtx, postalCode)

	current := f.finish(seq, func() {
		if err != nil {
			return
		}
		f.last = &address
		if apply != nil {
			apply(address)
		}
	})
	if !current {
		return ErrSuperseded
	}
	return err
}

// Tracker owns the postal-code fields of every session. Owners idle for
// longer than the tracker's TTL are released on the next access.
type Tracker struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	owners map[string]*trackedOwner
}

type trackedOwner struct {
	fields   map[string]*Field
	lastUsed time.Time
}

type TrackerOption func(*Tracker)

// WithIdleTTL releases an owner's fields once it has not been used for ttl.
// A non-positive ttl keeps fields until Drop.
func WithIdleTTL(ttl time.Duration) TrackerOption {
	return func(t *Tracker) {
		t.ttl = ttl
	}
}

func NewTracker(options ...TrackerOption) *Tracker {
	t := &Tracker{now: time.Now, owners: make(map[string]*trackedOwner)}
	for _, option := range options {
		option(t)
	}
	return t
}

func (t *Tracker) Field(owner string, name string) *Field {
	t.mu.Lock()
	now := t.now()
	expired := t.sweepLocked(now)

	entry, ok := t.owners[owner]
	if !ok {
		entry = &trackedOwner{fields: make(map[string]*Field)}
		t.owners[owner] = entry
	}
	entry.lastUsed = now
	field, ok := entry.fields[name]
	if !ok {
		field = &Field{}
		entry.fields[name] = field
	}
	t.mu.Unlock()

	for _, idle := range expired {
		release(idle)
	}
	return field
}

// Drop forgets all fields of owner, cancelling anything still in flight.
func (t *Tracker) Drop(owner string) {
	t.mu.Lock()
	entry := t.owners[owner]
	delete(t.owners, owner)
	t.mu.Unlock()

	if entry != nil {
		release(entry)
	}
}

// Owners reports how many owners currently hold fields.
func (t *Tracker) Owners() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.owners)
}

func (t *Tracker) sweepLocked(now time.Time) []*trackedOwner {
	if t.ttl <= 0 {
		return nil
	}
	var expired []*trackedOwner
	for owner, entry := range t.owners {
		if now.Sub(entry.lastUsed) > t.ttl {
			expired = append(expired, entry)
			delete(t.owners, owner)
		}
	}
	return expired
}

func release(entry *trackedOwner) {
	for _, field := range entry.fields {
		field.mu.Lock()
		if field.cancel != nil {
			field.cancel()
			field.cancel = nil
		}
		field.seq++
		field.loading = false
		field.last = nil
		field.mu.Unlock()
	}
}
