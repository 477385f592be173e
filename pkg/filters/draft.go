package filters

import "sync"

// Draft accumulates filter edits without side effects. Nothing downstream
// sees a change until Apply validates and returns the committed state; the
// caller (the browse session) is the single place that reacts to a commit.
type Draft struct {
	mu      sync.Mutex
	pending Raw
}

func NewDraft() *Draft {
	return &Draft{pending: Raw{}}
}

// DraftFrom seeds a draft, typically from a hydrated URL query.
func DraftFrom(raw Raw) *Draft {
	return &Draft{pending: raw.clone()}
}

func (d *Draft) Set(key string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[key] = value
}

func (d *Draft) Clear(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, key)
}

func (d *Draft) ClearAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = Raw{}
}

// Snapshot returns a copy of the pending edits.
func (d *Draft) Snapshot() Raw {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending.clone()
}

// Apply validates and binds the pending edits. On a validation error nothing
// is committed and the draft keeps its contents so the user can fix the
// offending value. On success the normalized form replaces the pending map so
// further edits build on the committed state.
func (d *Draft) Apply() (Filters, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	norm, err := Normalize(d.pending)
	if err != nil {
		return Filters{}, err
	}
	f, err := FromRaw(norm)
	if err != nil {
		return Filters{}, err
	}
	d.pending = norm
	return f, nil
}
