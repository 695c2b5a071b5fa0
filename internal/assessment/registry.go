package assessment

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rain2recharge/r2r/internal/storage"
)

// KeyPrefix namespaces assessment records in the key-value store.
const KeyPrefix = "assessment:"

// Catalog is the store a Registry needs: record access plus listing and
// deletion by key. Implemented by storage.Store.
type Catalog interface {
	RecordStore
	ListEntries(prefix string) ([]storage.Entry, error)
	DeleteValue(key string) error
}

// Registry keeps one live Accumulator per assessment id so that the step
// cursor survives across requests. Records are loaded lazily from the store.
type Registry struct {
	store Catalog
	opts  []Option

	mu    sync.Mutex
	items map[string]*Accumulator
}

func NewRegistry(store Catalog, opts ...Option) *Registry {
	return &Registry{
		store: store,
		opts:  opts,
		items: make(map[string]*Accumulator),
	}
}

// Get returns the Accumulator for id, restoring it from storage on first use.
// A corrupt stored record is logged and replaced by an empty assessment.
func (r *Registry) Get(id string) (*Accumulator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if acc, ok := r.items[id]; ok {
		return acc, nil
	}

	acc, err := Load(r.store, KeyPrefix+id, r.opts...)
	if errors.Is(err, ErrCorruptRecord) {
		slog.Warn("discarding corrupt assessment record", "id", id, "error", err)
	} else if err != nil {
		return nil, err
	}
	r.items[id] = acc
	return acc, nil
}

// Listing is a one-line view of a stored assessment.
type Listing struct {
	ID          string    `json:"id"`
	CurrentStep Step      `json:"currentStep"`
	StepName    string    `json:"stepName"`
	Address     string    `json:"address,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// List returns every stored assessment ordered by id. The step is the live
// cursor for assessments already loaded, otherwise the inferred step. Corrupt
// records are listed at StepLocation.
func (r *Registry) List() ([]Listing, error) {
	entries, err := r.store.ListEntries(KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing assessments: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Listing, 0, len(entries))
	for _, e := range entries {
		id := strings.TrimPrefix(e.Key, KeyPrefix)
		l := Listing{ID: id, CurrentStep: StepLocation, UpdatedAt: e.UpdatedAt}

		if acc, ok := r.items[id]; ok {
			s := acc.Snapshot()
			l.CurrentStep = s.CurrentStep
			if s.Record.Location != nil {
				l.Address = s.Record.Location.Address
			}
		} else if rec, err := decodeRecord(e.Value); err == nil {
			l.CurrentStep = InferStep(rec)
			if rec.Location != nil {
				l.Address = rec.Location.Address
			}
		}
		l.StepName = l.CurrentStep.String()
		out = append(out, l)
	}
	return out, nil
}

// Delete removes the stored record for id and drops its cached Accumulator.
// It returns storage.ErrNotFound when there was nothing to delete.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, cached := r.items[id]
	delete(r.items, id)

	err := r.store.DeleteValue(KeyPrefix + id)
	if errors.Is(err, storage.ErrNotFound) && cached {
		return nil
	}
	return err
}
