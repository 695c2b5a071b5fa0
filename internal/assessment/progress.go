package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rain2recharge/r2r/internal/storage"
)

// DefaultClimateDelay is how long the climate step pretends to load before
// the wizard moves on to feasibility.
const DefaultClimateDelay = 1500 * time.Millisecond

var (
	// ErrCorruptRecord is returned by Load when the stored record cannot be
	// parsed. The returned Accumulator is still usable and starts empty.
	ErrCorruptRecord = errors.New("stored assessment record is corrupt")

	// ErrStepIncomplete is returned by Advance when the current step's
	// required input has not been provided.
	ErrStepIncomplete = errors.New("current step is incomplete")
)

// RecordStore defines the durable key-value operations the Accumulator needs.
// Implemented by storage.Store.
type RecordStore interface {
	SetValue(key, value string) error
	GetValue(key string) (string, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Option configures an Accumulator.
type Option func(*Accumulator)

// WithClock sets the clock used for climate timestamps.
func WithClock(c Clock) Option {
	return func(a *Accumulator) { a.clock = c }
}

// WithClimateDelay overrides DefaultClimateDelay. Zero disables the wait.
func WithClimateDelay(d time.Duration) Option {
	return func(a *Accumulator) {
		if d >= 0 {
			a.climateDelay = d
		}
	}
}

// State is a point-in-time copy of an Accumulator.
type State struct {
	Record       Record `json:"record"`
	CurrentStep  Step   `json:"currentStep"`
	StepName     string `json:"stepName"`
	InferredStep Step   `json:"inferredStep"`
}

// Accumulator holds a partial assessment, tracks the step the user is on and
// writes the whole record to durable storage after every mutation.
type Accumulator struct {
	store        RecordStore
	key          string
	clock        Clock
	climateDelay time.Duration

	mu      sync.Mutex
	record  Record
	current Step
}

// New returns an empty Accumulator at StepLocation without reading storage.
func New(store RecordStore, key string, opts ...Option) *Accumulator {
	a := &Accumulator{
		store:        store,
		key:          key,
		clock:        realClock{},
		climateDelay: DefaultClimateDelay,
		current:      StepLocation,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Load restores the record stored under key and positions the wizard at the
// step inferred from it. A missing record yields an empty Accumulator. An
// unparseable record also yields an empty Accumulator together with an error
// wrapping ErrCorruptRecord, so callers can log it and carry on.
func Load(store RecordStore, key string, opts ...Option) (*Accumulator, error) {
	a := New(store, key, opts...)

	raw, err := store.GetValue(key)
	if errors.Is(err, storage.ErrNotFound) {
		return a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading assessment %q: %w", key, err)
	}

	rec, err := decodeRecord(raw)
	if err != nil {
		return a, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	a.record = rec
	a.current = InferStep(rec)
	return a, nil
}

func decodeRecord(raw string) (Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Key returns the storage key this Accumulator persists to.
func (a *Accumulator) Key() string { return a.key }

// Snapshot returns a deep copy of the current state.
func (a *Accumulator) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return State{
		Record:       a.record.clone(),
		CurrentStep:  a.current,
		StepName:     a.current.String(),
		InferredStep: InferStep(a.record),
	}
}

// CurrentStep returns the step the user is on.
func (a *Accumulator) CurrentStep() Step {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// CanProceed reports whether step has the input it requires. Feasibility and
// results never block.
func (a *Accumulator) CanProceed(step Step) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canProceedLocked(step)
}

func (a *Accumulator) canProceedLocked(step Step) bool {
	switch step {
	case StepLocation:
		return a.record.Location != nil
	case StepProperty:
		return a.record.Property != nil
	case StepClimate:
		return a.record.Climate != nil
	default:
		return true
	}
}

// SetLocation stores the step 1 address and moves from step 1 to step 2.
func (a *Accumulator) SetLocation(ctx context.Context, loc Location) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	l := loc
	if loc.Coordinates != nil {
		c := *loc.Coordinates
		l.Coordinates = &c
	}
	a.record.Location = &l
	if a.current == StepLocation {
		a.current = StepProperty
	}
	return a.persistLocked()
}

// SetProperty stores the step 2 details and moves to the climate step.
func (a *Accumulator) SetProperty(ctx context.Context, details PropertyDetails) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := details
	a.record.Property = &d
	if a.current < StepClimate {
		a.current = StepClimate
	}
	return a.persistLocked()
}

// SetFeasibility stores a computed feasibility report.
func (a *Accumulator) SetFeasibility(ctx context.Context, report FeasibilityReport) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := report
	a.record.Feasibility = &r
	return a.persistLocked()
}

// Advance moves the wizard forward one step. Leaving the property or climate
// step loads the climate stub after the climate delay and always lands on
// feasibility, so climate is never the step Advance stops on. Leaving
// feasibility computes and stores the report if it is missing.
func (a *Accumulator) Advance(ctx context.Context) (Step, error) {
	a.mu.Lock()
	cur := a.current
	if (cur == StepLocation || cur == StepProperty) && !a.canProceedLocked(cur) {
		a.mu.Unlock()
		return cur, fmt.Errorf("%w: %s", ErrStepIncomplete, cur)
	}

	switch cur {
	case StepProperty, StepClimate:
		needsLoad := a.record.Climate == nil
		a.mu.Unlock()
		if needsLoad {
			if err := a.wait(ctx); err != nil {
				return cur, err
			}
		}
		return a.finishClimate()

	case StepFeasibility:
		defer a.mu.Unlock()
		a.current = StepResults
		if a.record.Feasibility == nil {
			report := Calculate(a.record)
			a.record.Feasibility = &report
			if err := a.persistLocked(); err != nil {
				return a.current, err
			}
		}
		return a.current, nil

	case StepResults:
		a.mu.Unlock()
		return cur, nil

	default:
		defer a.mu.Unlock()
		a.current = cur + 1
		return a.current, nil
	}
}

func (a *Accumulator) finishClimate() (Step, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.current = StepFeasibility
	if a.record.Climate != nil {
		return a.current, nil
	}
	a.record.Climate = &ClimateMarker{Loaded: true, Timestamp: a.clock.Now().UTC()}
	return a.current, a.persistLocked()
}

func (a *Accumulator) wait(ctx context.Context) error {
	if a.climateDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(a.climateDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retreat moves the wizard back one step, stopping at StepLocation.
func (a *Accumulator) Retreat(ctx context.Context) Step {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current > StepLocation {
		a.current--
	}
	return a.current
}

func (a *Accumulator) persistLocked() error {
	data, err := json.Marshal(a.record)
	if err != nil {
		return fmt.Errorf("marshalling assessment: %w", err)
	}
	if err := a.store.SetValue(a.key, string(data)); err != nil {
		return fmt.Errorf("saving assessment %q: %w", a.key, err)
	}
	return nil
}
