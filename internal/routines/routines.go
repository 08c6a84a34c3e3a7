// Package routines keeps the user's workout routines as one JSON-encoded list in
// the local preference store.
package routines

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-scan/internal/constants"
	"github.com/kozaktomas/face-scan/internal/metrics"
	"github.com/kozaktomas/face-scan/internal/prefstore"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrDecode is returned by mutations when the stored list cannot be decoded.
// The stored payload is left untouched.
var ErrDecode = errors.New("stored routines are malformed")

var errAlreadySeeded = errors.New("routines already stored")

// Exercise is one entry of a routine.
type Exercise struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Sets        int    `json:"sets" yaml:"sets"`
	Reps        int    `json:"reps" yaml:"reps"`
	Description string `json:"description" yaml:"description"`
}

// Routine is a named, ordered list of exercises.
type Routine struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	Exercises   []Exercise `json:"exercises" yaml:"exercises"`
}

// Validate reports whether the routine can be stored.
func (r Routine) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("routine id is required")
	}
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("routine title is required")
	}
	for i, e := range r.Exercises {
		if e.Sets < 0 || e.Reps < 0 {
			return fmt.Errorf("exercise %d: sets and reps must not be negative", i+1)
		}
	}
	return nil
}

// Store is the key-value persistence the repository runs on.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Update(ctx context.Context, key string, fn prefstore.UpdateFunc) error
	Watch(ctx context.Context, key string) <-chan string
}

// Repository reads and writes the routine list. Every mutation rewrites the
// whole list inside one store transaction.
type Repository struct {
	store Store
	log   logr.Logger
	newID func() string
}

func NewRepository(store Store, log logr.Logger) *Repository {
	return &Repository{
		store: store,
		log:   log,
		newID: uuid.NewString,
	}
}

// decode parses a stored payload. An absent or empty payload is an empty list.
func decode(payload string) ([]Routine, error) {
	if strings.TrimSpace(payload) == "" {
		return []Routine{}, nil
	}
	var list []Routine
	if err := json.Unmarshal([]byte(payload), &list); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if list == nil {
		list = []Routine{}
	}
	return list, nil
}

func encode(list []Routine) (string, error) {
	out := make([]Routine, len(list))
	for i, r := range list {
		if r.Exercises == nil {
			r.Exercises = []Exercise{}
		}
		out[i] = r
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode routines: %w", err)
	}
	return string(data), nil
}

// decodeOrEmpty is the read path: a malformed payload degrades to an empty list.
func (r *Repository) decodeOrEmpty(payload string) []Routine {
	list, err := decode(payload)
	if err != nil {
		metrics.RecordRoutineDecodeFailure()
		r.log.V(1).Info("ignoring malformed routines payload", "error", err.Error())
		return []Routine{}
	}
	return list
}

// List streams the routine list: the current list first, then the list after
// every change, until ctx is done.
func (r *Repository) List(ctx context.Context) <-chan []Routine {
	out := make(chan []Routine)
	payloads := r.store.Watch(ctx, constants.RoutinesKey)

	go func() {
		defer close(out)
		for payload := range payloads {
			select {
			case out <- r.decodeOrEmpty(payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// Snapshot returns the current routine list once.
func (r *Repository) Snapshot(ctx context.Context) ([]Routine, error) {
	payload, _, err := r.store.Get(ctx, constants.RoutinesKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read routines: %w", err)
	}
	return r.decodeOrEmpty(payload), nil
}

func (r *Repository) mutate(ctx context.Context, operation string, fn func([]Routine) []Routine) error {
	err := r.store.Update(ctx, constants.RoutinesKey, func(current string, found bool) (string, error) {
		list, err := decode(current)
		if err != nil {
			return "", err
		}
		return encode(fn(list))
	})
	if err != nil {
		if errors.Is(err, ErrDecode) {
			metrics.RecordRoutineDecodeFailure()
		}
		return fmt.Errorf("failed to %s routine: %w", operation, err)
	}
	metrics.RecordRoutineMutation(operation)
	r.log.V(1).Info("routines updated", "operation", operation)
	return nil
}

// Add appends routine to the list.
func (r *Repository) Add(ctx context.Context, routine Routine) error {
	return r.mutate(ctx, "add", func(list []Routine) []Routine {
		return append(list, routine)
	})
}

// Update replaces the first routine whose id matches. Without a match the list
// is left as it is.
func (r *Repository) Update(ctx context.Context, routine Routine) error {
	return r.mutate(ctx, "update", func(list []Routine) []Routine {
		for i := range list {
			if list[i].ID == routine.ID {
				list[i] = routine
				break
			}
		}
		return list
	})
}

// Delete removes every routine with the given id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.mutate(ctx, "delete", func(list []Routine) []Routine {
		kept := list[:0]
		for _, routine := range list {
			if routine.ID != id {
				kept = append(kept, routine)
			}
		}
		return kept
	})
}

// Save overwrites the stored list.
func (r *Repository) Save(ctx context.Context, list []Routine) error {
	payload, err := encode(list)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, constants.RoutinesKey, payload); err != nil {
		return fmt.Errorf("failed to save routines: %w", err)
	}
	metrics.RecordRoutineMutation("save")
	return nil
}

// Create adds a routine with a freshly generated id and returns it.
func (r *Repository) Create(ctx context.Context, title, description string, exercises []Exercise) (Routine, error) {
	routine := Routine{
		ID:          r.newID(),
		Title:       title,
		Description: description,
		Exercises:   exercises,
	}
	if routine.Exercises == nil {
		routine.Exercises = []Exercise{}
	}
	if err := r.Add(ctx, routine); err != nil {
		return Routine{}, err
	}
	return routine, nil
}

// Defaults returns the built-in routines.
func Defaults() ([]Routine, error) {
	var list []Routine
	if err := yaml.Unmarshal(defaultsYAML, &list); err != nil {
		return nil, fmt.Errorf("failed to parse default routines: %w", err)
	}
	return list, nil
}

// SeedDefaults stores the built-in routines when no routine list has been
// stored yet. It reports whether anything was written.
func (r *Repository) SeedDefaults(ctx context.Context) (bool, error) {
	defaults, err := Defaults()
	if err != nil {
		return false, err
	}

	err = r.store.Update(ctx, constants.RoutinesKey, func(current string, found bool) (string, error) {
		if found {
			return "", errAlreadySeeded
		}
		return encode(defaults)
	})
	if errors.Is(err, errAlreadySeeded) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to seed routines: %w", err)
	}

	metrics.RecordRoutineMutation("seed")
	r.log.Info("seeded default routines", "count", len(defaults))
	return true, nil
}
