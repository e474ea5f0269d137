package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"eventstore/pkg/resources"
)

type Repository interface {
	CreateEvent(ctx context.Context, req *EventRequest) (*Event, error)
	ListEvents(ctx context.Context) ([]Event, error)
	UpdateEvent(ctx context.Context, id string, patch *EventPatch) (*Event, error)
	DeleteEvent(ctx context.Context, id string) (int, error)
	SearchEvents(ctx context.Context, query string) ([]Event, error)
	AllEvents(ctx context.Context) []Event
	Snapshot(ctx context.Context, dir string) (string, error)
	Count() int
	Close() error
}

type RepositoryOption func(*repository)

// WithStrictLoad makes a malformed durable file fail construction instead of
// starting from an empty collection.
func WithStrictLoad(strict bool) RepositoryOption {
	return func(r *repository) { r.strictLoad = strict }
}

func WithStrictTimes(strict bool) RepositoryOption {
	return func(r *repository) { r.strictTimes = strict }
}

// repository keeps the whole collection in memory and rewrites the durable
// file after every mutation. The mutex serialises requests.
type repository struct {
	mu          sync.Mutex
	tracer      trace.Tracer
	metrics     *StoreMetrics
	store       resources.FileStore
	events      []Event
	dirty       bool
	strictLoad  bool
	strictTimes bool
}

func NewRepository(ctx context.Context, store resources.FileStore, opts ...RepositoryOption) (Repository, error) {
	r := &repository{
		tracer:  otel.GetTracerProvider().Tracer("eventstore/core"),
		metrics: NewStoreMetrics(),
		store:   store,
		events:  []Event{},
	}

	for _, opt := range opts {
		opt(r)
	}

	err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	return r, nil
}

func (r *repository) load(ctx context.Context) (err error) {
	start := time.Now()

	defer func() { r.metrics.Observe(ctx, "load", start, err) }()

	ctx, span := r.tracer.Start(ctx, "repository.load")
	defer span.End()

	data, err := r.store.ReadAll(ctx)
	if errors.Is(err, os.ErrNotExist) {
		log.Ctx(ctx).Info().Str("path", r.store.Path()).Msg("no durable file yet, starting empty")
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}

	var events []Event

	err = json.Unmarshal(data, &events)
	if err != nil {
		if r.strictLoad {
			return fmt.Errorf("failed to decode %s: %w", r.store.Path(), err)
		}

		log.Ctx(ctx).Warn().Err(err).Str("path", r.store.Path()).Msg("durable file is malformed, starting empty")

		return nil
	}

	if events != nil {
		r.events = events
	}

	span.SetAttributes(attribute.Int("events.count", len(r.events)))
	log.Ctx(ctx).Info().Int("count", len(r.events)).Str("path", r.store.Path()).Msg("events loaded")

	return nil
}

// persist writes events and only then makes them the live collection, so a
// failed write leaves memory untouched. Callers hold r.mu.
func (r *repository) persist(ctx context.Context, events []Event) error {
	data, err := json.MarshalIndent(events, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode events: %w", err)
	}

	err = r.store.WriteAll(ctx, data)
	if err != nil {
		return fmt.Errorf("failed to persist events: %w", err)
	}

	r.events = events
	r.dirty = true

	return nil
}

func (r *repository) CreateEvent(ctx context.Context, req *EventRequest) (_ *Event, err error) {
	start := time.Now()

	defer func() { r.metrics.Observe(ctx, "create_event", start, err) }()

	ctx, span := r.tracer.Start(ctx, "repository.CreateEvent")
	defer span.End()

	err = ValidateEvent(*req, r.strictTimes)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var id string

	if len(req.Id) > 0 {
		id, err = ParseEventID(req.Id)
		if err != nil {
			return nil, err
		}

		if r.indexOf(id) >= 0 {
			return nil, fmt.Errorf("%w: %s", ErrConflict, id)
		}
	} else {
		id = r.nextID(ctx)
	}

	event := Event{
		Id:        id,
		Title:     *req.Title,
		StartTime: *req.StartTime,
		EndTime:   *req.EndTime,
	}

	if req.Description != nil {
		event.Description = *req.Description
	}

	err = r.persist(ctx, append(slices.Clone(r.events), event))
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("event.id", id))

	return &event, nil
}

// nextID is one more than the largest integer id. Ids that are not integers
// (hand edited files) are skipped.
func (r *repository) nextID(ctx context.Context) string {
	highest := 0

	for _, event := range r.events {
		n, err := strconv.Atoi(event.Id)
		if err != nil {
			log.Ctx(ctx).Warn().Str("id", event.Id).Msg("ignoring non numeric id")
			continue
		}

		highest = max(highest, n)
	}

	return strconv.Itoa(highest + 1)
}

func (r *repository) indexOf(id string) int {
	return slices.IndexFunc(r.events, func(event Event) bool { return event.Id == id })
}

func (r *repository) ListEvents(ctx context.Context) (_ []Event, err error) {
	start := time.Now()

	defer func() { r.metrics.Observe(ctx, "list_events", start, err) }()

	_, span := r.tracer.Start(ctx, "repository.ListEvents")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	type keyed struct {
		at    time.Time
		event Event
	}

	entries := make([]keyed, 0, len(r.events))

	for _, event := range r.events {
		at, parseErr := ParseEventTime(event.StartTime)
		if parseErr != nil {
			err = fmt.Errorf("%w: event %s: %w", ErrInvalidStartTime, event.Id, parseErr)
			return nil, err
		}

		entries = append(entries, keyed{at: at, event: event})
	}

	slices.SortStableFunc(entries, func(a, b keyed) int {
		return a.at.Compare(b.at)
	})

	events := make([]Event, 0, len(entries))
	for _, entry := range entries {
		events = append(events, entry.event)
	}

	return events, nil
}

func (r *repository) UpdateEvent(ctx context.Context, id string, patch *EventPatch) (_ *Event, err error) {
	start := time.Now()

	defer func() { r.metrics.Observe(ctx, "update_event", start, err) }()

	ctx, span := r.tracer.Start(ctx, "repository.UpdateEvent", trace.WithAttributes(attribute.String("event.id", id)))
	defer span.End()

	err = ValidatePatch(*patch, r.strictTimes)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}

	events := slices.Clone(r.events)
	event := &events[idx]

	overwrite(&event.Title, patch.Title)
	overwrite(&event.Description, patch.Description)
	overwrite(&event.StartTime, patch.StartTime)
	overwrite(&event.EndTime, patch.EndTime)

	err = r.persist(ctx, events)
	if err != nil {
		return nil, err
	}

	updated := *event

	return &updated, nil
}

// DeleteEvent removes every event carrying id and reports how many went away.
func (r *repository) DeleteEvent(ctx context.Context, id string) (_ int, err error) {
	start := time.Now()

	defer func() { r.metrics.Observe(ctx, "delete_event", start, err) }()

	ctx, span := r.tracer.Start(ctx, "repository.DeleteEvent", trace.WithAttributes(attribute.String("event.id", id)))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	events := slices.DeleteFunc(slices.Clone(r.events), func(event Event) bool { return event.Id == id })
	removed := len(r.events) - len(events)

	err = r.persist(ctx, events)
	if err != nil {
		return 0, err
	}

	return removed, nil
}

func (r *repository) SearchEvents(ctx context.Context, query string) (_ []Event, err error) {
	start := time.Now()

	defer func() { r.metrics.Observe(ctx, "search_events", start, err) }()

	_, span := r.tracer.Start(ctx, "repository.SearchEvents")
	defer span.End()

	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, fmt.Errorf("%w: query parameter 'q' is required", ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	results := []Event{}

	for _, event := range r.events {
		if strings.Contains(strings.ToLower(event.Title), needle) ||
			strings.Contains(strings.ToLower(event.Description), needle) {
			results = append(results, event)
		}
	}

	span.SetAttributes(attribute.Int("events.matched", len(results)))

	return results, nil
}

// AllEvents returns a copy of the collection in stored order.
func (r *repository) AllEvents(_ context.Context) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.events)
}

// Snapshot writes the current collection to a timestamped file under dir.
func (r *repository) Snapshot(ctx context.Context, dir string) (_ string, err error) {
	start := time.Now()

	defer func() { r.metrics.Observe(ctx, "snapshot", start, err) }()

	ctx, span := r.tracer.Start(ctx, "repository.Snapshot")
	defer span.End()

	err = os.MkdirAll(dir, 0o750)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	r.mu.Lock()
	data, err := json.MarshalIndent(r.events, "", "    ")
	r.mu.Unlock()

	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	path := filepath.Join(dir, "events-"+start.UTC().Format("20060102T150405.000000000Z")+".json")

	err = resources.NewFileStore(path).WriteAll(ctx, data)
	if err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	return path, nil
}

func (r *repository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.events)
}

// Close flushes the collection one last time. A collection nothing was
// written to since load is left alone, so a file that failed to load keeps
// its bytes.
func (r *repository) Close() error {
	ctx := context.Background()

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.dirty {
		return nil
	}

	return r.persist(ctx, r.events)
}

func overwrite(dst *string, value *string) {
	if value != nil {
		*dst = *value
	}
}

/*

 */

type StoreMetrics struct {
	opTotal   metric.Int64Counter
	opErrors  metric.Int64Counter
	opLatency metric.Float64Histogram
}

func NewStoreMetrics() *StoreMetrics {
	meter := otel.Meter("eventstore/store")

	opTotal, _ := meter.Int64Counter("store.operation.total")
	opErrors, _ := meter.Int64Counter("store.operation.errors.total")
	opLatency, _ := meter.Float64Histogram("store.operation.duration.ms")

	return &StoreMetrics{opTotal: opTotal, opErrors: opErrors, opLatency: opLatency}
}

func (m *StoreMetrics) Observe(ctx context.Context, op string, start time.Time, err error) {
	attrs := metric.WithAttributes(
		attribute.String("store.system", "file"),
		attribute.String("store.operation", op), // ej: "create_event", "list_events"
	)

	m.opTotal.Add(ctx, 1, attrs)
	m.opLatency.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)

	if err != nil {
		m.opErrors.Add(ctx, 1, attrs)
	}
}
