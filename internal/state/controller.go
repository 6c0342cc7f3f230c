// Package state holds the live snapshots of events and day marks and
// serializes every mutation through a single write worker.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/starford/daymark/internal/apperr"
	"github.com/starford/daymark/internal/models"
	"github.com/starford/daymark/internal/repository"
	"github.com/starford/daymark/internal/stream"
)

// DefaultGracePeriod is how long a snapshot query keeps running after its
// last subscriber leaves.
const DefaultGracePeriod = 5 * time.Second

const (
	defaultQueueSize = 64
	lookupTimeout    = 5 * time.Second
)

// Repository is the persistence surface the controller drives.
type Repository interface {
	ObserveEvents(ctx context.Context) (<-chan []models.Event, <-chan error)
	ObserveDayMarks(ctx context.Context) (<-chan map[models.Date]models.Color, <-chan error)
	// Event reads the stored event with id, or apperr.ErrNotFound.
	Event(ctx context.Context, id int64) (models.Event, error)
	AddEvent(ctx context.Context, e models.Event) (int64, error)
	UpdateEvent(ctx context.Context, e models.Event) error
	DeleteEvent(ctx context.Context, e models.Event) error
	SetDayMark(ctx context.Context, date models.Date, color *models.Color) error
}

var _ Repository = (*repository.Repository)(nil)

// Failure describes a scheduled mutation that did not complete. ID ties the
// log line to whatever the failure handler publishes.
type Failure struct {
	ID  string
	Op  string
	Err error
}

func (f Failure) Error() string { return f.Op + ": " + f.Err.Error() }

func (f Failure) Unwrap() error { return f.Err }

type job struct {
	op   string
	fn   func(ctx context.Context) error
	sync chan error
}

// Controller caches the current events and day marks and accepts
// fire-and-forget mutations. Mutations are applied by Run in submission
// order; their effects become visible through the next snapshot emission.
type Controller struct {
	repo      Repository
	logger    *slog.Logger
	grace     time.Duration
	queueSize int
	onFailure func(Failure)

	events *stream.Shared[[]models.Event]
	marks  *stream.Shared[map[models.Date]models.Color]

	// mu is held shared by schedule so Run can wait out in-flight sends
	// before draining the queue.
	mu      sync.RWMutex
	jobs    chan job
	done    chan struct{}
	stop    sync.Once
	running atomic.Bool

	// lastFailure is owned by the write worker.
	lastFailure error
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for mutation failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithGracePeriod sets how long snapshot queries outlive their last subscriber.
func WithGracePeriod(d time.Duration) Option {
	return func(c *Controller) { c.grace = d }
}

// WithFailureHandler registers fn to receive every failed mutation. fn runs
// on the write worker and must not block.
func WithFailureHandler(fn func(Failure)) Option {
	return func(c *Controller) { c.onFailure = fn }
}

// WithQueueSize bounds the number of scheduled but unapplied mutations.
// Scheduling blocks while the queue is full.
func WithQueueSize(n int) Option {
	return func(c *Controller) { c.queueSize = n }
}

// New creates a controller over repo. Call Run to start applying mutations.
func New(repo Repository, opts ...Option) *Controller {
	c := &Controller{
		repo:      repo,
		logger:    slog.Default(),
		grace:     DefaultGracePeriod,
		queueSize: defaultQueueSize,
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.queueSize < 1 {
		c.queueSize = 1
	}
	c.jobs = make(chan job, c.queueSize)

	c.events = stream.NewShared[[]models.Event](repo.ObserveEvents, []models.Event{}, c.grace)
	c.marks = stream.NewShared[map[models.Date]models.Color](repo.ObserveDayMarks, map[models.Date]models.Color{}, c.grace)
	return c
}

// Events is the live list of all events, ordered by id. Snapshots are shared
// between subscribers and must not be modified.
func (c *Controller) Events() *stream.Shared[[]models.Event] { return c.events }

// DayMarks is the live date to colour mapping. Snapshots are shared between
// subscribers and must not be modified.
func (c *Controller) DayMarks() *stream.Shared[map[models.Date]models.Color] { return c.marks }

// Run applies scheduled mutations one at a time until ctx is cancelled.
// On cancellation it stops accepting new mutations and applies everything
// already queued before returning.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("state: controller already running")
	}
	defer c.stop.Do(func() { close(c.done) })

	writeCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			c.stop.Do(func() { close(c.done) })
			c.mu.Lock()
			c.mu.Unlock()
			c.drain(writeCtx)
			return nil
		case j := <-c.jobs:
			c.apply(writeCtx, j)
		}
	}
}

func (c *Controller) drain(ctx context.Context) {
	for {
		select {
		case j := <-c.jobs:
			c.apply(ctx, j)
		default:
			return
		}
	}
}

func (c *Controller) apply(ctx context.Context, j job) {
	if j.sync != nil {
		j.sync <- c.lastFailure
		return
	}
	err := j.fn(ctx)
	if err == nil {
		c.lastFailure = nil
		return
	}
	f := Failure{ID: uuid.NewString(), Op: j.op, Err: err}
	c.lastFailure = f
	c.logger.Error("state: mutation failed",
		slog.String("failure_id", f.ID),
		slog.String("op", f.Op),
		slog.String("error", err.Error()))
	if c.onFailure != nil {
		c.onFailure(f)
	}
}

// Close stops the snapshot streams. Scheduling after Close fails with
// apperr.ErrClosed.
func (c *Controller) Close() {
	c.stop.Do(func() { close(c.done) })
	c.events.Close()
	c.marks.Close()
}

func (c *Controller) schedule(op string, fn func(ctx context.Context) error) error {
	return c.enqueue(job{op: op, fn: fn})
}

func (c *Controller) enqueue(j job) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	select {
	case <-c.done:
		return apperr.ErrClosed
	default:
	}
	select {
	case c.jobs <- j:
		return nil
	case <-c.done:
		return apperr.ErrClosed
	}
}

// Sync blocks until every mutation scheduled before it has been applied.
// It returns the Failure of the last mutation applied before it, if that
// mutation failed.
func (c *Controller) Sync(ctx context.Context) error {
	result := make(chan error, 1)
	if err := c.enqueue(job{op: "sync", sync: result}); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
	}
	// The worker drains queued jobs after done closes.
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddEvent schedules a new, not yet done event. The title is trimmed; an
// empty title is rejected with apperr.ErrValidation and nothing is written.
func (c *Controller) AddEvent(date models.Date, minutes int, title string, color models.Color) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: title is required", apperr.ErrValidation)
	}
	e := models.Event{Date: date, Minutes: minutes, Title: title, Color: color}
	if err := e.Validate(); err != nil {
		return err
	}
	return c.schedule("add_event", func(ctx context.Context) error {
		_, err := c.repo.AddEvent(ctx, e)
		return err
	})
}

// UpdateEvent schedules a full replace of the event with e.ID.
func (c *Controller) UpdateEvent(e models.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return c.schedule("update_event", func(ctx context.Context) error {
		return c.repo.UpdateEvent(ctx, e)
	})
}

// DeleteEvent schedules removal of the event with id. An id that no longer
// exists when the removal runs is ignored.
func (c *Controller) DeleteEvent(id int64) error {
	return c.schedule("delete_event", func(ctx context.Context) error {
		e, ok, err := c.resolve(ctx, id)
		if err != nil || !ok {
			return err
		}
		return c.repo.DeleteEvent(ctx, e)
	})
}

// ToggleDone schedules flipping the completion flag of the event with id.
// The flag is read from storage when the toggle runs, so back-to-back toggles
// compose. An id that no longer exists by then is ignored.
func (c *Controller) ToggleDone(id int64) error {
	return c.schedule("toggle_event", func(ctx context.Context) error {
		e, ok, err := c.resolve(ctx, id)
		if err != nil || !ok {
			return err
		}
		e.Done = !e.Done
		return c.repo.UpdateEvent(ctx, e)
	})
}

// SetDayMark schedules marking date with color, or clearing its mark when
// color is nil.
func (c *Controller) SetDayMark(date models.Date, color *models.Color) error {
	if err := date.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	if color != nil {
		if err := color.Validate(); err != nil {
			return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
		}
		v := *color
		color = &v
	}
	return c.schedule("set_day_mark", func(ctx context.Context) error {
		return c.repo.SetDayMark(ctx, date, color)
	})
}

// Event returns the event with id from the current snapshot.
func (c *Controller) Event(ctx context.Context, id int64) (models.Event, error) {
	e, ok, err := c.lookup(ctx, id)
	if err != nil {
		return models.Event{}, err
	}
	if !ok {
		return models.Event{}, fmt.Errorf("event %d: %w", id, apperr.ErrNotFound)
	}
	return e, nil
}

// resolve reads id from storage on the write worker. Every earlier mutation
// has been applied by then, which a cached snapshot cannot promise.
func (c *Controller) resolve(ctx context.Context, id int64) (models.Event, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	e, err := c.repo.Event(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return models.Event{}, false, nil
	}
	if err != nil {
		return models.Event{}, false, err
	}
	return e, true, nil
}

// lookup resolves id against the latest snapshot, starting the events query
// if nothing is observing it.
func (c *Controller) lookup(ctx context.Context, id int64) (models.Event, bool, error) {
	events, err := c.events.Await(ctx)
	if err != nil {
		return models.Event{}, false, err
	}
	for _, e := range events {
		if e.ID == id {
			return e, true, nil
		}
	}
	return models.Event{}, false, nil
}
