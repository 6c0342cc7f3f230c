// Package repository maps stored rows to domain models and is the single
// write path to the store.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/daymark/internal/apperr"
	"github.com/starford/daymark/internal/models"
	"github.com/starford/daymark/internal/store"
)

// Repository exposes live event and day-mark collections and the mutations
// that change them.
type Repository struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a repository over s.
func New(s store.Store, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{store: s, logger: logger}
}

// ObserveEvents emits the full event list (ordered by id) now and again after
// every change to the events table, until ctx is cancelled. Failed queries
// are reported on the error channel, wrapped in apperr.ErrStorage.
func (r *Repository) ObserveEvents(ctx context.Context) (<-chan []models.Event, <-chan error) {
	return observe(ctx, r, store.TableEvents, r.loadEvents)
}

// ObserveDayMarks emits the full date to colour mapping now and again after
// every change to the day_marks table, until ctx is cancelled.
func (r *Repository) ObserveDayMarks(ctx context.Context) (<-chan map[models.Date]models.Color, <-chan error) {
	return observe(ctx, r, store.TableDayMarks, r.loadDayMarks)
}

// observe re-runs load whenever table is invalidated. The watch is registered
// before the first load so no change between the two is lost. A failed load
// is logged and reported on the one-slot error channel; the previous emission
// stays current and the next invalidation retries.
func observe[T any](ctx context.Context, r *Repository, table store.Table, load func(context.Context) (T, error)) (<-chan T, <-chan error) {
	out := make(chan T)
	errs := make(chan error, 1)
	changed, stop := r.store.Watch(table)

	go func() {
		defer close(out)
		defer close(errs)
		defer stop()
		for {
			v, err := load(ctx)
			switch {
			case err == nil:
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			case ctx.Err() != nil:
				return
			default:
				r.logger.Error("repository: query failed",
					slog.String("table", string(table)),
					slog.String("error", err.Error()))
				report(errs, storageErr("query "+string(table), err))
			}

			select {
			case <-ctx.Done():
				return
			case <-changed:
			}
		}
	}()
	return out, errs
}

// report replaces any error still pending in errs with err.
func report(errs chan error, err error) {
	select {
	case <-errs:
	default:
	}
	select {
	case errs <- err:
	default:
	}
}

func (r *Repository) loadEvents(ctx context.Context) ([]models.Event, error) {
	rows, err := r.store.Events(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Event, 0, len(rows))
	for _, row := range rows {
		e, err := eventFromRow(row)
		if err != nil {
			r.logger.Warn("repository: skipping malformed event row",
				slog.Int64("id", row.ID),
				slog.String("error", err.Error()))
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *Repository) loadDayMarks(ctx context.Context) (map[models.Date]models.Color, error) {
	rows, err := r.store.DayMarks(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[models.Date]models.Color, len(rows))
	for _, row := range rows {
		m, err := dayMarkFromRow(row)
		if err != nil {
			r.logger.Warn("repository: skipping malformed day mark row",
				slog.String("date", row.Date),
				slog.String("error", err.Error()))
			continue
		}
		out[m.Date] = m.Color
	}
	return out, nil
}

// Event reads the stored event with id, bypassing any observation. It
// returns apperr.ErrNotFound when there is none.
func (r *Repository) Event(ctx context.Context, id int64) (models.Event, error) {
	row, err := r.store.Event(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return models.Event{}, fmt.Errorf("event %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Event{}, storageErr("get event", err)
	}
	return eventFromRow(row)
}

// AddEvent inserts e as a new event. Any identity on e is ignored; the
// store-assigned id is returned.
func (r *Repository) AddEvent(ctx context.Context, e models.Event) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	e.ID = 0
	id, err := r.store.InsertEvent(ctx, eventToRow(e))
	if err != nil {
		return 0, storageErr("add event", err)
	}
	r.logger.Debug("repository: event added", slog.Int64("id", id))
	return id, nil
}

// UpdateEvent replaces the stored event with the same id. Updating an id that
// does not exist is a silent no-op.
func (r *Repository) UpdateEvent(ctx context.Context, e models.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	err := r.store.UpdateEvent(ctx, eventToRow(e))
	if errors.Is(err, apperr.ErrNotFound) {
		r.logger.Debug("repository: update of unknown event ignored", slog.Int64("id", e.ID))
		return nil
	}
	if err != nil {
		return storageErr("update event", err)
	}
	return nil
}

// DeleteEvent removes the event with e's id. Deleting an unknown id is a no-op.
func (r *Repository) DeleteEvent(ctx context.Context, e models.Event) error {
	if err := r.store.DeleteEvent(ctx, e.ID); err != nil {
		return storageErr("delete event", err)
	}
	return nil
}

// SetDayMark stores color as the mark for date, or removes the mark when
// color is nil.
func (r *Repository) SetDayMark(ctx context.Context, date models.Date, color *models.Color) error {
	if color == nil {
		if err := date.Validate(); err != nil {
			return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
		}
		if err := r.store.DeleteDayMark(ctx, date.String()); err != nil {
			return storageErr("clear day mark", err)
		}
		return nil
	}

	m := models.DayMark{Date: date, Color: *color}
	if err := m.Validate(); err != nil {
		return err
	}
	if err := r.store.UpsertDayMark(ctx, dayMarkToRow(m)); err != nil {
		return storageErr("set day mark", err)
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("repository: %s: %w: %w", op, apperr.ErrStorage, err)
}
