package resources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/acme/petadoption/internal/core/domain"
	"github.com/acme/petadoption/internal/core/ports"
	"github.com/acme/petadoption/internal/idempotency"
	"github.com/acme/petadoption/internal/telemetry"
)

// collection describes one entity type independent of the URL it is served under.
type collection[T any] struct {
	// label names the collection in metrics, spans and breaker names.
	label      string
	repo       ports.Repository[T]
	sortFields map[string]bool

	getID func(*T) int64
	setID func(*T, int64)

	// resolve replaces references in the entity with stored rows.
	resolve func(ctx context.Context, entity *T) error
	// references counts rows that block deleting id.
	references func(ctx context.Context, id int64) (int64, error)

	msgNotFound    string
	msgConflict    string // takes the reference count
	msgUnavailable string
}

// route is one URL prefix serving a collection.
type route struct {
	prefix      string
	listOrder   domain.Order
	searchOrder domain.Order
	// versioned routes are idempotent, run writes through a Guard, fall
	// back on list failures and return Location on create.
	versioned bool
}

type deps struct {
	validator   *Validator
	registry    *idempotency.Registry
	metrics     *telemetry.Metrics
	logger      *slog.Logger
	listTimeout time.Duration
	guard       GuardSettings
}

// endpoint serves a collection under a route.
type endpoint[T any] struct {
	c     *collection[T]
	rt    route
	d     deps
	guard *Guard
}

func mount[T any](r chi.Router, c *collection[T], rt route, d deps) {
	e := &endpoint[T]{c: c, rt: rt, d: d}
	if rt.versioned {
		e.guard = NewGuard(c.label+":"+rt.prefix, d.guard, d.logger)
		d.registry.Register(http.MethodPost, rt.prefix, idempotency.CreateTTL)
		d.registry.Register(http.MethodPut, rt.prefix+"/{id}", 0)
		d.registry.Register(http.MethodDelete, rt.prefix+"/{id}", 0)
	}

	r.Route(rt.prefix, func(r chi.Router) {
		r.Get("/", e.list)
		r.Get("/search", e.search)
		r.Get("/{id}", e.get)
		r.Post("/", e.create)
		r.Put("/{id}", e.update)
		r.Delete("/{id}", e.delete)
	})
}

func (e *endpoint[T]) startSpan(r *http.Request, op string) (context.Context, trace.Span) {
	return telemetry.Tracer().Start(r.Context(), e.c.label+"."+op,
		trace.WithAttributes(
			attribute.String("petadoption.collection", e.c.label),
			attribute.String("petadoption.route", e.rt.prefix),
		))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (e *endpoint[T]) list(w http.ResponseWriter, r *http.Request) {
	ctx, span := e.startSpan(r, "list")
	var err error
	defer func() { endSpan(span, err) }()

	if !e.rt.versioned {
		var items []T
		items, err = e.c.repo.List(ctx, e.rt.listOrder)
		if err != nil {
			writeError(w, r, e.d.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(items))
		return
	}

	listCtx, cancel := context.WithTimeout(ctx, e.d.listTimeout)
	defer cancel()

	var items []T
	items, err = e.c.repo.List(listCtx, e.rt.listOrder)
	if err != nil {
		e.d.metrics.Fallback(e.c.label, "list")
		e.d.logger.WarnContext(ctx, "list failed, serving fallback",
			slog.String("route", e.rt.prefix),
			slog.String("error", err.Error()))
		w.Header().Set(HeaderFallback, "true")
		writeJSON(w, http.StatusOK, []T{})
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

func (e *endpoint[T]) get(w http.ResponseWriter, r *http.Request) {
	ctx, span := e.startSpan(r, "get")
	var err error
	defer func() { endSpan(span, err) }()

	var id int64
	if id, err = pathID(r, e.c.msgNotFound); err != nil {
		writeError(w, r, e.d.logger, err)
		return
	}

	var entity *T
	entity, err = e.c.repo.Get(ctx, id)
	if err != nil {
		writeError(w, r, e.d.logger, e.notFound(err))
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (e *endpoint[T]) search(w http.ResponseWriter, r *http.Request) {
	ctx, span := e.startSpan(r, "search")
	var err error
	defer func() { endSpan(span, err) }()

	q := searchParams(r, e.c.sortFields, e.rt.searchOrder)
	span.SetAttributes(attribute.String("petadoption.search.q", q.Text), attribute.Int("petadoption.search.page", q.Page))

	items, total, err := e.c.repo.Search(ctx, q)
	if err != nil {
		writeError(w, r, e.d.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResult(e.rt.prefix, q, items, total))
}

func (e *endpoint[T]) create(w http.ResponseWriter, r *http.Request) {
	ctx, span := e.startSpan(r, "create")
	var err error
	defer func() { endSpan(span, err) }()

	var entity T
	if err = e.decode(r, &entity); err != nil {
		writeError(w, r, e.d.logger, err)
		return
	}
	e.c.setID(&entity, 0)

	persist := func(ctx context.Context) error {
		if e.c.resolve != nil {
			if err := e.c.resolve(ctx, &entity); err != nil {
				return err
			}
		}
		return e.c.repo.Create(ctx, &entity)
	}

	if !e.rt.versioned {
		if err = persist(ctx); err != nil {
			writeError(w, r, e.d.logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, entity)
		return
	}

	if err = e.guard.Do(ctx, persist); err != nil {
		if isInfrastructure(err) {
			e.d.metrics.Fallback(e.c.label, "create")
			e.d.logger.WarnContext(ctx, "create failed, serving fallback",
				slog.String("route", e.rt.prefix),
				slog.String("breaker", e.guard.State().String()),
				slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, domain.ErrUnavailable(e.c.msgUnavailable))
			return
		}
		writeError(w, r, e.d.logger, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("%s/%d", e.rt.prefix, e.c.getID(&entity)))
	writeJSON(w, http.StatusCreated, entity)
}

func (e *endpoint[T]) update(w http.ResponseWriter, r *http.Request) {
	ctx, span := e.startSpan(r, "update")
	var err error
	defer func() { endSpan(span, err) }()

	var id int64
	if id, err = pathID(r, e.c.msgNotFound); err != nil {
		writeError(w, r, e.d.logger, err)
		return
	}

	var entity T
	if err = e.decode(r, &entity); err != nil {
		writeError(w, r, e.d.logger, err)
		return
	}

	if _, err = e.c.repo.Get(ctx, id); err != nil {
		writeError(w, r, e.d.logger, e.notFound(err))
		return
	}
	if e.c.resolve != nil {
		if err = e.c.resolve(ctx, &entity); err != nil {
			writeError(w, r, e.d.logger, err)
			return
		}
	}
	if err = e.c.repo.Update(ctx, id, &entity); err != nil {
		writeError(w, r, e.d.logger, e.notFound(err))
		return
	}

	e.c.setID(&entity, id)
	writeJSON(w, http.StatusOK, entity)
}

func (e *endpoint[T]) delete(w http.ResponseWriter, r *http.Request) {
	ctx, span := e.startSpan(r, "delete")
	var err error
	defer func() { endSpan(span, err) }()

	var id int64
	if id, err = pathID(r, e.c.msgNotFound); err != nil {
		writeError(w, r, e.d.logger, err)
		return
	}

	if e.c.references != nil {
		if _, err = e.c.repo.Get(ctx, id); err != nil {
			writeError(w, r, e.d.logger, e.notFound(err))
			return
		}
		var n int64
		if n, err = e.c.references(ctx, id); err != nil {
			writeError(w, r, e.d.logger, err)
			return
		}
		if n > 0 {
			err = domain.ErrReferenced(fmt.Sprintf(e.c.msgConflict, n))
			writeError(w, r, e.d.logger, err)
			return
		}
	}

	if err = e.c.repo.Delete(ctx, id); err != nil {
		writeError(w, r, e.d.logger, e.notFound(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *endpoint[T]) decode(r *http.Request, entity *T) error {
	if err := decodeBody(r, entity); err != nil {
		return err
	}
	return e.d.validator.Struct(entity)
}

// notFound maps domain.ErrNotFound to the collection's 404.
func (e *endpoint[T]) notFound(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrResourceNotFound(e.c.msgNotFound)
	}
	return err
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
