// Package listsync keeps paginated, filtered lists of forum records in step
// with the API: which page is shown, what it contains, and how confirmed
// creates, edits, deletes and ratings change it without a full reload.
package listsync

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"questionforum/pkg/models"
	"questionforum/pkg/session"
)

var (
	ErrStale     = errors.New("listsync: response superseded by a newer one")
	ErrBusy      = errors.New("listsync: operation already in progress")
	ErrNotLoaded = errors.New("listsync: list not loaded")
)

// Item is a record that can live in a synchronized list.
type Item interface {
	Key() int
	Created() time.Time
}

// Source fetches one page of a list.
type Source[T Item] interface {
	List(ctx context.Context, q models.ListQuery) (models.Page[T], error)
}

type SourceFunc[T Item] func(ctx context.Context, q models.ListQuery) (models.Page[T], error)

func (f SourceFunc[T]) List(ctx context.Context, q models.ListQuery) (models.Page[T], error) {
	return f(ctx, q)
}

// Order is the canonical ordering of a list, applied on the client after
// every fetch.
type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)

type Options struct {
	// Name shows up in log lines.
	Name    string
	PerPage int
	Order   Order
	Session session.Context
	Logger  *zap.Logger
}

// Snapshot is a consistent copy of an engine's state for rendering.
type Snapshot[T Item] struct {
	Items      []T
	Page       PageState
	Filter     FilterState
	TotalCount int
	Loaded     bool
	Err        error
}

// Engine owns one list: its page, filter, items and totals. It is safe for
// concurrent use. Fetches run without the lock held; every fetch carries a
// sequence number and a response older than the last applied one is
// discarded.
type Engine[T Item] struct {
	name   string
	source Source[T]
	order  Order
	sess   session.Context
	log    *zap.Logger

	mu         sync.Mutex
	pager      *Pager
	filter     FilterState
	items      []T
	totalCount int
	loaded     bool
	lastErr    error
	issued     uint64
	applied    uint64
	inflight   map[string]struct{}
}

func NewEngine[T Item](source Source[T], opts Options) *Engine[T] {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	sess := opts.Session
	if sess == nil {
		sess = session.Anonymous{}
	}
	name := opts.Name
	if name == "" {
		name = "list"
	}
	return &Engine[T]{
		name:     name,
		source:   source,
		order:    opts.Order,
		sess:     sess,
		log:      log.With(zap.String("list", name)),
		pager:    NewPager(opts.PerPage),
		inflight: make(map[string]struct{}),
	}
}

func (e *Engine[T]) Snapshot() Snapshot[T] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot[T]{
		Items:      slices.Clone(e.items),
		Page:       e.pager.State(),
		Filter:     e.filter,
		TotalCount: e.totalCount,
		Loaded:     e.loaded,
		Err:        e.lastErr,
	}
}

func (e *Engine[T]) Page() PageState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pager.State()
}

func (e *Engine[T]) Filter() FilterState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filter
}

// Find returns the item with the given key if it is on the current page.
func (e *Engine[T]) Find(key int) (T, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i := e.indexLocked(key); i >= 0 {
		return e.items[i], true
	}
	var zero T
	return zero, false
}

// ClearError dismisses the surfaced error message.
func (e *Engine[T]) ClearError() {
	e.mu.Lock()
	e.lastErr = nil
	e.mu.Unlock()
}

// Refresh fetches the current page with the current filter and replaces the
// local items and totals with the response.
func (e *Engine[T]) Refresh(ctx context.Context) error {
	return e.fetch(ctx, e.query())
}

// GoToPage moves to page n. Out-of-range pages are rejected with
// ErrPageOutOfRange and change nothing. Going to the page already shown does
// not refetch. The page only changes once its items arrived.
func (e *Engine[T]) GoToPage(ctx context.Context, n int) error {
	e.mu.Lock()
	probe := *e.pager
	changed, err := probe.GoTo(n)
	loaded := e.loaded
	q := e.queryLocked()
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if !changed && loaded {
		return nil
	}
	q.Page = n
	return e.fetch(ctx, q)
}

// GoToInput handles the "go to page" box: only integers within range
// navigate.
func (e *Engine[T]) GoToInput(ctx context.Context, input string) error {
	n, err := ParsePage(input, e.Page().Total)
	if err != nil {
		return err
	}
	return e.GoToPage(ctx, n)
}

func (e *Engine[T]) NextPage(ctx context.Context) error {
	return e.GoToPage(ctx, e.Page().Current+1)
}

func (e *Engine[T]) PrevPage(ctx context.Context) error {
	return e.GoToPage(ctx, e.Page().Current-1)
}

// SetSearch replaces the search text, resets to the first page and
// refetches.
func (e *Engine[T]) SetSearch(ctx context.Context, search string) error {
	f := e.Filter()
	f.Search = search
	return e.SetFilter(ctx, f)
}

// SetCategory replaces the category (AllCategories clears it), resets to
// the first page and refetches.
func (e *Engine[T]) SetCategory(ctx context.Context, category string) error {
	f := e.Filter()
	f.Category = category
	return e.SetFilter(ctx, f)
}

// SetFilter fetches the first page for f, even when f is the filter already
// applied.
func (e *Engine[T]) SetFilter(ctx context.Context, f FilterState) error {
	f = f.normalize()
	q := e.query()
	q.Page = 1
	q.Search = f.Search
	q.Category = f.Category
	return e.fetch(ctx, q)
}

// Report surfaces a failed operation on this list. Authorization failures
// tear the session down instead. The error is returned for convenience.
func (e *Engine[T]) Report(err error) error {
	if err == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failLocked(err)
}

func (e *Engine[T]) fetch(ctx context.Context, q models.ListQuery) error {
	seq := e.issue()
	page, err := e.source.List(ctx, q)
	clamped, err := e.complete(seq, q, page, err)
	if err != nil || !clamped {
		return err
	}
	// The page we asked for no longer exists; show the one we clamped to.
	q = e.query()
	seq = e.issue()
	page, err = e.source.List(ctx, q)
	_, err = e.complete(seq, q, page, err)
	return err
}

func (e *Engine[T]) query() models.ListQuery {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queryLocked()
}

func (e *Engine[T]) queryLocked() models.ListQuery {
	st := e.pager.State()
	return models.ListQuery{
		Page:     st.Current,
		PerPage:  st.PerPage,
		Search:   e.filter.Search,
		Category: e.filter.Category,
	}
}

func (e *Engine[T]) issue() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.issued++
	return e.issued
}

// complete applies the outcome of fetch seq for query q unless a newer fetch
// already landed. Nothing changes on failure. It reports whether the page
// count forced the current page to move.
func (e *Engine[T]) complete(seq uint64, q models.ListQuery, page models.Page[T], err error) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completeLocked(seq, q, page, err)
}

func (e *Engine[T]) completeLocked(seq uint64, q models.ListQuery, page models.Page[T], err error) (bool, error) {
	if seq < e.applied {
		e.log.Debug("discarding stale response", zap.Uint64("seq", seq), zap.Uint64("applied", e.applied))
		return false, ErrStale
	}
	e.applied = seq
	if err != nil {
		return false, e.failLocked(err)
	}
	items := slices.Clone(page.Items)
	sortItems(items, e.order)
	e.items = items
	e.totalCount = page.TotalCount
	e.filter = FilterState{Search: q.Search, Category: q.Category}
	e.loaded = true
	e.lastErr = nil
	e.pager.state.Current = q.Page
	clamped := e.pager.SetTotal(page.TotalPages)
	e.log.Debug("list applied",
		zap.Uint64("seq", seq),
		zap.Int("items", len(items)),
		zap.Int("page", e.pager.state.Current),
		zap.Int("totalPages", e.pager.state.Total))
	return clamped, nil
}

func (e *Engine[T]) failLocked(err error) error {
	if errors.Is(err, models.ErrUnauthorized) {
		e.log.Info("authorization rejected, ending session")
		// Invalidate hooks must not call back into this engine.
		e.sess.Invalidate()
		return err
	}
	e.log.Warn("list operation failed", zap.Error(err))
	e.lastErr = err
	return err
}

func (e *Engine[T]) indexLocked(key int) int {
	return slices.IndexFunc(e.items, func(it T) bool { return it.Key() == key })
}

// begin marks an operation in flight. Starting the same operation again
// before done is called fails with ErrBusy.
func (e *Engine[T]) begin(op string) (func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[op]; busy {
		return nil, ErrBusy
	}
	e.inflight[op] = struct{}{}
	return func() {
		e.mu.Lock()
		delete(e.inflight, op)
		e.mu.Unlock()
	}, nil
}

// Busy reports whether op is in flight; the matching control renders disabled.
func (e *Engine[T]) Busy(op string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, busy := e.inflight[op]
	return busy
}

func sortItems[T Item](items []T, order Order) {
	slices.SortStableFunc(items, func(a, b T) int {
		c := a.Created().Compare(b.Created())
		if c == 0 {
			c = a.Key() - b.Key()
		}
		if order == NewestFirst {
			return -c
		}
		return c
	})
}
