package listsync

import (
	"context"
	"errors"
	"slices"

	"questionforum/pkg/models"
)

// ApplyCreated counts a server-confirmed item and moves to the last page so
// it is visible. When the last page is the one shown, the item is appended
// locally. Otherwise the last page is fetched; if that fails the list keeps
// its page and items and only the totals take the new item into account.
func (e *Engine[T]) ApplyCreated(ctx context.Context, item T) error {
	e.mu.Lock()
	count := e.totalCount + 1
	total := TotalPages(count, e.pager.state.PerPage)
	if total == e.pager.state.Current {
		e.items = append(e.items, item)
		sortItems(e.items, e.order)
		e.totalCount = count
		e.pager.SetTotal(total)
		e.mu.Unlock()
		return nil
	}
	q := e.queryLocked()
	e.mu.Unlock()

	q.Page = total
	return e.move(ctx, q, func() {
		e.totalCount = count
		e.pager.SetTotal(max(total, e.pager.state.Current))
	})
}

// ApplyUpdated edits the item with the given key in place. It reports
// whether the item was on the current page.
func (e *Engine[T]) ApplyUpdated(key int, edit func(*T)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.indexLocked(key)
	if i < 0 {
		return false
	}
	edit(&e.items[i])
	return true
}

// ApplyDeleted drops a server-deleted item and recounts the pages. Removing
// the only item of a page other than the first steps back one page, and so
// does a page count that shrank below the current page; the page moved to
// is fetched. If that fetch fails the list stays on its page with the item
// removed.
func (e *Engine[T]) ApplyDeleted(ctx context.Context, key int) error {
	e.mu.Lock()
	count := max(e.totalCount-1, 0)
	total := TotalPages(count, e.pager.state.PerPage)
	current := e.pager.state.Current
	target := current
	if i := e.indexLocked(key); i >= 0 && len(e.items) == 1 && current > 1 {
		target = current - 1
	}
	target = min(target, total)
	if target == current {
		e.removeLocked(key)
		e.totalCount = count
		e.pager.SetTotal(total)
		e.mu.Unlock()
		return nil
	}
	q := e.queryLocked()
	e.mu.Unlock()

	q.Page = target
	return e.move(ctx, q, func() {
		e.removeLocked(key)
		e.totalCount = count
		e.pager.SetTotal(max(total, e.pager.state.Current))
	})
}

// move fetches the page a reconciliation moved to and applies it whole.
// When the fetch fails, settle runs under the lock to record what is known
// without that page. A newer response landing first wins over both.
func (e *Engine[T]) move(ctx context.Context, q models.ListQuery, settle func()) error {
	seq := e.issue()
	page, err := e.source.List(ctx, q)

	e.mu.Lock()
	clamped, err := e.completeLocked(seq, q, page, err)
	if err != nil && !errors.Is(err, ErrStale) {
		settle()
	}
	e.mu.Unlock()

	switch {
	case errors.Is(err, ErrStale):
		return nil
	case err != nil:
		return err
	case clamped:
		return e.Refresh(ctx)
	}
	return nil
}

func (e *Engine[T]) removeLocked(key int) {
	if i := e.indexLocked(key); i >= 0 {
		e.items = slices.Delete(e.items, i, i+1)
	}
}
