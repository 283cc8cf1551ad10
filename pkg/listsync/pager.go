package listsync

import (
	"errors"
	"strconv"
	"strings"
)

var (
	ErrPageOutOfRange = errors.New("listsync: page out of range")
	ErrInvalidPage    = errors.New("listsync: page is not a number")
)

// PageState is the pagination position of a list. Current always lies in
// [1, Total].
type PageState struct {
	Current int
	Total   int
	PerPage int
}

func (s PageState) HasPrev() bool { return s.Current > 1 }
func (s PageState) HasNext() bool { return s.Current < s.Total }

// TotalPages is ceil(count/perPage), never less than one.
func TotalPages(count, perPage int) int {
	if count <= 0 || perPage <= 0 {
		return 1
	}
	return (count + perPage - 1) / perPage
}

// ParsePage validates go-to-page input against the page count.
func ParsePage(input string, total int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return 0, ErrInvalidPage
	}
	if n < 1 || n > total {
		return 0, ErrPageOutOfRange
	}
	return n, nil
}

// Pager is not safe for concurrent use; Engine guards it.
type Pager struct {
	state PageState
}

func NewPager(perPage int) *Pager {
	if perPage < 1 {
		perPage = 1
	}
	return &Pager{state: PageState{Current: 1, Total: 1, PerPage: perPage}}
}

func (p *Pager) State() PageState { return p.state }

// GoTo moves to page n. An out-of-range n leaves the pager untouched. The
// bool reports whether the current page changed.
func (p *Pager) GoTo(n int) (bool, error) {
	if n < 1 || n > p.state.Total {
		return false, ErrPageOutOfRange
	}
	changed := n != p.state.Current
	p.state.Current = n
	return changed, nil
}

func (p *Pager) Prev() (bool, error) { return p.GoTo(p.state.Current - 1) }
func (p *Pager) Next() (bool, error) { return p.GoTo(p.state.Current + 1) }

// Reset returns to the first page.
func (p *Pager) Reset() { p.state.Current = 1 }

// SetTotal records a new page count and clamps the current page into range.
// It reports whether clamping moved the current page.
func (p *Pager) SetTotal(total int) bool {
	if total < 1 {
		total = 1
	}
	p.state.Total = total
	return p.clamp()
}

func (p *Pager) last() bool {
	changed := p.state.Current != p.state.Total
	p.state.Current = p.state.Total
	return changed
}

func (p *Pager) clamp() bool {
	prev := p.state.Current
	if p.state.Current > p.state.Total {
		p.state.Current = p.state.Total
	}
	if p.state.Current < 1 {
		p.state.Current = 1
	}
	return prev != p.state.Current
}
