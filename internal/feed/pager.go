// Package feed provides paginated access to the search feed.
package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/j-veylop/polar-stats/internal/logger"
	"github.com/j-veylop/polar-stats/internal/models"
)

// PageSource returns one page of results. Page numbers start at 1.
type PageSource interface {
	FetchPage(ctx context.Context, page int) (models.Page, error)
}

// FetchError reports a transport or provider failure for a page.
type FetchError struct {
	Err  error
	Page int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch page %d: %v", e.Page, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Termination describes why a Pager stopped.
type Termination int

const (
	// Pending means the pager has not terminated yet.
	Pending Termination = iota
	// Exhausted means the source signaled the end of data.
	Exhausted
	// Failed means a page could not be fetched; see Pager.Err.
	Failed
)

// String returns a short name for the termination.
func (t Termination) String() string {
	switch t {
	case Pending:
		return "pending"
	case Exhausted:
		return "exhausted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Pager walks a PageSource from page 1 until exhaustion or failure.
// It is not restartable.
type Pager struct {
	source   PageSource
	err      error
	items    []models.ResultItem
	page     int
	maxPages int
	state    Termination
	last     bool
}

// NewPager creates a pager. maxPages <= 0 means no cap; reaching the cap
// counts as exhaustion.
func NewPager(source PageSource, maxPages int) *Pager {
	return &Pager{
		source:   source,
		maxPages: maxPages,
	}
}

// Next fetches the next page. It returns false once the pager has
// terminated; Termination and Err tell why.
func (p *Pager) Next(ctx context.Context) bool {
	if p.state != Pending {
		return false
	}
	if p.last {
		p.finish(Exhausted, nil)
		return false
	}
	if p.maxPages > 0 && p.page >= p.maxPages {
		logger.Debug("page cap reached", "pages", p.page)
		p.finish(Exhausted, nil)
		return false
	}

	p.page++
	page, err := p.source.FetchPage(ctx, p.page)
	if err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = &FetchError{Page: p.page, Err: err}
		}
		p.finish(Failed, err)
		return false
	}

	if len(page.Items) == 0 {
		p.finish(Exhausted, nil)
		return false
	}

	p.items = page.Items
	// Yield this batch; the next call reports exhaustion without fetching.
	p.last = !page.HasMore
	return true
}

// Items returns the batch fetched by the last successful Next.
func (p *Pager) Items() []models.ResultItem {
	return p.items
}

// Page returns the number of pages requested so far.
func (p *Pager) Page() int {
	return p.page
}

// Termination returns why the pager stopped, or Pending.
func (p *Pager) Termination() Termination {
	return p.state
}

// Err returns the FetchError that terminated the pager, if any.
func (p *Pager) Err() error {
	return p.err
}

func (p *Pager) finish(state Termination, err error) {
	p.state = state
	p.err = err
	p.items = nil
}
