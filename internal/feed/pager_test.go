package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/j-veylop/polar-stats/internal/models"
)

// MockSource serves canned pages and records every requested page number.
type MockSource struct {
	Pages    map[int]models.Page
	FailOn   int
	FailWith error
	Calls    []int
}

func (m *MockSource) FetchPage(_ context.Context, page int) (models.Page, error) {
	m.Calls = append(m.Calls, page)
	if m.FailOn == page {
		return models.Page{}, m.FailWith
	}
	return m.Pages[page], nil
}

func itemsPage(n int, hasMore bool) models.Page {
	items := make([]models.ResultItem, n)
	for i := range items {
		items[i] = models.ResultItem{CreatedAt: "Mon, 02 Jan 2023 14:00:00 +0000"}
	}
	return models.Page{Items: items, HasMore: hasMore}
}

func drain(t *testing.T, p *Pager) int {
	t.Helper()
	total := 0
	for p.Next(context.Background()) {
		total += len(p.Items())
	}
	return total
}

func TestPager_StopsOnEmptyPage(t *testing.T) {
	src := &MockSource{Pages: map[int]models.Page{
		1: itemsPage(3, true),
		2: itemsPage(2, true),
		3: itemsPage(1, true),
	}}
	p := NewPager(src, 0)

	total := drain(t, p)

	if total != 6 {
		t.Errorf("total items = %d, want 6", total)
	}
	if len(src.Calls) != 4 {
		t.Errorf("fetch calls = %v, want 4 calls", src.Calls)
	}
	for i, page := range src.Calls {
		if page != i+1 {
			t.Errorf("call %d requested page %d", i, page)
		}
	}
	if p.Termination() != Exhausted {
		t.Errorf("Termination() = %v, want exhausted", p.Termination())
	}
	if p.Err() != nil {
		t.Errorf("Err() = %v, want nil", p.Err())
	}
}

func TestPager_StopsWhenNoMorePages(t *testing.T) {
	src := &MockSource{Pages: map[int]models.Page{
		1: itemsPage(3, true),
		2: itemsPage(2, false),
		3: itemsPage(9, true),
	}}
	p := NewPager(src, 0)

	total := drain(t, p)

	if total != 5 {
		t.Errorf("total items = %d, want 5", total)
	}
	if len(src.Calls) != 2 {
		t.Errorf("fetch calls = %v, want 2", src.Calls)
	}
	if p.Termination() != Exhausted {
		t.Errorf("Termination() = %v, want exhausted", p.Termination())
	}
}

func TestPager_FailureIsDistinctFromExhaustion(t *testing.T) {
	netErr := errors.New("connection reset")
	src := &MockSource{
		Pages:    map[int]models.Page{1: itemsPage(3, true), 3: itemsPage(3, true)},
		FailOn:   2,
		FailWith: netErr,
	}
	p := NewPager(src, 0)

	drain(t, p)

	if p.Termination() != Failed {
		t.Fatalf("Termination() = %v, want failed", p.Termination())
	}
	var fe *FetchError
	if !errors.As(p.Err(), &fe) {
		t.Fatalf("Err() = %v, want *FetchError", p.Err())
	}
	if fe.Page != 2 {
		t.Errorf("FetchError.Page = %d, want 2", fe.Page)
	}
	if !errors.Is(p.Err(), netErr) {
		t.Error("FetchError should wrap the transport error")
	}
	if len(src.Calls) != 2 {
		t.Errorf("fetch calls = %v, failed page must not be retried", src.Calls)
	}
}

func TestPager_PageCap(t *testing.T) {
	src := &MockSource{Pages: map[int]models.Page{
		1: itemsPage(1, true),
		2: itemsPage(1, true),
		3: itemsPage(1, true),
	}}
	p := NewPager(src, 2)

	total := drain(t, p)

	if total != 2 || len(src.Calls) != 2 {
		t.Errorf("total = %d calls = %v, want 2 and 2", total, src.Calls)
	}
	if p.Termination() != Exhausted {
		t.Errorf("Termination() = %v, want exhausted", p.Termination())
	}
}

func TestPager_NotRestartable(t *testing.T) {
	src := &MockSource{Pages: map[int]models.Page{1: itemsPage(1, true)}}
	p := NewPager(src, 0)
	drain(t, p)

	calls := len(src.Calls)
	if p.Next(context.Background()) {
		t.Error("Next() after termination should return false")
	}
	if len(src.Calls) != calls {
		t.Error("Next() after termination should not fetch")
	}
	if p.Items() != nil {
		t.Error("Items() should be nil after termination")
	}
}

func TestTermination_String(t *testing.T) {
	tests := map[Termination]string{
		Pending:        "pending",
		Exhausted:      "exhausted",
		Failed:         "failed",
		Termination(9): "unknown",
	}
	for term, want := range tests {
		if got := term.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
