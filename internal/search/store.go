package search

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/joeblew999/plat-rec/internal/filter"
	"github.com/joeblew999/plat-rec/internal/store"
)

// ErrStale is returned when a response arrives for a superseded request.
var ErrStale = errors.New("search: stale response")

// Mode says how a page joins the loaded results.
type Mode int

const (
	// Replace discards loaded pages (new query or filter change).
	Replace Mode = iota
	// Append adds the next page ("load more").
	Append
	// Prepend adds the previous page ("load previous").
	Prepend
)

func (m Mode) String() string {
	switch m {
	case Append:
		return "append"
	case Prepend:
		return "prepend"
	default:
		return "replace"
	}
}

// Ticket tags an outgoing request. Seq grows monotonically; Epoch is the
// Seq of the Replace ticket the request belongs to.
type Ticket struct {
	Seq     uint64
	Epoch   uint64
	Mode    Mode
	Request Request
}

// State is the loaded search results.
type State struct {
	Pages          []Page         `json:"pages"`
	CurrentPage    int            `json:"currentPage"`
	TotalCount     int            `json:"totalCount"`
	Filters        []filter.Group `json:"filters"`
	PageParams     []Request      `json:"pageParams"`
	RecResourceIDs []string       `json:"recResourceIds"`
}

// Store caches loaded result pages. Only settled responses whose ticket is
// still current are applied.
type Store struct {
	mu    sync.Mutex
	seq   uint64
	epoch uint64
	st    *store.Store[State]
}

// NewStore creates an empty results store.
func NewStore() *Store {
	return &Store{st: store.New(State{})}
}

// State returns the current state. Callers must not mutate it.
func (s *Store) State() State { return s.st.State() }

// Subscribe receives every committed state.
func (s *Store) Subscribe() chan State { return s.st.Subscribe() }

// Unsubscribe stops delivery and closes ch.
func (s *Store) Unsubscribe(ch chan State) { s.st.Unsubscribe(ch) }

// Begin issues a ticket for req. A Replace ticket supersedes every ticket
// issued before it.
func (s *Store) Begin(req Request, mode Mode) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	if mode == Replace {
		s.epoch = s.seq
	}
	return Ticket{Seq: s.seq, Epoch: s.epoch, Mode: mode, Request: req}
}

// Current reports whether t has not been superseded.
func (s *Store) Current(t Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.Epoch == s.epoch
}

// Commit applies the page fetched for t. It returns ErrStale if a newer
// Replace ticket was issued since t.
func (s *Store) Commit(t Ticket, p Page) error {
	return s.CommitWith(t, p, nil)
}

// CommitWith is Commit that also runs then, holding the ticket lock, when
// the page is applied. State derived from the page belongs in then: no
// other ticket can begin or commit until it returns. then must not call
// back into s except for State and Results.
func (s *Store) CommitWith(t Ticket, p Page, then func(Page)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Epoch != s.epoch {
		return ErrStale
	}
	p.Request = t.Request

	s.st.Update(func(prev State) State {
		return apply(prev, t.Mode, p)
	})
	if then != nil {
		then(p)
	}
	return nil
}

func apply(prev State, mode Mode, p Page) State {
	if mode != Replace && len(prev.Pages) > 0 {
		for _, loaded := range prev.Pages {
			if loaded.Page == p.Page {
				return prev
			}
		}
	}

	next := State{
		CurrentPage: p.Page,
		TotalCount:  p.TotalCount,
		Filters:     p.Filters,
	}
	switch {
	case mode == Replace || len(prev.Pages) == 0:
		next.Pages = []Page{p}
		next.PageParams = []Request{p.Request}
	case mode == Append:
		next.Pages = append(slices.Clone(prev.Pages), p)
		next.PageParams = append(slices.Clone(prev.PageParams), p.Request)
	case mode == Prepend:
		next.Pages = append([]Page{p}, prev.Pages...)
		next.PageParams = append([]Request{p.Request}, prev.PageParams...)
	}

	for _, pg := range next.Pages {
		next.RecResourceIDs = append(next.RecResourceIDs, pg.IDs()...)
	}
	return next
}

// Replay returns the request that produced the i-th loaded page.
func (s *Store) Replay(i int) (Request, bool) {
	st := s.st.State()
	if i < 0 || i >= len(st.PageParams) {
		return Request{}, false
	}
	return st.PageParams[i].WithPage(st.PageParams[i].Page), true
}

// NextRequest returns the request for the page after the last loaded one.
func (s *Store) NextRequest() (Request, bool) {
	st := s.st.State()
	if len(st.Pages) == 0 {
		return Request{}, false
	}
	last := st.Pages[len(st.Pages)-1]
	if last.Page >= last.TotalPages() {
		return Request{}, false
	}
	return st.PageParams[len(st.PageParams)-1].WithPage(last.Page + 1), true
}

// PrevRequest returns the request for the page before the first loaded one.
func (s *Store) PrevRequest() (Request, bool) {
	st := s.st.State()
	if len(st.Pages) == 0 || st.Pages[0].Page <= 1 {
		return Request{}, false
	}
	return st.PageParams[0].WithPage(st.Pages[0].Page - 1), true
}

// Results returns every loaded result in page order.
func (s *Store) Results() []Result {
	var out []Result
	for _, p := range s.st.State().Pages {
		out = append(out, p.Data...)
	}
	return out
}

// Fetcher runs a search request.
type Fetcher func(ctx context.Context, req Request) (Page, error)

// Load issues a ticket for req, fetches it and commits the response.
// A response overtaken by a newer Replace returns ErrStale.
func (s *Store) Load(ctx context.Context, req Request, mode Mode, fetch Fetcher) (Page, error) {
	return s.LoadWith(ctx, req, mode, fetch, nil)
}

// LoadWith is Load committing through CommitWith.
func (s *Store) LoadWith(ctx context.Context, req Request, mode Mode, fetch Fetcher, then func(Page)) (Page, error) {
	t := s.Begin(req, mode)
	p, err := fetch(ctx, req)
	if err != nil {
		return Page{}, err
	}
	if err := s.CommitWith(t, p, then); err != nil {
		return Page{}, err
	}
	return p, nil
}
