package filter

import (
	"net/url"
	"slices"

	"github.com/joeblew999/plat-rec/internal/store"
)

// State is a consistent snapshot of the query and its chips.
type State struct {
	Query url.Values
	Chips []Chip
}

// Encode returns the query string for the state.
func (s State) Encode() string { return s.Query.Encode() }

// Store holds the active filter selection. Every mutation commits the
// query and the chip list together and notifies subscribers once.
type Store struct {
	st        *store.Store[State]
	preserved func() []string
}

// NewStore creates an empty store. A nil preserved list uses PreservedParams.
func NewStore(preserved []string) *Store {
	fixed := slices.Clone(preserved)
	return NewLiveStore(func() []string { return fixed })
}

// NewLiveStore creates an empty store whose Clear keeps the keys preserved
// returns at the time of the call. A nil result uses PreservedParams.
func NewLiveStore(preserved func() []string) *Store {
	return &Store{
		st:        store.New(State{Query: url.Values{}, Chips: []Chip{}}),
		preserved: preserved,
	}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	return copyState(s.st.State())
}

// Chips returns a copy of the active chips.
func (s *Store) Chips() []Chip {
	return slices.Clone(s.st.State().Chips)
}

// Query returns a copy of the current query.
func (s *Store) Query() url.Values {
	return Clone(s.st.State().Query)
}

// Subscribe receives every committed state.
func (s *Store) Subscribe() chan State { return s.st.Subscribe() }

// Unsubscribe stops delivery and closes ch.
func (s *Store) Unsubscribe(ch chan State) { s.st.Unsubscribe(ch) }

// Toggle adds the chip if its (param, id) is not selected in the query and
// removes it otherwise.
func (s *Store) Toggle(c Chip) State {
	return copyState(s.st.Update(func(prev State) State {
		selected := Selected(prev.Query, c.Param, c.ID)
		next := State{Query: ToggleQuery(prev.Query, c)}

		next.Chips = make([]Chip, 0, len(prev.Chips)+1)
		for _, existing := range prev.Chips {
			if existing.Key() != c.Key() {
				next.Chips = append(next.Chips, existing)
			}
		}
		if !selected {
			next.Chips = append(next.Chips, c)
		}
		return next
	}))
}

// Clear drops every chip and keeps only the preserved query keys.
func (s *Store) Clear() State {
	keep := s.preserved()
	if keep == nil {
		keep = PreservedParams
	}
	return copyState(s.st.Update(func(prev State) State {
		return State{Query: ClearQuery(prev.Query, keep), Chips: []Chip{}}
	}))
}

// Reconcile rebuilds the chips from q after a fresh load. It does nothing
// when chips are already present or q carries no filter params, and
// reports whether the state changed.
func (s *Store) Reconcile(q url.Values, groups []Group) bool {
	_, changed := s.st.UpdateIf(func(prev State) (State, bool) {
		if len(prev.Chips) > 0 || len(FilterParams(q)) == 0 {
			return prev, false
		}
		return State{Query: Clone(q), Chips: ChipsFromQuery(q, groups)}, true
	})
	return changed
}

// Sync makes q the current query and recomputes the chips from it.
// Called on every navigation.
func (s *Store) Sync(q url.Values, groups []Group) State {
	return copyState(s.st.Update(func(State) State {
		return State{Query: Clone(q), Chips: ChipsFromQuery(q, groups)}
	}))
}

func copyState(st State) State {
	return State{Query: Clone(st.Query), Chips: slices.Clone(st.Chips)}
}
