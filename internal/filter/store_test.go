package filter

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreToggleIsSelfInverse(t *testing.T) {
	s := NewStore(nil)
	s.Sync(mustQuery(t, "activities=1&filter=lake"), []Group{activities()})
	before := s.State()

	c := Chip{Param: "activities", ID: "3", Label: "Canoeing"}
	mid := s.Toggle(c)
	assert.Equal(t, "1_3", mid.Query.Get("activities"))
	assert.Equal(t, []Chip{
		{Param: "activities", ID: "1", Label: "Angling"},
		{Param: "activities", ID: "3", Label: "Canoeing"},
	}, mid.Chips)

	after := s.Toggle(c)
	assert.Equal(t, before, after)
}

func TestStoreToggleUsesCompositeKey(t *testing.T) {
	s := NewStore(nil)
	s.Toggle(Chip{Param: "activities", ID: "1", Label: "Angling"})
	s.Toggle(Chip{Param: "status", ID: "1", Label: "Open"})

	st := s.State()
	require.Len(t, st.Chips, 2)
	assert.Equal(t, "1", st.Query.Get("activities"))
	assert.Equal(t, "1", st.Query.Get("status"))

	st = s.Toggle(Chip{Param: "status", ID: "1"})
	assert.Equal(t, []Chip{{Param: "activities", ID: "1", Label: "Angling"}}, st.Chips)
	assert.Empty(t, st.Query.Get("status"))
}

func TestStoreToggleFollowsURL(t *testing.T) {
	// Selected in the URL but chips not yet reconciled: toggling removes.
	s := NewStore(nil)
	s.Reconcile(mustQuery(t, "activities=1"), nil)

	st := s.Toggle(Chip{Param: "activities", ID: "1", Label: "Angling"})
	assert.Empty(t, st.Chips)
	assert.Empty(t, st.Query)
}

func TestStoreClear(t *testing.T) {
	s := NewStore(nil)
	s.Sync(mustQuery(t, "activities=1_3&status=2&page=4&filter=lake&map-feature=REC1"), []Group{activities(), status()})
	require.Len(t, s.Chips(), 3)

	st := s.Clear()
	assert.Empty(t, st.Chips)
	assert.Equal(t, url.Values{
		"page":        {"4"},
		"filter":      {"lake"},
		"map-feature": {"REC1"},
	}, st.Query)

	st = s.Clear()
	assert.Empty(t, st.Chips)
}

func TestStoreReconcile(t *testing.T) {
	groups := []Group{activities()}
	q := mustQuery(t, "activities=1_3")

	s := NewStore(nil)
	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	require.True(t, s.Reconcile(q, groups))
	assert.Equal(t, []Chip{
		{Param: "activities", ID: "1", Label: "Angling"},
		{Param: "activities", ID: "3", Label: "Canoeing"},
	}, s.Chips())
	assert.Len(t, ch, 1)

	// already populated: no mutation, no notification
	assert.False(t, s.Reconcile(q, groups))
	assert.False(t, s.Reconcile(mustQuery(t, "activities=22"), groups))
	assert.Len(t, s.Chips(), 2)
	assert.Len(t, ch, 1)
}

func TestStoreReconcileWithoutFilterParams(t *testing.T) {
	s := NewStore(nil)
	assert.False(t, s.Reconcile(mustQuery(t, "filter=lake&page=2"), []Group{activities()}))
	assert.Empty(t, s.Query())
}

func TestStoreReconcileBeforeFacetsLoad(t *testing.T) {
	s := NewStore(nil)
	s.Reconcile(mustQuery(t, "activities=1"), nil)
	assert.Empty(t, s.Chips())

	// once facets arrive, a navigation sync recovers the chip
	st := s.Sync(s.Query(), []Group{activities()})
	assert.Equal(t, []Chip{{Param: "activities", ID: "1", Label: "Angling"}}, st.Chips)
}

func TestStoreStateIsACopy(t *testing.T) {
	s := NewStore(nil)
	s.Toggle(Chip{Param: "activities", ID: "1", Label: "Angling"})

	st := s.State()
	st.Query.Set("activities", "mutated")
	st.Chips[0].Label = "mutated"

	assert.Equal(t, "1", s.Query().Get("activities"))
	assert.Equal(t, "Angling", s.Chips()[0].Label)
}
