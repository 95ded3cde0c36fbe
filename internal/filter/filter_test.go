package filter

import (
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activities() Group {
	return Group{
		Label: "Activities",
		Param: "activities",
		Options: []Option{
			{ID: "1", Count: 4, Description: "Angling"},
			{ID: "3", Count: 2, Description: "Canoeing"},
			{ID: "22", Count: 1, Description: "Hiking"},
		},
	}
}

func status() Group {
	return Group{
		Label: "Status",
		Param: "status",
		Options: []Option{
			{ID: "1", Count: 5, Description: "Open"},
			{ID: "2", Count: 1, Description: "Closed"},
		},
	}
}

func mustQuery(t *testing.T, raw string) url.Values {
	t.Helper()
	q, err := url.ParseQuery(raw)
	require.NoError(t, err)
	return q
}

func TestDecodeIDs(t *testing.T) {
	assert.Equal(t, []string{"1", "3", "22"}, DecodeIDs("1_3_22"))
	assert.Nil(t, DecodeIDs(""))
	assert.Equal(t, []string{"1", "3"}, DecodeIDs("_1__3_"))
	assert.Equal(t, "1_3", EncodeIDs([]string{"1", "3"}))
}

func TestChipsFromQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []Chip
	}{
		{
			name:  "two ids in url order",
			query: "activities=1_3",
			want: []Chip{
				{Param: "activities", ID: "1", Label: "Angling"},
				{Param: "activities", ID: "3", Label: "Canoeing"},
			},
		},
		{
			name:  "unknown id dropped",
			query: "activities=99",
			want:  []Chip{},
		},
		{
			name:  "filter and page ignored",
			query: "filter=lake&page=3",
			want:  []Chip{},
		},
		{
			name:  "empty group value",
			query: "activities=&status=2",
			want:  []Chip{{Param: "status", ID: "2", Label: "Closed"}},
		},
		{
			name:  "shared ids across groups stay distinct",
			query: "status=1&activities=1",
			want: []Chip{
				{Param: "activities", ID: "1", Label: "Angling"},
				{Param: "status", ID: "1", Label: "Open"},
			},
		},
		{
			name:  "duplicates collapse",
			query: "activities=3_3",
			want:  []Chip{{Param: "activities", ID: "3", Label: "Canoeing"}},
		},
		{
			name:  "unknown param",
			query: "colour=red",
			want:  []Chip{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChipsFromQuery(mustQuery(t, tt.query), []Group{activities(), status()})
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("chips mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestToggleQuery(t *testing.T) {
	q := mustQuery(t, "activities=1&page=2")

	q2 := ToggleQuery(q, Chip{Param: "activities", ID: "3"})
	assert.Equal(t, "1_3", q2.Get("activities"))
	assert.Equal(t, "1", q.Get("activities"), "input must not be mutated")

	q3 := ToggleQuery(q2, Chip{Param: "activities", ID: "1"})
	assert.Equal(t, "3", q3.Get("activities"))

	q4 := ToggleQuery(q3, Chip{Param: "activities", ID: "3"})
	_, ok := q4["activities"]
	assert.False(t, ok)
	assert.Equal(t, "2", q4.Get("page"))
}

func TestClearQuery(t *testing.T) {
	q := mustQuery(t, "activities=1_3&filter=lake&view=map&status=1")
	got := ClearQuery(q, PreservedParams)
	assert.Equal(t, url.Values{"filter": {"lake"}, "view": {"map"}}, got)
}
