package search

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected Request
	}{
		{
			name:     "defaults",
			query:    "",
			expected: Request{Page: 1, Limit: DefaultLimit, Facets: map[string][]string{}},
		},
		{
			name:  "filter page and facets",
			query: "filter=lake&page=3&activities=1_3&status=2&colour=red",
			expected: Request{
				Filter: "lake",
				Page:   3,
				Limit:  DefaultLimit,
				Facets: map[string][]string{"activities": {"1", "3"}, "status": {"2"}},
			},
		},
		{
			name:     "invalid page and limit",
			query:    "page=-2&limit=abc",
			expected: Request{Page: 1, Limit: DefaultLimit, Facets: map[string][]string{}},
		},
		{
			name:     "limit capped",
			query:    "limit=5000",
			expected: Request{Page: 1, Limit: MaxLimit, Facets: map[string][]string{}},
		},
		{
			name:     "empty facet value",
			query:    "activities=",
			expected: Request{Page: 1, Limit: DefaultLimit, Facets: map[string][]string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ParseRequest(q, []string{"activities", "status"}))
		})
	}
}

func TestRequestQueryRoundTrip(t *testing.T) {
	q, _ := url.ParseQuery("filter=lake&page=2&limit=20&activities=1_3")
	req := ParseRequest(q, []string{"activities"})
	assert.Equal(t, q, req.Query())
	assert.Equal(t, 20, req.Offset())
}

func TestRequestWithPageCopiesFacets(t *testing.T) {
	req := Request{Page: 1, Limit: 10, Facets: map[string][]string{"activities": {"1"}}}
	next := req.WithPage(2)
	next.Facets["activities"][0] = "9"

	assert.Equal(t, 2, next.Page)
	assert.Equal(t, "1", req.Facets["activities"][0])
}

func TestRequestSameQuery(t *testing.T) {
	a := Request{Filter: "lake", Page: 1, Limit: 10, Facets: map[string][]string{"activities": {"1"}}}
	assert.True(t, a.SameQuery(a.WithPage(3)))

	b := a.WithPage(1)
	b.Facets["activities"] = []string{"1", "3"}
	assert.False(t, a.SameQuery(b))
	assert.False(t, a.SameQuery(Request{Filter: "lake", Page: 1, Limit: 20, Facets: a.Facets}))
}

func TestPagePaginationLinks(t *testing.T) {
	p := Page{
		Page:       2,
		Limit:      10,
		TotalCount: 35,
		Request:    Request{Filter: "lake", Page: 2, Limit: 10, Facets: map[string][]string{"activities": {"1"}}},
	}
	assert.Equal(t, 4, p.TotalPages())
	assert.Equal(t, []string{
		`</s?activities=1&filter=lake>; rel="first"`,
		`</s?activities=1&filter=lake>; rel="prev"`,
		`</s?activities=1&filter=lake&page=3>; rel="next"`,
		`</s?activities=1&filter=lake&page=4>; rel="last"`,
	}, p.PaginationLinks("/s"))
}
