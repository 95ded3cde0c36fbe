// Package search holds the search request contract and the results store
// backing the search page.
package search

import (
	"net/url"
	"slices"
	"strconv"

	"github.com/joeblew999/plat-rec/internal/filter"
)

// Paging defaults.
const (
	DefaultLimit = 10
	MaxLimit     = 100
	ParamLimit   = "limit"
)

// Request is one search query as encoded in the URL.
type Request struct {
	Filter string              `json:"filter,omitempty"`
	Page   int                 `json:"page"`
	Limit  int                 `json:"limit"`
	Facets map[string][]string `json:"facets,omitempty"`
}

// ParseRequest reads a request from query values. Only the given facet
// params are read. Invalid page or limit values fall back to defaults.
func ParseRequest(q url.Values, facetParams []string) Request {
	req := Request{
		Filter: q.Get(filter.ParamFilter),
		Page:   1,
		Limit:  DefaultLimit,
		Facets: map[string][]string{},
	}

	if v := q.Get(filter.ParamPage); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			req.Page = n
		}
	}
	if v := q.Get(ParamLimit); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			req.Limit = min(n, MaxLimit)
		}
	}

	for _, p := range facetParams {
		if ids := filter.DecodeIDs(q.Get(p)); len(ids) > 0 {
			req.Facets[p] = ids
		}
	}
	return req
}

// Offset is the zero-based row offset of the request's page.
func (r Request) Offset() int {
	if r.Page < 1 {
		return 0
	}
	return (r.Page - 1) * r.Limit
}

// WithPage returns a copy of r for another page.
func (r Request) WithPage(page int) Request {
	out := r
	out.Page = page
	out.Facets = make(map[string][]string, len(r.Facets))
	for k, v := range r.Facets {
		out.Facets[k] = slices.Clone(v)
	}
	return out
}

// SameQuery reports whether r and o differ at most in their page.
func (r Request) SameQuery(o Request) bool {
	return r.WithPage(1).String() == o.WithPage(1).String()
}

// Query encodes the request back into query values.
func (r Request) Query() url.Values {
	q := url.Values{}
	if r.Filter != "" {
		q.Set(filter.ParamFilter, r.Filter)
	}
	if r.Page > 1 {
		q.Set(filter.ParamPage, strconv.Itoa(r.Page))
	}
	if r.Limit != 0 && r.Limit != DefaultLimit {
		q.Set(ParamLimit, strconv.Itoa(r.Limit))
	}
	for k, ids := range r.Facets {
		if len(ids) > 0 {
			q.Set(k, filter.EncodeIDs(ids))
		}
	}
	return q
}

// String is the canonical encoding of the request.
func (r Request) String() string { return r.Query().Encode() }
