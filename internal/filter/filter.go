// Package filter models search facets and the active filter chips shown
// above the results. The URL query string is the source of truth: chips
// are a projection of it, recovered with the facet metadata of the latest
// search response.
package filter

import (
	"net/url"
	"slices"
	"strings"
)

// URL query keys with a fixed meaning outside facet groups.
const (
	ParamPage       = "page"
	ParamFilter     = "filter"
	ParamMapFeature = "map-feature"
	ParamView       = "view"
)

// IDSeparator joins the selected option ids of one group in the URL,
// e.g. activities=1_3_22.
const IDSeparator = "_"

// PreservedParams survive Clear.
var PreservedParams = []string{ParamPage, ParamFilter, ParamMapFeature, ParamView}

// Chip is one active filter selection.
type Chip struct {
	Param string `json:"param" doc:"URL query parameter of the facet group" example:"activities"`
	ID    string `json:"id" doc:"Selected option id" example:"1"`
	Label string `json:"label" doc:"Display label" example:"Angling"`
}

// Key identifies a chip. Two groups may share option ids, so the param is
// part of the identity.
type Key struct {
	Param string
	ID    string
}

// Key returns the chip's identity.
func (c Chip) Key() Key { return Key{Param: c.Param, ID: c.ID} }

// Option is a facet value with its result count.
type Option struct {
	ID          string `json:"id" doc:"Option id" example:"1"`
	Count       int    `json:"count" doc:"Number of matching results"`
	Description string `json:"description" doc:"Display label" example:"Angling"`
}

// Group is one filterable dimension. Param is the exact URL query key
// carrying the group's selected ids.
type Group struct {
	Label   string   `json:"label" doc:"Group label" example:"Activities"`
	Param   string   `json:"param" doc:"URL query parameter" example:"activities"`
	Options []Option `json:"options" doc:"Facet options"`
}

// Option looks up an option by id.
func (g Group) Option(id string) (Option, bool) {
	for _, o := range g.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// DecodeIDs splits an encoded group value. Empty segments are dropped.
func DecodeIDs(v string) []string {
	var ids []string
	for _, id := range strings.Split(v, IDSeparator) {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// EncodeIDs joins ids for a group value.
func EncodeIDs(ids []string) string {
	return strings.Join(ids, IDSeparator)
}

// Clone deep-copies query values.
func Clone(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		out[k] = slices.Clone(v)
	}
	return out
}

// Selected reports whether id is selected for param in q.
func Selected(q url.Values, param, id string) bool {
	return slices.Contains(DecodeIDs(q.Get(param)), id)
}

// ToggleQuery returns a copy of q with the chip's id added to or removed
// from its group parameter. An emptied group parameter is removed.
func ToggleQuery(q url.Values, c Chip) url.Values {
	out := Clone(q)
	ids := DecodeIDs(out.Get(c.Param))

	if i := slices.Index(ids, c.ID); i >= 0 {
		ids = slices.Delete(ids, i, i+1)
	} else {
		ids = append(ids, c.ID)
	}

	if len(ids) == 0 {
		out.Del(c.Param)
	} else {
		out.Set(c.Param, EncodeIDs(ids))
	}
	return out
}

// ClearQuery returns only the preserved keys of q.
func ClearQuery(q url.Values, preserved []string) url.Values {
	out := url.Values{}
	for _, k := range preserved {
		if v, ok := q[k]; ok {
			out[k] = slices.Clone(v)
		}
	}
	return out
}

// FilterParams returns q without the free-text filter and page keys.
func FilterParams(q url.Values) url.Values {
	out := Clone(q)
	out.Del(ParamFilter)
	out.Del(ParamPage)
	return out
}

// ChipsFromQuery projects the query onto chips. For each group in order,
// the group's ids are read in URL order and resolved against the group's
// options; ids without a matching option are dropped.
func ChipsFromQuery(q url.Values, groups []Group) []Chip {
	params := FilterParams(q)
	chips := []Chip{}
	if len(params) == 0 {
		return chips
	}

	seen := map[Key]bool{}
	for _, g := range groups {
		for _, id := range DecodeIDs(params.Get(g.Param)) {
			opt, ok := g.Option(id)
			if !ok {
				continue
			}
			c := Chip{Param: g.Param, ID: id, Label: opt.Description}
			if seen[c.Key()] {
				continue
			}
			seen[c.Key()] = true
			chips = append(chips, c)
		}
	}
	return chips
}
