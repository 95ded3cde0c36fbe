package search

import (
	"fmt"

	"github.com/joeblew999/plat-rec/internal/filter"
)

// Result is one recreation resource in a result page.
type Result struct {
	ID               string   `json:"rec_resource_id" doc:"Recreation resource id" example:"REC0001"`
	Name             string   `json:"name" doc:"Resource name" example:"Goldstream Lake"`
	ClosestCommunity string   `json:"closest_community,omitempty" doc:"Closest community" example:"Langford"`
	District         string   `json:"district,omitempty" doc:"Recreation district"`
	ResourceType     string   `json:"resource_type,omitempty" doc:"Resource type" example:"Recreation site"`
	AccessType       string   `json:"access_type,omitempty" doc:"Access type"`
	Status           string   `json:"status,omitempty" doc:"Open/closed status" example:"Open"`
	Activities       []string `json:"activities" doc:"Activity descriptions"`
}

// Page is one paginated search response.
type Page struct {
	Data       []Result       `json:"data" doc:"Results on this page"`
	Page       int            `json:"page" doc:"1-based page number"`
	Limit      int            `json:"limit" doc:"Page size"`
	TotalCount int            `json:"total" doc:"Total matching results"`
	Filters    []filter.Group `json:"filters" doc:"Facet groups with counts"`

	Request Request `json:"-"`
}

// IDs returns the resource ids on the page in order.
func (p Page) IDs() []string {
	ids := make([]string, len(p.Data))
	for i, r := range p.Data {
		ids[i] = r.ID
	}
	return ids
}

// TotalPages is the number of pages for TotalCount at Limit.
func (p Page) TotalPages() int {
	if p.Limit <= 0 || p.TotalCount == 0 {
		return 1
	}
	return (p.TotalCount + p.Limit - 1) / p.Limit
}

// PaginationLinks returns RFC 8288 first/prev/next/last links that keep
// the request's filters.
func (p Page) PaginationLinks(basePath string) []string {
	link := func(page int, rel string) string {
		q := p.Request.WithPage(page).Query()
		if p.Limit > 0 && p.Limit != DefaultLimit {
			q.Set(ParamLimit, fmt.Sprint(p.Limit))
		}
		href := basePath
		if enc := q.Encode(); enc != "" {
			href += "?" + enc
		}
		return fmt.Sprintf(`<%s>; rel="%s"`, href, rel)
	}

	links := []string{link(1, "first")}
	if p.Page > 1 {
		links = append(links, link(p.Page-1, "prev"))
	}
	if p.Page < p.TotalPages() {
		links = append(links, link(p.Page+1, "next"))
	}
	return append(links, link(p.TotalPages(), "last"))
}
