package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joeblew999/plat-rec/internal/config"
	"github.com/joeblew999/plat-rec/internal/db"
	"github.com/joeblew999/plat-rec/internal/filter"
	"github.com/joeblew999/plat-rec/internal/search"
)

// facetSource maps a config facet source onto the schema. An empty column
// means the facet is many-to-many through rec_resource_activity.
type facetSource struct {
	lookup string
	column string
}

var facetSources = map[string]facetSource{
	config.SourceActivities: {lookup: db.TableActivity},
	config.SourceType:       {lookup: db.TableResourceType, column: "resource_type_code"},
	config.SourceDistrict:   {lookup: db.TableDistrict, column: "district_code"},
	config.SourceAccess:     {lookup: db.TableAccess, column: "access_code"},
	config.SourceStatus:     {lookup: db.TableStatus, column: "status_code"},
}

// where accumulates AND-ed SQL conditions over rec_resource r.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w where) sql() string {
	if len(w.clauses) == 0 {
		return "TRUE"
	}
	return strings.Join(w.clauses, " AND ")
}

// conditions builds the search predicate. Ids within one facet are OR-ed,
// facets are AND-ed. The facet whose param equals skip is left out, so its
// own counts are not narrowed by its own selection.
func conditions(req search.Request, facets []config.Facet, skip string) where {
	var w where
	if text := strings.ToLower(strings.TrimSpace(req.Filter)); text != "" {
		w.add(`(contains(lower(r.name), ?) OR contains(lower(r.closest_community), ?))`, text, text)
	}
	for _, f := range facets {
		ids := req.Facets[f.Param]
		if f.Param == skip || len(ids) == 0 {
			continue
		}
		src, ok := facetSources[f.Source]
		if !ok {
			continue
		}
		in := placeholders(len(ids))
		if src.column == "" {
			w.add(`r.rec_resource_id IN (SELECT rec_resource_id FROM rec_resource_activity WHERE activity_code IN (`+in+`))`, anys(ids)...)
		} else {
			w.add(`r.`+src.column+` IN (`+in+`)`, anys(ids)...)
		}
	}
	return w
}

// Search runs a paginated search. The count, the page and every facet
// group are queried concurrently.
func (s *RecResourceService) Search(ctx context.Context, req search.Request) (search.Page, error) {
	facets := s.Facets()
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 {
		req.Limit = search.DefaultLimit
	}
	req.Limit = min(req.Limit, search.MaxLimit)

	page := search.Page{Page: req.Page, Limit: req.Limit, Request: req}
	groups := make([]filter.Group, len(facets))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.count(gctx, req, facets)
		page.TotalCount = n
		return err
	})
	g.Go(func() error {
		data, err := s.results(gctx, req, facets)
		page.Data = data
		return err
	})
	for i, f := range facets {
		g.Go(func() error {
			grp, err := s.facetGroup(gctx, req, facets, f)
			groups[i] = grp
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return search.Page{}, fmt.Errorf("searching rec resources: %w", err)
	}
	page.Filters = groups

	s.log.Debug("search",
		zap.String("request", req.String()),
		zap.Int("total", page.TotalCount),
		zap.Int("returned", len(page.Data)))
	return page, nil
}

// Groups returns the facet groups for a request without fetching results.
func (s *RecResourceService) Groups(ctx context.Context, req search.Request) ([]filter.Group, error) {
	facets := s.Facets()
	groups := make([]filter.Group, len(facets))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range facets {
		g.Go(func() error {
			grp, err := s.facetGroup(gctx, req, facets, f)
			groups[i] = grp
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("counting facets: %w", err)
	}
	return groups, nil
}

func (s *RecResourceService) count(ctx context.Context, req search.Request, facets []config.Facet) (int, error) {
	w := conditions(req, facets, "")
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM rec_resource r WHERE `+w.sql(), w.args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting: %w", err)
	}
	return n, nil
}

func (s *RecResourceService) results(ctx context.Context, req search.Request, facets []config.Facet) ([]search.Result, error) {
	w := conditions(req, facets, "")
	args := append(w.args, req.Limit, req.Offset())
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.rec_resource_id, r.name, r.closest_community,
		       coalesce(d.description, ''), coalesce(t.description, ''),
		       coalesce(a.description, ''), coalesce(st.description, '')
		FROM rec_resource r
		LEFT JOIN `+db.TableDistrict+` d ON d.code = r.district_code
		LEFT JOIN `+db.TableResourceType+` t ON t.code = r.resource_type_code
		LEFT JOIN `+db.TableAccess+` a ON a.code = r.access_code
		LEFT JOIN `+db.TableStatus+` st ON st.code = r.status_code
		WHERE `+w.sql()+`
		ORDER BY lower(r.name), r.rec_resource_id
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	defer rows.Close()

	data := []search.Result{}
	for rows.Next() {
		var r search.Result
		if err := rows.Scan(&r.ID, &r.Name, &r.ClosestCommunity, &r.District, &r.ResourceType, &r.AccessType, &r.Status); err != nil {
			return nil, err
		}
		r.Activities = []string{}
		data = append(data, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return data, nil
	}

	ids := make([]string, len(data))
	for i, r := range data {
		ids[i] = r.ID
	}
	acts, err := s.activitiesOf(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range data {
		data[i].Activities = append(data[i].Activities, acts[data[i].ID]...)
	}
	return data, nil
}

func (s *RecResourceService) activitiesOf(ctx context.Context, ids []string) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ra.rec_resource_id, l.description
		FROM rec_resource_activity ra
		JOIN `+db.TableActivity+` l ON l.code = ra.activity_code
		WHERE ra.rec_resource_id IN (`+placeholders(len(ids))+`)`, anys(ids)...)
	if err != nil {
		return nil, fmt.Errorf("listing result activities: %w", err)
	}
	defer rows.Close()

	out := map[string][]string{}
	for rows.Next() {
		var id, desc string
		if err := rows.Scan(&id, &desc); err != nil {
			return nil, err
		}
		out[id] = append(out[id], desc)
	}
	c := newCollator()
	for _, descs := range out {
		slices.SortFunc(descs, c.CompareString)
	}
	return out, rows.Err()
}

// facetGroup counts matches per option of one facet. Options with no
// matches are kept so chips for them still resolve.
func (s *RecResourceService) facetGroup(ctx context.Context, req search.Request, facets []config.Facet, f config.Facet) (filter.Group, error) {
	src, ok := facetSources[f.Source]
	if !ok {
		return filter.Group{}, fmt.Errorf("facet %q: unknown source %q", f.Param, f.Source)
	}
	w := conditions(req, facets, f.Param)

	var query string
	if src.column == "" {
		query = `
			SELECT l.code, l.description, count(DISTINCT r.rec_resource_id)
			FROM ` + src.lookup + ` l
			LEFT JOIN rec_resource_activity ra ON ra.activity_code = l.code
			LEFT JOIN rec_resource r ON r.rec_resource_id = ra.rec_resource_id AND ` + w.sql() + `
			GROUP BY l.code, l.description`
	} else {
		query = `
			SELECT l.code, l.description, count(r.rec_resource_id)
			FROM ` + src.lookup + ` l
			LEFT JOIN rec_resource r ON r.` + src.column + ` = l.code AND ` + w.sql() + `
			GROUP BY l.code, l.description`
	}

	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return filter.Group{}, fmt.Errorf("facet %q: %w", f.Param, err)
	}
	defer rows.Close()

	grp := filter.Group{Label: f.Label, Param: f.Param, Options: []filter.Option{}}
	for rows.Next() {
		var o filter.Option
		if err := rows.Scan(&o.ID, &o.Description, &o.Count); err != nil {
			return filter.Group{}, err
		}
		grp.Options = append(grp.Options, o)
	}
	if err := rows.Err(); err != nil {
		return filter.Group{}, err
	}

	c := newCollator()
	slices.SortStableFunc(grp.Options, func(a, b filter.Option) int {
		if n := c.CompareString(a.Description, b.Description); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return grp, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func anys(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
