// Package ui contains Datastar SSE handlers for the search page. Each
// browser has a session caching its chips and loaded result pages. The
// page URL is the source of truth: every change is computed from the
// query the page sends and pushed back to the browser's history.
package ui

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-rec/internal/config"
	"github.com/joeblew999/plat-rec/internal/filter"
	"github.com/joeblew999/plat-rec/internal/humastar"
	"github.com/joeblew999/plat-rec/internal/search"
	"github.com/joeblew999/plat-rec/internal/service"
)

// CookieName holds the session id.
const CookieName = "rec_session"

// Signal names sent by the page.
const (
	SignalFilter    = "filter"
	SignalChipParam = "chipParam"
	SignalChipID    = "chipId"
	SignalQuery     = "query"
)

// SearchInput is a GET with the page's query string.
type SearchInput struct {
	Session string `cookie:"rec_session"`

	Raw url.Values `json:"-"`
}

// Resolve implements huma.Resolver.
func (i *SearchInput) Resolve(ctx huma.Context) []error {
	u := ctx.URL()
	i.Raw = withoutDatastar(u.Query())
	return nil
}

// SignalsInput is a POST carrying Datastar signals.
type SignalsInput struct {
	Session string `cookie:"rec_session"`
	RawBody []byte
}

// SearchHandler serves the search page fragments.
type SearchHandler struct {
	humastar.Handler
	recs     *service.RecResourceService
	sessions *service.SessionService
	cfg      func() *config.Config
	log      *zap.Logger
}

// NewSearchHandler creates a search page handler.
func NewSearchHandler(recs *service.RecResourceService, sessions *service.SessionService, cfg func() *config.Config, renderer *humastar.Renderer, log *zap.Logger) *SearchHandler {
	return &SearchHandler{
		Handler:  humastar.Handler{Renderer: renderer, Log: log},
		recs:     recs,
		sessions: sessions,
		cfg:      cfg,
		log:      log,
	}
}

func (h *SearchHandler) RegisterRoutes(api huma.API) {
	tags := huma.OperationTags(humastar.UITag)
	huma.Get(api, "/ui/search", h.Search, tags)
	huma.Post(api, "/ui/search/text", h.SearchText, tags)
	huma.Post(api, "/ui/search/more", h.More, tags)
	huma.Post(api, "/ui/search/previous", h.Previous, tags)
	huma.Post(api, "/ui/filters/toggle", h.Toggle, tags)
	huma.Post(api, "/ui/filters/clear", h.Clear, tags)
	huma.Get(api, "/ui/events", h.Events, tags)
}

// Search syncs the session to the page URL and renders the first page.
// It runs on load and on back/forward navigation, so it never pushes
// history itself.
func (h *SearchHandler) Search(ctx context.Context, input *SearchInput) (*huma.StreamResponse, error) {
	sess, created := h.sessions.Get(input.Session)
	return h.stream(sess, created, func(ctx context.Context, sse humastar.SSE) {
		h.replace(ctx, sse, sess, input.Raw, false)
	}), nil
}

// SearchText sets the free-text filter and searches from page one.
func (h *SearchHandler) SearchText(ctx context.Context, input *SignalsInput) (*huma.StreamResponse, error) {
	signals, err := parse(input)
	if err != nil {
		return nil, err
	}
	q := pageQuery(signals)
	q.Del(filter.ParamPage)
	if text := signals.String(SignalFilter); text != "" {
		q.Set(filter.ParamFilter, text)
	} else {
		q.Del(filter.ParamFilter)
	}

	sess, created := h.sessions.Get(input.Session)
	return h.stream(sess, created, func(ctx context.Context, sse humastar.SSE) {
		h.replace(ctx, sse, sess, q, true)
	}), nil
}

// Toggle adds or removes one chip.
func (h *SearchHandler) Toggle(ctx context.Context, input *SignalsInput) (*huma.StreamResponse, error) {
	signals, err := parse(input)
	if err != nil {
		return nil, err
	}
	chip := filter.Chip{Param: signals.String(SignalChipParam), ID: signals.String(SignalChipID)}
	if chip.Param == "" || chip.ID == "" {
		return nil, huma.Error400BadRequest("chipParam and chipId are required")
	}

	q := filter.ToggleQuery(pageQuery(signals), chip)
	q.Del(filter.ParamPage)

	sess, created := h.sessions.Get(input.Session)
	return h.stream(sess, created, func(ctx context.Context, sse humastar.SSE) {
		h.replace(ctx, sse, sess, q, true)
	}), nil
}

// Clear drops every chip, keeping the currently configured preserved params.
func (h *SearchHandler) Clear(ctx context.Context, input *SignalsInput) (*huma.StreamResponse, error) {
	signals, err := parse(input)
	if err != nil {
		return nil, err
	}
	q := filter.ClearQuery(pageQuery(signals), h.cfg().PreservedParams)

	sess, created := h.sessions.Get(input.Session)
	return h.stream(sess, created, func(ctx context.Context, sse humastar.SSE) {
		h.replace(ctx, sse, sess, q, true)
	}), nil
}

// More appends the page after the last loaded one. When the loaded pages
// belong to another query (a second tab on the same session) the page's
// own query is searched afresh instead.
func (h *SearchHandler) More(ctx context.Context, input *SignalsInput) (*huma.StreamResponse, error) {
	signals, err := parse(input)
	if err != nil {
		return nil, err
	}
	q := pageQuery(signals)

	sess, created := h.sessions.Get(input.Session)
	return h.stream(sess, created, func(ctx context.Context, sse humastar.SSE) {
		if !h.loadedFor(sess, q) {
			h.replace(ctx, sse, sess, q, false)
			return
		}
		req, ok := sess.Results.NextRequest()
		if !ok {
			h.renderPagers(sse, sess)
			return
		}
		page, err := sess.Results.Load(ctx, req, search.Append, h.recs.Search)
		if err != nil {
			h.fail(sse, err)
			return
		}
		sse.Append(h.renderCards(page.Data), "#results")
		h.renderPagers(sse, sess)
	}), nil
}

// Previous prepends the page before the first loaded one.
func (h *SearchHandler) Previous(ctx context.Context, input *SignalsInput) (*huma.StreamResponse, error) {
	signals, err := parse(input)
	if err != nil {
		return nil, err
	}
	q := pageQuery(signals)

	sess, created := h.sessions.Get(input.Session)
	return h.stream(sess, created, func(ctx context.Context, sse humastar.SSE) {
		if !h.loadedFor(sess, q) {
			h.replace(ctx, sse, sess, q, false)
			return
		}
		req, ok := sess.Results.PrevRequest()
		if !ok {
			h.renderPagers(sse, sess)
			return
		}
		page, err := sess.Results.Load(ctx, req, search.Prepend, h.recs.Search)
		if err != nil {
			h.fail(sse, err)
			return
		}
		sse.Prepend(h.renderCards(page.Data), "#results")
		h.renderPagers(sse, sess)
	}), nil
}

func (h *SearchHandler) request(q url.Values) search.Request {
	req := search.ParseRequest(q, h.recs.FacetParams())
	if !q.Has(search.ParamLimit) {
		req.Limit = h.cfg().Search.DefaultLimit
	}
	return req
}

// loadedFor reports whether the session's loaded pages answer q.
func (h *SearchHandler) loadedFor(sess *service.Session, q url.Values) bool {
	params := sess.Results.State().PageParams
	return len(params) > 0 && params[0].SameQuery(h.request(q))
}

// replace runs a fresh search for q and re-renders everything. The chip
// projection is synced in the same commit as the results, so a newer
// search can never end up paired with an older query. push adds a
// history entry for q.
func (h *SearchHandler) replace(ctx context.Context, sse humastar.SSE, sess *service.Session, q url.Values, push bool) {
	req := h.request(q)

	var st filter.State
	page, err := sess.Results.LoadWith(ctx, req, search.Replace, h.recs.Search, func(p search.Page) {
		st = sess.Filters.Sync(q, p.Filters)
	})
	if err != nil {
		h.fail(sse, err)
		return
	}

	if page.TotalCount == 0 {
		sse.Patch(h.RenderList("result-card", nil, "No results", "Try removing some filters."), "#results")
	} else {
		sse.Patch(h.renderCards(page.Data), "#results")
	}
	sse.Patch(h.Render("result-count", page), "#result-count")
	sse.Patch(h.Render("facet-groups", map[string]any{"Query": st.Query, "Groups": page.Filters}), "#facets")
	sse.Patch(h.Render("chip-list", map[string]any{"Chips": st.Chips}), "#chips")
	h.renderPagers(sse, sess)
	sse.Signals(map[string]any{SignalFilter: req.Filter, SignalQuery: st.Encode(), "error": ""})
	if push {
		sse.URLChanged(st.Query)
	}
}

func (h *SearchHandler) renderCards(rs []search.Result) string {
	items := make([]any, len(rs))
	for i, r := range rs {
		items[i] = r
	}
	if len(items) == 0 {
		return ""
	}
	return h.RenderList("result-card", items, "", "")
}

func (h *SearchHandler) renderPagers(sse humastar.SSE, sess *service.Session) {
	_, hasNext := sess.Results.NextRequest()
	_, hasPrev := sess.Results.PrevRequest()
	sse.Patch(h.Render("pager-next", map[string]bool{"HasNext": hasNext}), "#pager-next")
	sse.Patch(h.Render("pager-prev", map[string]bool{"HasPrev": hasPrev}), "#pager-prev")
}

// fail reports err to the page. A superseded search is not an error: the
// newer one renders instead.
func (h *SearchHandler) fail(sse humastar.SSE, err error) {
	if errors.Is(err, search.ErrStale) {
		h.log.Debug("dropped stale search result")
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	h.log.Error("search failed", zap.Error(err))
	sse.Error("Search failed. Please try again.")
}

// stream sets the session cookie on new sessions and runs fn with the
// request context.
func (h *SearchHandler) stream(sess *service.Session, created bool, fn func(ctx context.Context, sse humastar.SSE)) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			if created {
				humaCtx.AppendHeader("Set-Cookie", sessionCookie(sess.ID).String())
			}
			fn(humaCtx.Context(), humastar.NewSSE(humaCtx))
		},
	}
}

func sessionCookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((24 * time.Hour).Seconds()),
	}
}

func parse(input *SignalsInput) (humastar.Signals, error) {
	return humastar.ParseBody(input.RawBody)
}

// pageQuery reads the query string the page is showing. Malformed pairs
// are dropped.
func pageQuery(signals humastar.Signals) url.Values {
	raw := strings.TrimPrefix(signals.String(SignalQuery), "?")
	q, _ := url.ParseQuery(raw)
	return withoutDatastar(q)
}

// withoutDatastar drops Datastar's own signal param, which is not part of
// the page URL.
func withoutDatastar(q url.Values) url.Values {
	q.Del("datastar")
	return q
}
