// Package humastar bridges Huma (REST/OpenAPI) with Datastar (SSE/hypermedia).
//
// It provides:
//   - SSE: Huma streaming → Datastar SSE protocol via [SSE] and [NewSSE]
//   - Signals: Datastar signal parsing via [Signals] and [ParseBody]
//   - Handler: Embeddable base for SSE handlers via [Handler]
//   - Links: RFC 8288 Link headers derived from the OpenAPI spec via [AutoLinks]
//
// Usage:
//
//	type MyHandler struct {
//	    humastar.Handler
//	    recs *service.RecResourceService
//	}
//
//	func (h *MyHandler) List(ctx context.Context, input *struct{}) (*huma.StreamResponse, error) {
//	    return &huma.StreamResponse{Body: func(hctx huma.Context) {
//	        sse := humastar.NewSSE(hctx)
//	        sse.Patch(h.RenderList("result-card", items, "No results", "Try fewer filters"), "#results")
//	    }}, nil
//	}
package humastar

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-rec/internal/templates"
)

// Renderer is the fragment renderer used by SSE handlers.
type Renderer = templates.Renderer

// ---------------------------------------------------------------------------
// Handler: embeddable base for Datastar SSE handlers
// ---------------------------------------------------------------------------

// Handler is an embeddable base for Huma handlers that produce Datastar SSE
// responses.
type Handler struct {
	Renderer *Renderer
	// Log receives render failures. Nil drops them.
	Log *zap.Logger
}

// Render renders one template. A failed render is logged and yields "".
func (h *Handler) Render(tmpl string, data any) string {
	s, err := h.Renderer.Render(tmpl, data)
	if err != nil {
		h.renderFailed(tmpl, err)
		return ""
	}
	return s
}

// RenderList renders items with a named template, or an empty state if none.
// Items that fail to render are logged and skipped.
func (h *Handler) RenderList(tmpl string, items []any, emptyTitle, emptyMsg string) string {
	s, err := RenderList(h.Renderer, tmpl, items, emptyTitle, emptyMsg)
	if err != nil {
		h.renderFailed(tmpl, err)
	}
	return s
}

func (h *Handler) renderFailed(tmpl string, err error) {
	if h.Log != nil {
		h.Log.Error("render failed", zap.String("template", tmpl), zap.Error(err))
	}
}

// ---------------------------------------------------------------------------
// SSE: Huma ↔ Datastar bridge
// ---------------------------------------------------------------------------

// SSE wraps a Datastar SSE generator with convenience methods for common
// patterns: error/success signals, inner/outer/append element patching.
type SSE struct {
	*datastar.ServerSentEventGenerator
}

// NewSSE creates a Datastar SSE helper from a Huma streaming context.
func NewSSE(ctx huma.Context) SSE {
	r, w := humago.Unwrap(ctx)
	return SSE{datastar.NewSSE(w, r)}
}

// Patch sends HTML to replace inner content at a CSS selector.
func (s SSE) Patch(html, selector string) {
	s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeInner(),
		datastar.WithViewTransitions(),
	)
}

// Append adds HTML after the last child at a CSS selector.
func (s SSE) Append(html, selector string) {
	s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeAppend(),
	)
}

// Prepend adds HTML before the first child at a CSS selector.
func (s SSE) Prepend(html, selector string) {
	s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModePrepend(),
	)
}

// Error sends an error signal to the UI.
func (s SSE) Error(msg string) {
	s.MarshalAndPatchSignals(map[string]any{"error": msg})
}

// Signals sends arbitrary signals to the UI.
func (s SSE) Signals(signals map[string]any) {
	s.MarshalAndPatchSignals(signals)
}

// URLChanged tells the page its query string is now q. The page listens
// for the "url-changed" window event and pushes a history entry.
func (s SSE) URLChanged(q url.Values) {
	s.DispatchCustomEvent("url-changed", map[string]any{"query": q.Encode()})
}

// ---------------------------------------------------------------------------
// Signals: Datastar signal parsing
// ---------------------------------------------------------------------------

// Signals provides type-safe access to Datastar signal values.
// Datastar sends all signals as a flat JSON object in the request body.
type Signals map[string]any

// ParseSignals parses Datastar signals from a raw request body.
func ParseSignals(body []byte) (Signals, error) {
	signals := Signals{}
	if len(bytes.TrimSpace(body)) == 0 {
		return signals, nil
	}
	if err := json.Unmarshal(body, &signals); err != nil {
		return nil, err
	}
	return signals, nil
}

// ParseBody parses a request body of signals, reporting bad JSON as a
// Huma 400.
func ParseBody(body []byte) (Signals, error) {
	signals, err := ParseSignals(body)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid request data: " + err.Error())
	}
	return signals, nil
}

// String returns a string signal value, or empty string if not found.
func (s Signals) String(key string) string {
	if v, ok := s[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// EmptyInput is a shared input struct for handlers with no parameters.
type EmptyInput struct{}

// ---------------------------------------------------------------------------
// Rendering helpers
// ---------------------------------------------------------------------------

// RenderList renders items with a named template, or an empty state if none.
// It renders every item it can and returns the joined render errors.
func RenderList(r *Renderer, tmpl string, items []any, emptyTitle, emptyMsg string) (string, error) {
	var buf bytes.Buffer
	if len(items) == 0 {
		err := r.RenderToBuffer(&buf, "empty-state", map[string]string{
			"Title": emptyTitle, "Message": emptyMsg,
		})
		return buf.String(), err
	}
	var errs []error
	for _, item := range items {
		if err := r.RenderToBuffer(&buf, tmpl, item); err != nil {
			errs = append(errs, err)
		}
	}
	return buf.String(), errors.Join(errs...)
}
