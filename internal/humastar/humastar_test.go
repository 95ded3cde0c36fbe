package humastar

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/joeblew999/plat-rec/internal/templates"
)

func TestParseSignals(t *testing.T) {
	s, err := ParseSignals([]byte(`{"chipParam":"activities","chipId":"3","page":2,"open":true}`))
	require.NoError(t, err)
	assert.Equal(t, "activities", s.String("chipParam"))
	assert.Equal(t, "", s.String("page"), "wrong type reads as zero")

	empty, err := ParseSignals(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseBody([]byte("{"))
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.GetStatus())
}

func TestActionsFor(t *testing.T) {
	actions := ActionsFor("REC1", []ActionDef{
		{Rel: "edit", Pattern: "/things/%s", Method: "PUT", Title: "Edit"},
		{Rel: "map", Pattern: "/things/%s/map"},
	})
	require.Len(t, actions, 2)
	assert.Equal(t, `</things/REC1>; rel="edit"; method="PUT"; title="Edit"`, actions[0].LinkHeader())
	assert.Equal(t, `</things/REC1/map>; rel="map"`, actions[1].LinkHeader())
}

type thing struct {
	ID string `json:"id"`
}

func (t thing) Actions() []Action {
	return []Action{{Rel: "delete", Href: "/things/" + t.ID, Method: "DELETE"}}
}

type pagedThings struct {
	Data []thing `json:"data"`
}

func (p pagedThings) PaginationLinks(base string) []string {
	return []string{fmt.Sprintf(`<%s?page=2>; rel="next"`, base)}
}

func TestAutoLinksAndTransformer(t *testing.T) {
	var links LinkSet
	cfg := huma.DefaultConfig("test", "1.0.0")
	cfg.Transformers = append(cfg.Transformers, LinkTransformer(&links))
	_, api := humatest.New(t, cfg)

	huma.Get(api, "/health", func(ctx context.Context, _ *struct{}) (*struct{ Body string }, error) {
		return &struct{ Body string }{Body: "ok"}, nil
	}, huma.OperationTags("health"))
	huma.Get(api, "/things", func(ctx context.Context, _ *struct{}) (*struct{ Body pagedThings }, error) {
		return &struct{ Body pagedThings }{}, nil
	}, huma.OperationTags("things"))
	huma.Get(api, "/things/search", func(ctx context.Context, _ *struct{}) (*struct{ Body pagedThings }, error) {
		return &struct{ Body pagedThings }{}, nil
	}, huma.OperationTags("things"))
	huma.Get(api, "/things/{id}", func(ctx context.Context, in *struct {
		ID string `path:"id"`
	}) (*struct{ Body thing }, error) {
		return &struct{ Body thing }{Body: thing{ID: in.ID}}, nil
	}, huma.OperationTags("things"))
	huma.Get(api, "/ui/things", func(ctx context.Context, _ *struct{}) (*struct{ Body string }, error) {
		return &struct{ Body string }{Body: "ui"}, nil
	}, huma.OperationTags(UITag))

	links = AutoLinks(api, "/things/search")

	assert.Contains(t, links.For("/health"), `</things>; rel="things"`)
	assert.Contains(t, links.For("/health"), `</things/search>; rel="search"`)
	assert.Contains(t, links.For("/things"), `</things/{id}>; rel="item"`)
	assert.Contains(t, links.For("/things/{id}"), `</things>; rel="collection"`)
	assert.Nil(t, links.For("/ui/things"))

	resp := api.Get("/things/REC7")
	require.Equal(t, http.StatusOK, resp.Code)
	got := resp.Header().Values("Link")
	assert.Contains(t, got, `</things/REC7>; rel="self"`)
	assert.Contains(t, got, `</things/REC7>; rel="delete"; method="DELETE"`)
	assert.Contains(t, got, `</things>; rel="collection"`)

	resp = api.Get("/things")
	assert.Contains(t, resp.Header().Values("Link"), `</things?page=2>; rel="next"`)

	resp = api.Get("/ui/things")
	assert.Empty(t, resp.Header().Values("Link"))
}

func TestHandlerLogsRenderFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "fragments"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fragments", "card.html"),
		[]byte(`{{define "card"}}<li>{{.}}</li>{{end}}{{define "empty-state"}}<p>{{.Title}}</p>{{end}}`), 0o644))
	r, err := templates.NewFromDir(dir)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.ErrorLevel)
	h := Handler{Renderer: r, Log: zap.New(core)}

	assert.Equal(t, "<li>a</li>", h.Render("card", "a"))
	assert.Equal(t, "<li>a</li><li>b</li>", h.RenderList("card", []any{"a", "b"}, "", ""))
	assert.Zero(t, logs.Len())

	assert.Empty(t, h.Render("missing", nil))
	assert.Empty(t, h.RenderList("missing", []any{"a"}, "", ""))
	entries := logs.FilterMessage("render failed").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "missing", entries[0].ContextMap()["template"])

	quiet := Handler{Renderer: r}
	assert.Empty(t, quiet.Render("missing", nil))
}
