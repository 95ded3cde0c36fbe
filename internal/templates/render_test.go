package templates

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-rec/internal/filter"
)

func TestRenderChipList(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	html, err := r.Render("chip-list", map[string]any{
		"Chips": []filter.Chip{{Param: "activities", ID: "1", Label: "Angling"}},
	})
	require.NoError(t, err)
	assert.Contains(t, html, "Angling ×")
	assert.Contains(t, html, `$chipId = '1'`)
	assert.Contains(t, html, "Clear filters")

	empty, err := r.Render("chip-list", map[string]any{"Chips": []filter.Chip{}})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRenderFacetGroupsMarksSelected(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	q, _ := url.ParseQuery("activities=3")
	html := r.MustRender("facet-groups", map[string]any{
		"Query": q,
		"Groups": []filter.Group{{Label: "Things to do", Param: "activities", Options: []filter.Option{
			{ID: "1", Description: "Angling", Count: 4},
			{ID: "3", Description: "Camping", Count: 2},
		}}},
	})
	assert.Contains(t, html, "Things to do")
	assert.Contains(t, html, "Angling <span class=\"count\">(4)</span>")
	assert.Equal(t, 1, strings.Count(html, "checked"))
}

func TestRenderEscapesNames(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	html := r.MustRender("result-card", map[string]any{"ID": "X", "Name": "<b>Lake</b>", "Activities": []string{}})
	assert.Contains(t, html, "&lt;b&gt;Lake&lt;/b&gt;")
}

func TestNewFromDirAndReload(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "fragments"), 0o755))
	path := filepath.Join(dir, "fragments", "x.html")
	require.NoError(t, os.WriteFile(path, []byte(`{{define "x"}}one{{end}}`), 0o644))

	r, err := NewFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "one", r.MustRender("x", nil))

	require.NoError(t, os.WriteFile(path, []byte(`{{define "x"}}two{{end}}`), 0o644))
	require.NoError(t, r.Reload(dir))
	assert.Equal(t, "two", r.MustRender("x", nil))
}
