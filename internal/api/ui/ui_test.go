package ui

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-rec/internal/config"
	"github.com/joeblew999/plat-rec/internal/db"
	"github.com/joeblew999/plat-rec/internal/service"
	"github.com/joeblew999/plat-rec/internal/templates"
)

type fixture struct {
	mux      *http.ServeMux
	api      humatest.TestAPI
	cfg      *config.Config
	recs     *service.RecResourceService
	sessions *service.SessionService
}

// newFixture serves the handlers through humago, which the SSE bridge
// unwraps to reach the response writer.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, db.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	cfg := config.Default()
	recs := service.NewRecResourceService(conn, cfg.Facets, service.NewEventBus(), zap.NewNop())
	f, err := os.Open("../../service/testdata/seed.yaml")
	require.NoError(t, err)
	defer f.Close()
	_, err = service.Seed(ctx, recs, f)
	require.NoError(t, err)

	renderer, err := templates.New()
	require.NoError(t, err)
	sessions := service.NewSessionService(time.Hour, func() []string { return cfg.PreservedParams })

	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("plat-rec ui test", "1.0.0"))
	NewSearchHandler(recs, sessions, func() *config.Config { return cfg }, renderer, zap.NewNop()).RegisterRoutes(api)

	return &fixture{mux: mux, api: humatest.Wrap(t, api), cfg: cfg, recs: recs, sessions: sessions}
}

// signals builds a page's request body: its query string plus extras.
func signals(query string, kv ...string) map[string]any {
	out := map[string]any{SignalQuery: query}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = kv[i+1]
	}
	return out
}

func sessionFrom(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range resp.Result().Cookies() {
		if c.Name == CookieName {
			return c.Value
		}
	}
	t.Fatal("no session cookie")
	return ""
}

func TestSearchRendersResults(t *testing.T) {
	fx := newFixture(t)

	resp := fx.api.Get("/ui/search?district=RDCK&activities=1&datastar=%7B%7D")
	require.Equal(t, http.StatusOK, resp.Code)
	body := resp.Body.String()

	assert.Contains(t, resp.Header().Get("Content-Type"), "text/event-stream")
	assert.Contains(t, body, "datastar-patch-elements")
	assert.Contains(t, body, "Chilliwack Lake North")
	assert.Contains(t, body, "Greendrop Lake")
	assert.NotContains(t, body, "Cat Lake")
	assert.Contains(t, body, "2 results")
	assert.Contains(t, body, `"query":"activities=1`)
	assert.NotContains(t, body, "url-changed", "navigation must not push history")
	assert.NotContains(t, body, "datastar=")

	id := sessionFrom(t, resp)
	sess, created := fx.sessions.Get(id)
	require.False(t, created)
	st := sess.Filters.State()
	assert.Equal(t, "activities=1&district=RDCK", st.Query.Encode())
	require.Len(t, st.Chips, 2)
	assert.Equal(t, "Angling", st.Chips[0].Label)
	assert.Equal(t, 2, sess.Results.State().TotalCount)
}

func TestToggleAndClear(t *testing.T) {
	fx := newFixture(t)

	resp := fx.api.Get("/ui/search?activities=1")
	id := sessionFrom(t, resp)
	cookie := "Cookie: " + CookieName + "=" + id

	resp = fx.api.Post("/ui/filters/toggle", cookie, signals("activities=1", SignalChipParam, "district", SignalChipID, "RDSQ"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, resp.Header().Values("Set-Cookie"))
	assert.Contains(t, resp.Body.String(), "Cat Lake")
	assert.NotContains(t, resp.Body.String(), "Pinaus Lake")
	assert.Contains(t, resp.Body.String(), "url-changed")

	sess, _ := fx.sessions.Get(id)
	assert.Equal(t, "activities=1&district=RDSQ", sess.Filters.State().Query.Encode())

	resp = fx.api.Post("/ui/filters/toggle", cookie, signals("?activities=1&district=RDSQ&page=2", SignalChipParam, "activities", SignalChipID, "1"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "district=RDSQ", sess.Filters.State().Query.Encode())
	assert.Contains(t, resp.Body.String(), "Brohm Lake Interpretive Forest")

	resp = fx.api.Post("/ui/filters/clear", cookie, signals("district=RDSQ&view=map"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, sess.Filters.State().Chips)
	assert.Equal(t, "view=map", sess.Filters.State().Query.Encode())
	assert.Contains(t, resp.Body.String(), "10 results")
}

func TestClearUsesReloadedPreservedParams(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.PreservedParams = []string{"filter"}

	resp := fx.api.Post("/ui/filters/clear", signals("filter=lake&view=map&district=RDCK"))
	require.Equal(t, http.StatusOK, resp.Code)
	sess, _ := fx.sessions.Get(sessionFrom(t, resp))
	assert.Equal(t, "filter=lake", sess.Filters.State().Query.Encode())
}

// Two tabs share one cookie. Each change is computed from the query of
// the tab that made it.
func TestTabsOnOneSessionKeepTheirOwnQuery(t *testing.T) {
	fx := newFixture(t)

	resp := fx.api.Get("/ui/search?activities=1")
	id := sessionFrom(t, resp)
	cookie := "Cookie: " + CookieName + "=" + id
	resp = fx.api.Get("/ui/search?district=RDSQ", cookie)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = fx.api.Post("/ui/filters/toggle", cookie, signals("activities=1", SignalChipParam, "district", SignalChipID, "RDCK"))
	require.Equal(t, http.StatusOK, resp.Code)
	sess, _ := fx.sessions.Get(id)
	assert.Equal(t, "activities=1&district=RDCK", sess.Filters.State().Query.Encode())
	assert.Equal(t, "activities=1&district=RDCK", sess.Results.State().PageParams[0].String())
}

func TestToggleRequiresChip(t *testing.T) {
	fx := newFixture(t)
	resp := fx.api.Post("/ui/filters/toggle", map[string]any{SignalChipParam: "district"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSearchTextAndMore(t *testing.T) {
	fx := newFixture(t)

	resp := fx.api.Get("/ui/search?limit=2")
	id := sessionFrom(t, resp)
	cookie := "Cookie: " + CookieName + "=" + id
	assert.Contains(t, resp.Body.String(), "Load more")

	resp = fx.api.Post("/ui/search/more", cookie, signals("limit=2"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "mode append")

	sess, _ := fx.sessions.Get(id)
	st := sess.Results.State()
	assert.Len(t, st.Pages, 2)
	assert.Equal(t, 2, st.CurrentPage)
	assert.Len(t, st.RecResourceIDs, 4)

	resp = fx.api.Post("/ui/search/text", cookie, signals("limit=2&page=2", SignalFilter, "squamish"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "Cat Lake")
	assert.Contains(t, resp.Body.String(), "Brohm Lake Interpretive Forest")
	assert.NotContains(t, resp.Body.String(), "Duffey Lake")

	st = sess.Results.State()
	assert.Len(t, st.Pages, 1)
	assert.Equal(t, 2, st.TotalCount)
	assert.Equal(t, "filter=squamish&limit=2", sess.Filters.State().Query.Encode())
}

func TestMoreForAnotherQuerySearchesAfresh(t *testing.T) {
	fx := newFixture(t)

	resp := fx.api.Get("/ui/search?limit=2")
	id := sessionFrom(t, resp)
	cookie := "Cookie: " + CookieName + "=" + id

	// the loaded pages belong to limit=2, this tab shows district=RDSQ
	resp = fx.api.Post("/ui/search/more", cookie, signals("district=RDSQ&limit=2"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.NotContains(t, resp.Body.String(), "mode append")

	sess, _ := fx.sessions.Get(id)
	st := sess.Results.State()
	require.Len(t, st.Pages, 1)
	assert.Equal(t, "district=RDSQ&limit=2", st.PageParams[0].String())
}

func TestSearchEmptyState(t *testing.T) {
	fx := newFixture(t)
	resp := fx.api.Get("/ui/search?filter=nowhere")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "No results")
	assert.Contains(t, resp.Body.String(), "0 results")
}

func TestEventsStreamsChanges(t *testing.T) {
	// The fixture's database pool runs until t.Cleanup, after this check.
	fx := newFixture(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	srv := httptest.NewServer(fx.mux)
	defer srv.Close()
	client := &http.Client{Transport: &http.Transport{}}
	defer client.CloseIdleConnections()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/ui/events", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	bus := fx.recs.Bus()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	_, err = fx.recs.Create(context.Background(), service.RecResourceInput{ID: "REC0100", Name: "Kawkawa Lake"})
	require.NoError(t, err)

	sawNotice, sawEvent := false, false
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() && !(sawNotice && sawEvent) {
		line := sc.Text()
		sawNotice = sawNotice || strings.Contains(line, "Resource REC0100 was created")
		sawEvent = sawEvent || strings.Contains(line, "resource-changed")
	}
	assert.True(t, sawNotice)
	assert.True(t, sawEvent)

	cancel()
	require.Eventually(t, func() bool { return bus.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}
