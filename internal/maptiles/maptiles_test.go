package maptiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-rec/internal/config"
	"github.com/joeblew999/plat-rec/internal/geo"
	"github.com/joeblew999/plat-rec/internal/pmtiles"
	"github.com/joeblew999/plat-rec/internal/service"
)

var trailHead = orb.Point{-121.452, 49.102}

type fakeSource struct {
	calls     atomic.Int32
	err       error
	resources []*geo.Resource
}

func albersJSON(t *testing.T, g orb.Geometry) string {
	t.Helper()
	raw, err := geojson.NewGeometry(g).MarshalJSON()
	require.NoError(t, err)
	return string(raw)
}

func (f *fakeSource) MapResources(ctx context.Context) ([]*geo.Resource, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.resources, nil
}

// newTiler serves one trail with its trail head as the site point. src
// geometries are stored in BC Albers like the database rows.
func newTiler(t *testing.T, src *fakeSource) *Tiler {
	t.Helper()
	line := orb.LineString{trailHead, {-121.447, 49.107}, {-121.441, 49.112}}
	for i := range line {
		line[i] = geo.BCAlbers.FromWGS84(line[i])
	}
	src.resources = []*geo.Resource{{
		ID:                     "REC0003",
		Name:                   "Lindeman Lake Trail",
		SitePointGeometry:      albersJSON(t, geo.BCAlbers.FromWGS84(trailHead)),
		SpatialFeatureGeometry: []string{albersJSON(t, line)},
	}}

	opts := config.Tiles{Layer: "rec-resources", MinZoom: 0, MaxZoom: 8}
	return New(src, func() config.Tiles { return opts }, zap.NewNop())
}

func TestTile(t *testing.T) {
	src := &fakeSource{}
	tl := newTiler(t, src)
	ctx := context.Background()

	tile := maptile.At(trailHead, 8)
	data, err := tl.Tile(ctx, tile)
	require.NoError(t, err)
	require.NotNil(t, data)

	layers, err := mvt.UnmarshalGzipped(data)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, "rec-resources", layers[0].Name)
	require.Len(t, layers[0].Features, 2)
	assert.Equal(t, "REC0003", layers[0].Features[0].Properties["rec_resource_id"])

	empty, err := tl.Tile(ctx, maptile.New(0, 0, 8))
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = tl.Tile(ctx, maptile.New(0, 0, 9))
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = tl.Tile(ctx, maptile.New(9, 0, 3))
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestTileCacheAndInvalidate(t *testing.T) {
	src := &fakeSource{}
	tl := newTiler(t, src)
	ctx := context.Background()
	tile := maptile.At(trailHead, 6)

	first, err := tl.Tile(ctx, tile)
	require.NoError(t, err)
	again, err := tl.Tile(ctx, tile)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	_, err = tl.Tile(ctx, maptile.At(trailHead, 7))
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())

	tl.Invalidate()
	_, err = tl.Tile(ctx, tile)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestTileSourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("db down")}
	tl := newTiler(t, src)
	_, err := tl.Tile(context.Background(), maptile.At(trailHead, 5))
	assert.ErrorContains(t, err, "db down")
}

func TestRunInvalidatesOnEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := &fakeSource{}
	tl := newTiler(t, src)
	bus := service.NewEventBus()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tl.Run(ctx, bus)
		close(done)
	}()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	_, err := tl.Tile(ctx, maptile.At(trailHead, 4))
	require.NoError(t, err)

	bus.Publish(service.Event{Resource: service.ResourceRecResource, Action: service.ActionUpdated, ID: "REC0003"})
	require.Eventually(t, func() bool {
		tl.mu.RLock()
		defer tl.mu.RUnlock()
		return !tl.loaded && len(tl.tiles) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestHandler(t *testing.T) {
	tl := newTiler(t, &fakeSource{})
	mux := http.NewServeMux()
	mux.Handle(Pattern, tl.Handler())

	hit := maptile.At(trailHead, 8)
	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, tilePath(hit), http.StatusOK},
		{http.MethodGet, "/tiles/8/0/0.mvt", http.StatusNoContent},
		{http.MethodGet, "/tiles/12/0/0.mvt", http.StatusNotFound},
		{http.MethodGet, "/tiles/8/0/0.png", http.StatusNotFound},
		{http.MethodGet, "/tiles/a/b/c.mvt", http.StatusNotFound},
		{http.MethodOptions, "/tiles/8/0/0.mvt", http.StatusOK},
		{http.MethodPost, "/tiles/8/0/0.mvt", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.want == http.StatusOK && tt.method == http.MethodGet {
				assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
				assert.Equal(t, "application/vnd.mapbox-vector-tile", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func tilePath(t maptile.Tile) string {
	return fmt.Sprintf("/tiles/%d/%d/%d.mvt", t.Z, t.X, t.Y)
}

func TestExport(t *testing.T) {
	tl := newTiler(t, &fakeSource{})

	var buf bytes.Buffer
	n, err := tl.Export(context.Background(), &buf)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 9)

	h, err := pmtiles.DecodeHeader(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint8(0), h.MinZoom)
	assert.Equal(t, uint8(8), h.MaxZoom)
	assert.Equal(t, uint64(n), h.TileEntriesCount)
	assert.InDelta(t, -121.452, float64(h.MinLonE7)/1e7, 1e-6)

	empty := New(emptySource{}, func() config.Tiles { return config.Tiles{Layer: "x", MaxZoom: 2} }, zap.NewNop())
	_, err = empty.Export(context.Background(), &buf)
	assert.Error(t, err)
}

type emptySource struct{}

func (emptySource) MapResources(context.Context) ([]*geo.Resource, error) { return nil, nil }
