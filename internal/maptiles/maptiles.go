// Package maptiles renders recreation resource geometries as Mapbox Vector
// Tiles, either on demand for the slippy map or as a PMTiles archive.
//
// Features are loaded once from the resource source and kept in lon/lat
// until Invalidate is called. Encoded tiles are cached alongside them.
package maptiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/joeblew999/plat-rec/internal/config"
	"github.com/joeblew999/plat-rec/internal/geo"
	"github.com/joeblew999/plat-rec/internal/pmtiles"
	"github.com/joeblew999/plat-rec/internal/service"
)

// ErrOutOfRange is returned for tiles outside the configured zooms or the
// tile grid.
var ErrOutOfRange = errors.New("tile out of range")

// maxCached bounds the encoded tile cache. The cache is dropped when full.
const maxCached = 4096

// Source lists resource geometries.
type Source interface {
	MapResources(ctx context.Context) ([]*geo.Resource, error)
}

// Tiler renders and caches vector tiles.
type Tiler struct {
	src  Source
	opts func() config.Tiles
	log  *zap.Logger

	mu       sync.RWMutex
	features []*geojson.Feature
	loaded   bool
	tiles    map[maptile.Tile][]byte
	gen      uint64

	group singleflight.Group
}

// New creates a Tiler. opts is read on every request so config reloads
// apply without a restart.
func New(src Source, opts func() config.Tiles, log *zap.Logger) *Tiler {
	return &Tiler{
		src:   src,
		opts:  opts,
		log:   log,
		tiles: map[maptile.Tile][]byte{},
	}
}

// Invalidate drops the loaded features and every cached tile.
func (t *Tiler) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.features = nil
	t.loaded = false
	t.tiles = map[maptile.Tile][]byte{}
	t.gen++
}

// Run invalidates the cache on every resource change until ctx is done.
func (t *Tiler) Run(ctx context.Context, bus *service.EventBus) {
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			t.log.Debug("invalidating tiles", zap.String("id", ev.ID), zap.String("action", ev.Action))
			t.Invalidate()
		}
	}
}

// Tile returns the gzipped MVT for tile. An empty tile is nil with no error.
func (t *Tiler) Tile(ctx context.Context, tile maptile.Tile) ([]byte, error) {
	opts := t.opts()
	if int(tile.Z) < opts.MinZoom || int(tile.Z) > opts.MaxZoom || !tile.Valid() {
		return nil, fmt.Errorf("tile %d/%d/%d: %w", tile.Z, tile.X, tile.Y, ErrOutOfRange)
	}

	t.mu.RLock()
	data, ok := t.tiles[tile]
	t.mu.RUnlock()
	if ok {
		return data, nil
	}

	v, err, _ := t.group.Do(fmt.Sprintf("%d/%d/%d", tile.Z, tile.X, tile.Y), func() (any, error) {
		features, gen, err := t.load(ctx)
		if err != nil {
			return nil, err
		}
		data, err := encode(tile, features, opts.Layer)
		if err != nil {
			return nil, err
		}

		t.mu.Lock()
		if t.gen == gen {
			if len(t.tiles) >= maxCached {
				t.tiles = map[maptile.Tile][]byte{}
			}
			t.tiles[tile] = data
		}
		t.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Export writes every non-empty tile in the configured zoom range as a
// PMTiles archive and returns the number of tiles written.
func (t *Tiler) Export(ctx context.Context, w io.Writer) (int, error) {
	opts := t.opts()
	features, _, err := t.load(ctx)
	if err != nil {
		return 0, err
	}
	if len(features) == 0 {
		return 0, errors.New("no features to export")
	}

	var (
		out    []pmtiles.Tile
		bounds = features[0].Geometry.Bound()
	)
	for _, f := range features[1:] {
		bounds = bounds.Union(f.Geometry.Bound())
	}

	for z := opts.MinZoom; z <= opts.MaxZoom; z++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		byTile := map[maptile.Tile][]*geojson.Feature{}
		for _, f := range features {
			for _, tile := range tilesInBounds(f.Geometry.Bound(), maptile.Zoom(z)) {
				byTile[tile] = append(byTile[tile], f)
			}
		}
		for tile, fs := range byTile {
			data, err := encode(tile, fs, opts.Layer)
			if err != nil {
				return 0, err
			}
			if data == nil {
				continue
			}
			out = append(out, pmtiles.Tile{Z: uint8(tile.Z), X: tile.X, Y: tile.Y, Data: data})
		}
	}

	err = pmtiles.Write(w, pmtiles.Archive{
		Name:    opts.Layer,
		MinZoom: uint8(opts.MinZoom),
		MaxZoom: uint8(opts.MaxZoom),
		Bounds:  pmtiles.Bounds{MinLon: bounds.Min.Lon(), MinLat: bounds.Min.Lat(), MaxLon: bounds.Max.Lon(), MaxLat: bounds.Max.Lat()},
	}, out)
	if err != nil {
		return 0, err
	}
	return len(out), nil
}

// load returns the cached features, reading them from the source first if
// needed, along with the cache generation they belong to.
func (t *Tiler) load(ctx context.Context) ([]*geojson.Feature, uint64, error) {
	t.mu.RLock()
	if t.loaded {
		defer t.mu.RUnlock()
		return t.features, t.gen, nil
	}
	gen := t.gen
	t.mu.RUnlock()

	resources, err := t.src.MapResources(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("loading tile features: %w", err)
	}
	var features []*geojson.Feature
	for _, r := range resources {
		features = append(features, geo.MapFeaturesWGS84(r)...)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen == gen && !t.loaded {
		t.features = features
		t.loaded = true
		t.log.Debug("loaded tile features", zap.Int("features", len(features)))
	}
	return features, gen, nil
}

// encode renders the features intersecting tile. Geometries are cloned
// because mvt clips and projects in place.
func encode(tile maptile.Tile, features []*geojson.Feature, layerName string) ([]byte, error) {
	bound := tile.Bound()
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		if !geometryIntersectsTile(f.Geometry, bound) {
			continue
		}
		clone := geojson.NewFeature(orb.Clone(f.Geometry))
		for k, v := range f.Properties {
			clone.Properties[k] = v
		}
		fc.Append(clone)
	}
	if len(fc.Features) == 0 {
		return nil, nil
	}

	layer := mvt.NewLayer(layerName, fc)
	if eps := simplifyEpsilon(tile.Z); eps > 0 {
		layer.Simplify(simplify.DouglasPeucker(eps))
	}
	layer.Clip(bound)
	layer.ProjectToTile(tile)
	layer.RemoveEmpty(0.5, 0.5)
	if len(layer.Features) == 0 {
		return nil, nil
	}

	data, err := mvt.MarshalGzipped(mvt.Layers{layer})
	if err != nil {
		return nil, fmt.Errorf("encoding tile %d/%d/%d: %w", tile.Z, tile.X, tile.Y, err)
	}
	return data, nil
}

// geometryIntersectsTile refines a bounding box test with vertex and
// containment checks for points and polygons.
func geometryIntersectsTile(geom orb.Geometry, bound orb.Bound) bool {
	if geom == nil || !geom.Bound().Intersects(bound) {
		return false
	}

	switch g := geom.(type) {
	case orb.Point:
		return bound.Contains(g)
	case orb.MultiPoint:
		for _, p := range g {
			if bound.Contains(p) {
				return true
			}
		}
		return false
	case orb.Polygon:
		for _, ring := range g {
			for _, p := range ring {
				if bound.Contains(p) {
					return true
				}
			}
		}
		corners := []orb.Point{bound.Min, {bound.Max[0], bound.Min[1]}, bound.Max, {bound.Min[0], bound.Max[1]}, bound.Center()}
		for _, p := range corners {
			if planar.PolygonContains(g, p) {
				return true
			}
		}
		return false
	case orb.MultiPolygon:
		for _, poly := range g {
			if geometryIntersectsTile(poly, bound) {
				return true
			}
		}
		return false
	case orb.MultiLineString:
		for _, ls := range g {
			if geometryIntersectsTile(ls, bound) {
				return true
			}
		}
		return false
	default:
		// Lines and collections: clipping drops the misses.
		return true
	}
}

// tilesInBounds lists the tiles at zoom covering bounds.
func tilesInBounds(bounds orb.Bound, zoom maptile.Zoom) []maptile.Tile {
	lo := maptile.At(bounds.Min, zoom)
	hi := maptile.At(bounds.Max, zoom)
	minX, maxX := min(lo.X, hi.X), max(lo.X, hi.X)
	minY, maxY := min(lo.Y, hi.Y), max(lo.Y, hi.Y)

	var tiles []maptile.Tile
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			tiles = append(tiles, maptile.New(x, y, zoom))
		}
	}
	return tiles
}

// simplifyEpsilon is the Douglas-Peucker tolerance in degrees. Trails are
// a few hundred meters of vertices, so low zooms still keep some shape.
func simplifyEpsilon(zoom maptile.Zoom) float64 {
	switch {
	case zoom >= 13:
		return 0
	case zoom >= 10:
		return 0.00001
	case zoom >= 6:
		return 0.0001
	default:
		return 0.001
	}
}
