package maptiles

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/paulmach/orb/maptile"
	"go.uber.org/zap"
)

// Pattern is the mux pattern the handler expects.
const Pattern = "/tiles/{z}/{x}/{y}"

// Handler serves /tiles/{z}/{x}/{y}.mvt. Empty tiles are 204.
func (t *Tiler) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Encoding")

		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
			return
		case http.MethodGet, http.MethodHead:
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		tile, ok := parseTile(r.PathValue("z"), r.PathValue("x"), r.PathValue("y"))
		if !ok {
			http.NotFound(w, r)
			return
		}

		data, err := t.Tile(r.Context(), tile)
		switch {
		case errors.Is(err, ErrOutOfRange):
			http.NotFound(w, r)
			return
		case err != nil:
			t.log.Error("tile failed", zap.Error(err),
				zap.Uint32("z", uint32(tile.Z)), zap.Uint32("x", tile.X), zap.Uint32("y", tile.Y))
			http.Error(w, "Tile generation failed", http.StatusInternalServerError)
			return
		case data == nil:
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", "application/vnd.mapbox-vector-tile")
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Cache-Control", "public, max-age=60")
		if r.Method == http.MethodHead {
			return
		}
		w.Write(data)
	})
}

func parseTile(zs, xs, ys string) (maptile.Tile, bool) {
	ys, ok := strings.CutSuffix(ys, ".mvt")
	if !ok {
		return maptile.Tile{}, false
	}
	z, err1 := strconv.ParseUint(zs, 10, 8)
	x, err2 := strconv.ParseUint(xs, 10, 32)
	y, err3 := strconv.ParseUint(ys, 10, 32)
	if err1 != nil || err2 != nil || err3 != nil {
		return maptile.Tile{}, false
	}
	return maptile.New(uint32(x), uint32(y), maptile.Zoom(z)), true
}
