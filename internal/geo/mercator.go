// Package geo converts stored BC Albers geometries into the projections
// used by the map: WGS84 lon/lat for tiling and Web Mercator for display.
package geo

import "math"

// EarthRadius is the WGS84 equatorial radius in meters, used by Web Mercator.
const EarthRadius = 6378137.0

// WebMercatorYToLat converts a Web Mercator y coordinate (meters) to latitude in degrees.
func WebMercatorYToLat(y float64) float64 {
	return (2*math.Atan(math.Exp(y/EarthRadius)) - math.Pi/2) * (180 / math.Pi)
}

// WebMercatorXToLon converts a Web Mercator x coordinate (meters) to longitude in degrees.
func WebMercatorXToLon(x float64) float64 {
	return (x / EarthRadius) * (180 / math.Pi)
}
