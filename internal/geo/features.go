package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

// Feature kinds set on the "kind" property of map features.
const (
	KindSpatial   = "spatial"
	KindSitePoint = "site-point"
)

// Resource is the stored geometry of one recreation resource. Geometries
// are GeoJSON geometry objects in BC Albers meters.
type Resource struct {
	ID                     string
	Name                   string
	SpatialFeatureGeometry []string
	SitePointGeometry      string
}

// MapFeaturesFromRecResource reprojects the resource's geometries to Web
// Mercator. Spatial features come first, the site point (if any) last.
// A nil resource yields no features.
func MapFeaturesFromRecResource(r *Resource) []*geojson.Feature {
	return features(r, BCAlbers.ToMercator)
}

// MapFeaturesWGS84 is MapFeaturesFromRecResource with lon/lat output.
func MapFeaturesWGS84(r *Resource) []*geojson.Feature {
	return features(r, BCAlbers.ToWGS84)
}

func features(r *Resource, proj orb.Projection) []*geojson.Feature {
	out := []*geojson.Feature{}
	if r == nil {
		return out
	}

	for _, raw := range r.SpatialFeatureGeometry {
		if f := feature(raw, proj, r, KindSpatial); f != nil {
			out = append(out, f)
		}
	}
	if r.SitePointGeometry != "" {
		if f := feature(r.SitePointGeometry, proj, r, KindSitePoint); f != nil {
			out = append(out, f)
		}
	}
	return out
}

func feature(raw string, proj orb.Projection, r *Resource, kind string) *geojson.Feature {
	g, err := geojson.UnmarshalGeometry([]byte(raw))
	if err != nil || g.Geometry() == nil {
		return nil
	}

	f := geojson.NewFeature(project.Geometry(g.Geometry(), proj))
	f.Properties["rec_resource_id"] = r.ID
	f.Properties["name"] = r.Name
	f.Properties["kind"] = kind
	return f
}

// FeatureCollection wraps features for JSON output.
func FeatureCollection(features []*geojson.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(f)
	}
	return fc
}
