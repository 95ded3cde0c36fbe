package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// AlbersParams describes an ellipsoidal Albers equal-area conic projection.
type AlbersParams struct {
	A          float64 // semi-major axis (m)
	InvF       float64 // inverse flattening
	Lat1       float64 // first standard parallel (deg)
	Lat2       float64 // second standard parallel (deg)
	Lat0       float64 // latitude of origin (deg)
	Lon0       float64 // central meridian (deg)
	FalseEast  float64
	FalseNorth float64
}

// BCAlbersParams is EPSG:3005, NAD83 / BC Albers.
var BCAlbersParams = AlbersParams{
	A:          6378137.0,
	InvF:       298.257222101,
	Lat1:       50,
	Lat2:       58.5,
	Lat0:       45,
	Lon0:       -126,
	FalseEast:  1000000,
	FalseNorth: 0,
}

// Albers holds the derived constants of an Albers projection.
type Albers struct {
	p    AlbersParams
	e    float64
	e2   float64
	n    float64
	c    float64
	rho0 float64
}

// BCAlbers is the projection used for every stored geometry.
var BCAlbers = NewAlbers(BCAlbersParams)

// NewAlbers precomputes the cone constants for p.
func NewAlbers(p AlbersParams) *Albers {
	f := 1 / p.InvF
	e2 := 2*f - f*f
	a := &Albers{p: p, e2: e2, e: math.Sqrt(e2)}

	phi1, phi2, phi0 := rad(p.Lat1), rad(p.Lat2), rad(p.Lat0)
	m1, m2 := a.m(phi1), a.m(phi2)
	q1, q2, q0 := a.q(phi1), a.q(phi2), a.q(phi0)

	if math.Abs(phi1-phi2) > 1e-10 {
		a.n = (m1*m1 - m2*m2) / (q2 - q1)
	} else {
		a.n = math.Sin(phi1)
	}
	a.c = m1*m1 + a.n*q1
	a.rho0 = p.A * math.Sqrt(a.c-a.n*q0) / a.n
	return a
}

func (a *Albers) m(phi float64) float64 {
	s := math.Sin(phi)
	return math.Cos(phi) / math.Sqrt(1-a.e2*s*s)
}

func (a *Albers) q(phi float64) float64 {
	s := math.Sin(phi)
	es := a.e * s
	return (1 - a.e2) * (s/(1-a.e2*s*s) - (1/(2*a.e))*math.Log((1-es)/(1+es)))
}

// Forward projects a lon/lat point (degrees) into projected meters.
func (a *Albers) Forward(p orb.Point) orb.Point {
	lam, phi := rad(p.Lon()), rad(p.Lat())
	rho := a.p.A * math.Sqrt(a.c-a.n*a.q(phi)) / a.n
	theta := a.n * (lam - rad(a.p.Lon0))
	return orb.Point{
		a.p.FalseEast + rho*math.Sin(theta),
		a.p.FalseNorth + a.rho0 - rho*math.Cos(theta),
	}
}

// Inverse converts projected meters back to lon/lat degrees.
func (a *Albers) Inverse(p orb.Point) orb.Point {
	x := p[0] - a.p.FalseEast
	y := a.rho0 - (p[1] - a.p.FalseNorth)

	rho := math.Hypot(x, y)
	theta := math.Atan2(x, y)
	if a.n < 0 {
		rho, theta = -rho, math.Atan2(-x, -y)
	}

	q := (a.c - rho*rho*a.n*a.n/(a.p.A*a.p.A)) / a.n
	phi := a.phiFromQ(q)
	lam := rad(a.p.Lon0) + theta/a.n
	return orb.Point{deg(lam), deg(phi)}
}

// phiFromQ iterates Snyder's (3-16) until latitude converges.
func (a *Albers) phiFromQ(q float64) float64 {
	limit := 1 - (1-a.e2)/(2*a.e)*math.Log((1-a.e)/(1+a.e))
	if math.Abs(math.Abs(q)-math.Abs(limit)) < 1e-12 {
		return math.Copysign(math.Pi/2, q)
	}

	phi := math.Asin(q / 2)
	for i := 0; i < 25; i++ {
		s := math.Sin(phi)
		es := a.e * s
		den := 1 - a.e2*s*s
		d := den * den / (2 * math.Cos(phi)) *
			(q/(1-a.e2) - s/den + (1/(2*a.e))*math.Log((1-es)/(1+es)))
		phi += d
		if math.Abs(d) < 1e-12 {
			break
		}
	}
	return phi
}

// ToWGS84 is Inverse as an orb.Projection.
func (a *Albers) ToWGS84(p orb.Point) orb.Point { return a.Inverse(p) }

// FromWGS84 is Forward as an orb.Projection.
func (a *Albers) FromWGS84(p orb.Point) orb.Point { return a.Forward(p) }

// ToMercator converts a projected point straight to Web Mercator meters.
func (a *Albers) ToMercator(p orb.Point) orb.Point {
	return project.WGS84.ToMercator(a.Inverse(p))
}

func rad(d float64) float64 { return d * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }
