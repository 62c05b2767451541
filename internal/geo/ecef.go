package geo

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ECEF is an earth-centred earth-fixed cartesian position in meters.
type ECEF r3.Vec

// Add returns e+o.
func (e ECEF) Add(o ECEF) ECEF { return ECEF(r3.Add(r3.Vec(e), r3.Vec(o))) }

// Sub returns e-o.
func (e ECEF) Sub(o ECEF) ECEF { return ECEF(r3.Sub(r3.Vec(e), r3.Vec(o))) }

// sqrt(1 - e^2)
var sqrtOneMinusE2 = math.Sqrt(1 - EccentricitySquared)

// ToLLA converts to geodetic coordinates with Borkowski's closed-form
// solution:
//
//	Borkowski K.M. (1989), Accurate Algorithms to Transform Geocentric to
//	Geodetic Coordinates, Bulletin Geodesique 63, pp. 50-56.
func (e ECEF) ToLLA() LLA {
	beta := math.Hypot(e.X, e.Y)
	signZ := math.Copysign(1, e.Z)

	bz := sqrtOneMinusE2 * math.Abs(e.Z)
	ea := EccentricitySquared * EquatorialRadius

	ei := (bz - ea) / beta
	fi := (bz + ea) / beta
	p := (4.0 / 3.0) * (ei*fi + 1)
	q := 2 * (ei*ei - fi*fi)
	d := p*p*p + q*q
	sqrtD := math.Sqrt(d)
	v := math.Cbrt(sqrtD-q) - math.Cbrt(sqrtD+q)
	g := 0.5 * (math.Sqrt(ei*ei+v) + ei)
	ti := math.Sqrt(g*g+(fi-v*g)/(2*g-ei)) - g

	lon := math.Atan2(e.Y, e.X)
	lat := signZ * math.Atan((1-ti*ti)/(2*ti*sqrtOneMinusE2))
	alt := (beta-EquatorialRadius*ti)*math.Cos(lat) +
		(e.Z-signZ*EquatorialRadius*sqrtOneMinusE2)*math.Sin(lat)

	return LLA{Latitude: lat, Longitude: lon, Altitude: alt}
}
