package geo

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Reference is the origin of a local north-east-down tangent frame. Tangent
// vectors are r3.Vec with X=north, Y=east, Z=down, in meters.
type Reference struct {
	LLA  LLA
	ECEF ECEF

	sinLat, cosLat float64
	sinLon, cosLon float64
}

// NewReference precomputes the rotation for a tangent frame at origin.
func NewReference(origin LLA) Reference {
	sinLat, cosLat := math.Sincos(origin.Latitude)
	sinLon, cosLon := math.Sincos(origin.Longitude)
	return Reference{
		LLA:    origin,
		ECEF:   origin.ToECEF(),
		sinLat: sinLat,
		cosLat: cosLat,
		sinLon: sinLon,
		cosLon: cosLon,
	}
}

// ECEFToTangent expresses an ECEF position in the local frame.
func (r Reference) ECEFToTangent(e ECEF) r3.Vec {
	d := e.Sub(r.ECEF)
	return r3.Vec{
		X: -r.sinLat*r.cosLon*d.X - r.sinLat*r.sinLon*d.Y + r.cosLat*d.Z,
		Y: -r.sinLon*d.X + r.cosLon*d.Y,
		Z: -r.cosLat*r.cosLon*d.X - r.cosLat*r.sinLon*d.Y - r.sinLat*d.Z,
	}
}

// TangentToECEF rotates a tangent vector into an ECEF offset from the
// reference. Add r.ECEF to obtain an absolute position.
func (r Reference) TangentToECEF(t r3.Vec) ECEF {
	return ECEF{
		X: -r.sinLat*r.cosLon*t.X - r.sinLon*t.Y - r.cosLat*r.cosLon*t.Z,
		Y: -r.sinLat*r.sinLon*t.X + r.cosLon*t.Y - r.cosLat*r.sinLon*t.Z,
		Z: r.cosLat*t.X - r.sinLat*t.Z,
	}
}

// LLAToTangent expresses a geodetic position in the local frame.
func (r Reference) LLAToTangent(p LLA) r3.Vec {
	return r.ECEFToTangent(p.ToECEF())
}

// TangentToLLA converts a local position to geodetic coordinates.
func (r Reference) TangentToLLA(t r3.Vec) LLA {
	return r.TangentToECEF(t).Add(r.ECEF).ToLLA()
}
