// Package geo converts between WGS-84 geodetic coordinates, earth-centred
// earth-fixed (ECEF) coordinates and a local north-east-down tangent frame.
// Angles are radians unless a name says otherwise.
package geo

// WGS-84 ellipsoid and earth constants.
const (
	Flatness            = 1.0 / 298.257223563
	EccentricitySquared = Flatness * (2 - Flatness)
	EquatorialRadius    = 6378137.0 // meters
	GeomagneticRadius   = 6371200.0 // meters
	AngularSpeed        = 7.2921e-5 // rad/s
	Gravity             = 9.80639076
)
