package geo

import (
	"fmt"
	"math"
)

// LLA is a geodetic position on the WGS-84 ellipsoid.
type LLA struct {
	Latitude  float64 // radians
	Longitude float64 // radians
	Altitude  float64 // meters above the ellipsoid
}

// FromRadians builds an LLA from radian angles.
func FromRadians(lat, lon, alt float64) LLA {
	return LLA{Latitude: lat, Longitude: lon, Altitude: alt}
}

// FromDegrees builds an LLA from degree angles.
func FromDegrees(lat, lon, alt float64) LLA {
	return LLA{Latitude: degToRad(lat), Longitude: degToRad(lon), Altitude: alt}
}

// LatitudeDegrees returns the latitude in degrees.
func (p LLA) LatitudeDegrees() float64 { return radToDeg(p.Latitude) }

// LongitudeDegrees returns the longitude in degrees.
func (p LLA) LongitudeDegrees() float64 { return radToDeg(p.Longitude) }

func (p LLA) String() string {
	return fmt.Sprintf("%.8f, %.8f, %.3f", p.LatitudeDegrees(), p.LongitudeDegrees(), p.Altitude)
}

// ToECEF converts the geodetic position to ECEF.
func (p LLA) ToECEF() ECEF {
	sinLat, cosLat := math.Sincos(p.Latitude)
	sinLon, cosLon := math.Sincos(p.Longitude)

	// prime vertical radius of curvature
	n := EquatorialRadius / math.Sqrt(1-EccentricitySquared*sinLat*sinLat)

	return ECEF{
		X: (n + p.Altitude) * cosLat * cosLon,
		Y: (n + p.Altitude) * cosLat * sinLon,
		Z: (n*(1-EccentricitySquared) + p.Altitude) * sinLat,
	}
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }
func radToDeg(r float64) float64 { return r * 180 / math.Pi }
