// Package geo converts geodetic coordinates to a local planar frame.
//
// The projection is a spherical-earth equirectangular approximation around a
// reference point. It is only accurate for areas a few kilometres across;
// callers pick a reference point near the area being simulated.
package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadius is the mean Earth radius in metres.
const EarthRadius = 6.371e6

const degToRad = math.Pi / 180

// Reference is the origin of a local Cartesian frame, in degrees.
type Reference struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Project returns the local (x, y) position in metres of (lat, lon) relative
// to r. X grows east, Y grows north.
func (r Reference) Project(lat, lon float64) orb.Point {
	x := EarthRadius * (lon - r.Lon) * degToRad * math.Cos(r.Lat*degToRad)
	y := EarthRadius * (lat - r.Lat) * degToRad
	return orb.Point{x, y}
}

// ProjectPoint projects a geodetic point stored as orb.Point{lon, lat}.
func (r Reference) ProjectPoint(p orb.Point) orb.Point {
	return r.Project(p.Lat(), p.Lon())
}

// LatLon builds the geodetic orb.Point for (lat, lon). orb stores X=lon, Y=lat.
func LatLon(lat, lon float64) orb.Point { return orb.Point{lon, lat} }
