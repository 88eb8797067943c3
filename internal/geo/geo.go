// Package geo holds the pure geographic math shared by every dispatch module:
// great-circle distance, forward azimuth and circle containment.
package geo

import (
	"math"

	"tawsil/internal/types"
)

const (
	earthRadiusKm = 6371.0

	// WindingFactor converts straight-line distance into an approximate street
	// distance for dense cities where roads rarely run straight.
	WindingFactor = 1.3
)

// Circle is a circular zone on the earth's surface.
type Circle struct {
	Center   types.Point `json:"center"`
	RadiusKm float64     `json:"radius_km"`
}

// HaversineKm returns the great-circle distance in kilometres between a and b.
func HaversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// RoadDistanceKm approximates driving distance as straight-line distance
// scaled by WindingFactor.
func RoadDistanceKm(a, b types.Point) float64 {
	return HaversineKm(a, b) * WindingFactor
}

// Bearing returns the initial forward azimuth from a to b in degrees,
// normalised to [0, 360).
func Bearing(a, b types.Point) float64 {
	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	y := math.Sin(dLng) * math.Cos(rLat2)
	x := math.Cos(rLat1)*math.Sin(rLat2) - math.Sin(rLat1)*math.Cos(rLat2)*math.Cos(dLng)
	deg := radiansToDegrees(math.Atan2(y, x))
	return math.Mod(deg+360, 360)
}

// InCircle reports whether p lies within radiusKm of center (boundary inclusive).
func InCircle(p, center types.Point, radiusKm float64) bool {
	return HaversineKm(p, center) <= radiusKm
}

// Contains reports whether p lies inside c.
func (c Circle) Contains(p types.Point) bool {
	return InCircle(p, c.Center, c.RadiusKm)
}

// SortByDistance performs an insertion sort (fine for small N) on any slice
// where each element exposes a distance via the accessor function. Equal
// distances keep their input order.
func SortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

func radiansToDegrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}
