// Package geo contains pure geographic helpers shared by matching and pricing.
package geo

import (
	"math"

	"github.com/mmcloughlin/geohash"
)

const earthRadiusKm = 6371.0

// IndexPrecisions are the geohash lengths a driver position is indexed under,
// finest first.
var IndexPrecisions = []uint{6, 5, 4}

// HaversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// ValidCoordinate reports whether lat/lng lie within WGS84 bounds.
func ValidCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Cell encodes a point as a geohash of the given length.
func Cell(lat, lng float64, precision uint) string {
	return geohash.EncodeWithPrecision(lat, lng, precision)
}

// Cells returns the cell containing the point at each precision, in the
// order the precisions are given.
func Cells(lat, lng float64, precisions ...uint) []string {
	if len(precisions) == 0 {
		precisions = IndexPrecisions
	}
	out := make([]string, 0, len(precisions))
	for _, p := range precisions {
		out = append(out, Cell(lat, lng, p))
	}
	return out
}

// SearchCells returns the cell containing the point plus its eight neighbours.
func SearchCells(lat, lng float64, precision uint) []string {
	center := Cell(lat, lng, precision)
	return append([]string{center}, geohash.Neighbors(center)...)
}

// ETAMinutes estimates travel time at a constant speed, rounded up and never
// below floor.
func ETAMinutes(distanceKm, speedKmh float64, floor int) int {
	if speedKmh <= 0 {
		return floor
	}
	minutes := int(math.Ceil(distanceKm / speedKmh * 60))
	if minutes < floor {
		return floor
	}
	return minutes
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
