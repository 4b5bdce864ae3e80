package geo

import (
	"math"

	"github.com/example/trip-coordinator/internal/models"
)

const earthRadiusM = 6371000.0

func toRad(deg float64) float64 { return deg * math.Pi / 180.0 }

// HaversineM returns the great-circle distance between two points in meters.
func HaversineM(a, b models.Coord) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
	return earthRadiusM * c
}

// HaversineKm returns the great-circle distance in kilometers.
func HaversineKm(a, b models.Coord) float64 {
	return HaversineM(a, b) / 1000.0
}

// Bearing returns the initial course from a to b in degrees [0, 360).
func Bearing(a, b models.Coord) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLng := toRad(b.Lng - a.Lng)
	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	deg := math.Atan2(y, x) * 180.0 / math.Pi
	return math.Mod(deg+360.0, 360.0)
}

// PathLengthKm sums the great-circle segments of a recorded breadcrumb path.
func PathLengthKm(path []models.PathPoint) float64 {
	if len(path) < 2 {
		return 0
	}
	var km float64
	for i := 1; i < len(path); i++ {
		km += HaversineKm(
			models.Coord{Lat: path[i-1].Lat, Lng: path[i-1].Lng},
			models.Coord{Lat: path[i].Lat, Lng: path[i].Lng},
		)
	}
	return km
}
