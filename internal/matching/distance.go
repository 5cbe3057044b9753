package matching

import (
	"math"

	"jobmate/fulfillment-service/internal/model"
)

// DistanceFunc returns the distance in kilometres between two points.
type DistanceFunc func(a, b model.Coordinates) float64

const earthRadiusKm = 6371.0

// Haversine is the great-circle distance on a spherical Earth.
func Haversine(a, b model.Coordinates) float64 {
	lat1, lat2 := rad(a.Lat), rad(b.Lat)
	dLat := lat2 - lat1
	dLng := rad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }

// Box is a latitude/longitude rectangle. With AnyLng the longitude is
// unbounded (a pole or the antimeridian lies within reach).
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
	AnyLng         bool
}

// BoundingBox returns a box containing every point within radiusKm of c.
func BoundingBox(c model.Coordinates, radiusKm float64) Box {
	ang := radiusKm / earthRadiusKm
	lat := rad(c.Lat)
	b := Box{MinLat: deg(lat - ang), MaxLat: deg(lat + ang), MinLng: -180, MaxLng: 180, AnyLng: true}
	if b.MinLat <= -90 || b.MaxLat >= 90 {
		b.MinLat, b.MaxLat = math.Max(b.MinLat, -90), math.Min(b.MaxLat, 90)
		return b
	}
	dLng := deg(math.Asin(math.Sin(ang) / math.Cos(lat)))
	if c.Lng-dLng < -180 || c.Lng+dLng > 180 {
		return b
	}
	b.MinLng, b.MaxLng, b.AnyLng = c.Lng-dLng, c.Lng+dLng, false
	return b
}

// Contains reports whether p lies in the box.
func (b Box) Contains(p model.Coordinates) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	return b.AnyLng || (p.Lng >= b.MinLng && p.Lng <= b.MaxLng)
}

func deg(r float64) float64 { return r * 180 / math.Pi }
