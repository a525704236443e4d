// Package polyline decodes and encodes Google's encoded polyline format.
// See https://developers.google.com/maps/documentation/utilities/polylinealgorithm.
package polyline

import "math"

// precision is the fixed scale of the format (5 decimal places).
const precision = 1e5

// Coordinate is a latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Bounds is the smallest box containing a path.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Decode turns an encoded polyline into coordinates.
// A truncated trailing value is dropped.
func Decode(encoded string) []Coordinate {
	if encoded == "" {
		return nil
	}

	var (
		coords   []Coordinate
		lat, lon int
		pos      int
	)

	for pos < len(encoded) {
		dLat, next, ok := readValue(encoded, pos)
		if !ok {
			break
		}
		dLon, next, ok := readValue(encoded, next)
		if !ok {
			break
		}
		pos = next

		lat += dLat
		lon += dLon
		coords = append(coords, Coordinate{
			Lat: float64(lat) / precision,
			Lon: float64(lon) / precision,
		})
	}

	return coords
}

// readValue reads one zig-zag encoded varint starting at pos.
func readValue(encoded string, pos int) (value, next int, ok bool) {
	var result, shift int
	for pos < len(encoded) {
		chunk := int(encoded[pos]) - 63
		pos++
		result |= (chunk & 0x1f) << shift
		shift += 5
		if chunk < 0x20 {
			if result&1 != 0 {
				return ^(result >> 1), pos, true
			}
			return result >> 1, pos, true
		}
	}
	return 0, pos, false
}

// Encode turns coordinates into an encoded polyline.
func Encode(coords []Coordinate) string {
	if len(coords) == 0 {
		return ""
	}

	buf := make([]byte, 0, len(coords)*6)
	var prevLat, prevLon int

	for _, c := range coords {
		lat := int(math.Round(c.Lat * precision))
		lon := int(math.Round(c.Lon * precision))
		buf = appendValue(buf, lat-prevLat)
		buf = appendValue(buf, lon-prevLon)
		prevLat, prevLon = lat, lon
	}

	return string(buf)
}

func appendValue(buf []byte, value int) []byte {
	v := value << 1
	if value < 0 {
		v = ^v
	}
	for v >= 0x20 {
		buf = append(buf, byte((v&0x1f)|0x20)+63)
		v >>= 5
	}
	return append(buf, byte(v)+63)
}

// BoundsOf returns the bounding box of coords, or false for an empty path.
func BoundsOf(coords []Coordinate) (Bounds, bool) {
	if len(coords) == 0 {
		return Bounds{}, false
	}

	b := Bounds{
		South: coords[0].Lat,
		North: coords[0].Lat,
		West:  coords[0].Lon,
		East:  coords[0].Lon,
	}
	for _, c := range coords[1:] {
		b.South = math.Min(b.South, c.Lat)
		b.North = math.Max(b.North, c.Lat)
		b.West = math.Min(b.West, c.Lon)
		b.East = math.Max(b.East, c.Lon)
	}
	return b, true
}
