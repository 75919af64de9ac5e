package store

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// encodeCentroid converts a zone centroid to EWKB bytes with SRID 4326.
// A nil centroid encodes as nil.
func encodeCentroid(pt *geom.Point) ([]byte, error) {
	if pt == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(pt.SetSRID(4326), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode centroid")
	}
	return data, nil
}

// decodeCentroid parses EWKB bytes back into a point. Nil or empty
// bytes decode as nil.
func decodeCentroid(data []byte) (*geom.Point, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "store: decode centroid")
	}
	pt, ok := g.(*geom.Point)
	if !ok {
		return nil, eris.Errorf("store: centroid is %T, want point", g)
	}
	return pt, nil
}
