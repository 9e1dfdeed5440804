package matrix

import (
	"github.com/samber/lo"

	"github.com/walkshed/access-cli/internal/model"
)

// tile is one origin-chunk × destination-chunk sub-request. Offsets locate
// the tile inside the full request so results reassemble in original order.
type tile struct {
	origins   []model.OriginCell
	dests     []model.Destination
	originOff int
	destOff   int
}

// tilePairs partitions a full origins×destinations request into tiles no
// larger than maxDim on either side.
func tilePairs(origins []model.OriginCell, dests []model.Destination, maxDim int) []tile {
	if maxDim <= 0 {
		maxDim = 1
	}

	originChunks := lo.Chunk(origins, maxDim)
	destChunks := lo.Chunk(dests, maxDim)

	tiles := make([]tile, 0, len(originChunks)*len(destChunks))
	oOff := 0
	for _, oc := range originChunks {
		dOff := 0
		for _, dc := range destChunks {
			tiles = append(tiles, tile{
				origins:   oc,
				dests:     dc,
				originOff: oOff,
				destOff:   dOff,
			})
			dOff += len(dc)
		}
		oOff += len(oc)
	}
	return tiles
}

// placeTile copies a tile batch into the full batch at the tile's offsets.
// Each tile writes a disjoint index range, so concurrent placement is safe.
func placeTile(full *model.TravelLegBatch, t tile, tileBatch *model.TravelLegBatch) {
	for i := range t.origins {
		for j := range t.dests {
			full.Legs[(t.originOff+i)*full.Dests+(t.destOff+j)] = tileBatch.Leg(i, j)
		}
	}
}

// originIDs and destIDs extract identifier slices for cache key hashing.
func originIDs(cells []model.OriginCell) []string {
	return lo.Map(cells, func(c model.OriginCell, _ int) string { return c.ID })
}

func destIDs(dests []model.Destination) []string {
	return lo.Map(dests, func(d model.Destination, _ int) string { return d.ID })
}
