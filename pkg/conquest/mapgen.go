package conquest

// Map sizes, in regions.
const (
	MapSmall  = 12
	MapMedium = 20
	MapLarge  = 32
)

// MapSize translates a map name to a region count. Unknown names get the
// medium map.
func MapSize(name string) int {
	switch name {
	case "small":
		return MapSmall
	case "large":
		return MapLarge
	default:
		return MapMedium
	}
}

// GenerateMap builds a connected region graph of the given size,
// deterministically from the seed. Regions sit on a jittered grid and
// connect to their orthogonal grid neighbors, with a sprinkling of diagonal
// shortcuts so the graph is not a plain lattice.
func GenerateMap(size int, seed string) []Region {
	rng := NewRng(seed + ":map")

	cols := 4
	for cols*cols < size {
		cols++
	}

	regions := make([]Region, size)
	for i := range regions {
		col := i % cols
		row := i / cols
		regions[i] = Region{
			Index: i,
			X:     float64(col) + float64(rng.Intn(40))/100.0,
			Y:     float64(row) + float64(rng.Intn(40))/100.0,
		}
	}

	at := func(col, row int) int {
		if col < 0 || col >= cols || row < 0 {
			return -1
		}
		idx := row*cols + col
		if idx >= size {
			return -1
		}
		return idx
	}
	connect := func(a, b int) {
		regions[a].Neighbors = append(regions[a].Neighbors, b)
		regions[b].Neighbors = append(regions[b].Neighbors, a)
	}

	for i := range regions {
		col := i % cols
		row := i / cols
		if n := at(col+1, row); n >= 0 {
			connect(i, n)
		}
		if n := at(col, row+1); n >= 0 {
			connect(i, n)
		}
		// Occasional diagonal shortcut.
		if n := at(col+1, row+1); n >= 0 && rng.Intn(4) == 0 {
			connect(i, n)
		}
	}
	return regions
}

// HomeRegions picks one starting region per player, spread toward the map's
// corners so no two players start adjacent. The caller passes the region
// graph from GenerateMap.
func HomeRegions(regions []Region, players int) []int {
	if players < 1 || len(regions) == 0 {
		return nil
	}

	// Corner-most regions by coordinate extremes: min/min, max/max,
	// min/max, max/min.
	type corner struct{ xSign, ySign float64 }
	corners := []corner{{-1, -1}, {1, 1}, {-1, 1}, {1, -1}}

	taken := make(map[int]bool)
	var homes []int
	for p := 0; p < players; p++ {
		c := corners[p%len(corners)]
		best, bestScore := -1, 0.0
		for i := range regions {
			if taken[regions[i].Index] {
				continue
			}
			score := c.xSign*regions[i].X + c.ySign*regions[i].Y
			if best < 0 || score > bestScore {
				best = regions[i].Index
				bestScore = score
			}
		}
		taken[best] = true
		homes = append(homes, best)
	}
	return homes
}
