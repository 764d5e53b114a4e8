package mwalib

import (
	"fmt"
	"slices"
)

// Antenna is one tile. X and Y index the antenna's RF inputs in
// MetafitsContext.RFInputs.
type Antenna struct {
	Index    int
	Number   int // antenna number from TILEDATA
	TileID   int
	TileName string
	X        int
	Y        int
}

// buildAntennas sorts inputs by subfile order and pairs consecutive X/Y
// inputs into antennas.
func buildAntennas(inputs []RFInput) ([]Antenna, error) {
	if len(inputs)%2 != 0 {
		return nil, fmt.Errorf("%d RF inputs is not an even number", len(inputs))
	}
	slices.SortStableFunc(inputs, func(a, b RFInput) int { return a.SubfileOrder - b.SubfileOrder })

	antennas := make([]Antenna, len(inputs)/2)
	for i := range antennas {
		x, y := inputs[2*i], inputs[2*i+1]
		if x.Pol != PolX || y.Pol != PolY || x.Antenna != y.Antenna {
			return nil, fmt.Errorf("RF inputs %d (%s, antenna %d) and %d (%s, antenna %d) do not form an X/Y pair",
				x.Input, x.Pol, x.Antenna, y.Input, y.Pol, y.Antenna)
		}
		antennas[i] = Antenna{
			Index:    i,
			Number:   x.Antenna,
			TileID:   x.TileID,
			TileName: x.TileName,
			X:        2 * i,
			Y:        2*i + 1,
		}
	}
	return antennas, nil
}
