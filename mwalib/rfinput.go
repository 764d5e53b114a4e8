package mwalib

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/robert-malhotra/go-mwalib/internal/fits"
)

// Pol is the polarisation of one RF input.
type Pol int

const (
	PolX Pol = iota
	PolY
)

func (p Pol) String() string {
	if p == PolY {
		return "Y"
	}
	return "X"
}

func parsePol(s string) (Pol, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "X":
		return PolX, nil
	case "Y":
		return PolY, nil
	}
	return 0, fmt.Errorf("unknown polarisation %q", s)
}

// RFInput is one signal chain: an antenna and a polarisation.
type RFInput struct {
	Input    int // correlator input number
	Antenna  int // antenna number from TILEDATA
	TileID   int
	TileName string
	Pol      Pol

	ElectricalLengthM float64
	NorthM            float64
	EastM             float64
	HeightM           float64

	VCSOrder     int
	SubfileOrder int
	Flagged      bool
	Receiver     int
	Slot         int
}

// vcsOrder maps a correlator input number to its position in VCS data.
func vcsOrder(input int) int {
	return (input & 0xC0) | ((input & 0x30) >> 4) | ((input & 0x0F) << 2)
}

// TILEDATA column names.
var tileDataColumns = []string{
	"Input", "Antenna", "Tile", "TileName", "Pol", "Rx", "Slot", "Flag", "Length", "North", "East", "Height",
}

// readRFInputs decodes the TILEDATA table. Rows keep table order.
func readRFInputs(tbl *fits.Table) ([]RFInput, error) {
	col := make(map[string]int, len(tileDataColumns))
	for _, name := range tileDataColumns {
		i, err := tbl.ColumnIndex(name)
		if err != nil {
			return nil, err
		}
		col[name] = i
	}

	inputs := make([]RFInput, tbl.NumRows())
	for row := range inputs {
		r := &inputs[row]
		ints := []struct {
			name string
			dst  *int
		}{
			{"Input", &r.Input}, {"Antenna", &r.Antenna}, {"Tile", &r.TileID},
			{"Rx", &r.Receiver}, {"Slot", &r.Slot},
		}
		for _, f := range ints {
			v, err := tbl.Int(row, col[f.name])
			if err != nil {
				return nil, fmt.Errorf("row %d %s: %w", row, f.name, err)
			}
			*f.dst = int(v)
		}
		floats := []struct {
			name string
			dst  *float64
		}{
			{"North", &r.NorthM}, {"East", &r.EastM}, {"Height", &r.HeightM},
		}
		for _, f := range floats {
			v, err := tbl.Float(row, col[f.name])
			if err != nil {
				return nil, fmt.Errorf("row %d %s: %w", row, f.name, err)
			}
			*f.dst = v
		}

		var err error
		if r.TileName, err = tbl.Text(row, col["TileName"]); err != nil {
			return nil, fmt.Errorf("row %d TileName: %w", row, err)
		}
		pol, err := tbl.Text(row, col["Pol"])
		if err != nil {
			return nil, fmt.Errorf("row %d Pol: %w", row, err)
		}
		if r.Pol, err = parsePol(pol); err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		flag, err := tbl.Int(row, col["Flag"])
		if err != nil {
			return nil, fmt.Errorf("row %d Flag: %w", row, err)
		}
		r.Flagged = flag != 0
		if r.ElectricalLengthM, err = electricalLength(tbl, row, col["Length"]); err != nil {
			return nil, fmt.Errorf("row %d Length: %w", row, err)
		}

		r.VCSOrder = vcsOrder(r.Input)
		r.SubfileOrder = r.Antenna*2 + int(r.Pol)
	}
	return inputs, nil
}

// electricalLength reads the Length column. "EL_<metres>" values are
// already electrical lengths; bare numbers are physical cable lengths.
func electricalLength(tbl *fits.Table, row, col int) (float64, error) {
	s, err := tbl.Text(row, col)
	if err != nil {
		// Some metafits store a numeric column.
		v, ferr := tbl.Float(row, col)
		if ferr != nil {
			return 0, err
		}
		return v * CoaxVelocityFactor, nil
	}
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "EL_"); ok {
		return strconv.ParseFloat(rest, 64)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return v * CoaxVelocityFactor, nil
}
