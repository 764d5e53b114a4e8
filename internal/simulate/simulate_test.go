package simulate

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/robert-malhotra/go-mwalib/internal/convert"
	"github.com/robert-malhotra/go-mwalib/internal/fits"
	"github.com/robert-malhotra/go-mwalib/internal/gpubox"
)

func TestWriteFileNames(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{
			"mwax",
			Config{Version: gpubox.MWAX},
			[]string{"1101503312_20141201210816_ch109_000.fits", "1101503312_20141201210816_ch110_000.fits"},
		},
		{
			"legacy batches",
			Config{Version: gpubox.Legacy, Channels: []int{131, 109}, TimeSteps: 3, BatchSteps: 2},
			[]string{
				"1101503312_20141201210816_gpubox02_00.fits", "1101503312_20141201210816_gpubox02_01.fits",
				"1101503312_20141201210816_gpubox01_00.fits", "1101503312_20141201210816_gpubox01_01.fits",
			},
		},
		{
			"old legacy subset",
			Config{Version: gpubox.OldLegacy, DataChannels: []int{110}},
			[]string{"1101503312_20141201210816_gpubox02.fits"},
		},
		{
			"coverage drops a channel",
			Config{Coverage: map[int]int{110: 0}},
			[]string{"1101503312_20141201210816_ch109_000.fits"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Dir = t.TempDir()
			obs, err := Write(tt.cfg)
			if err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			var got []string
			for _, p := range obs.DataFiles {
				got = append(got, filepath.Base(p))
				if _, err := gpubox.ParseFileName(p); err != nil {
					t.Errorf("ParseFileName(%s) error = %v", p, err)
				}
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("data files = %v, want %v", got, tt.want)
			}
			if filepath.Base(obs.Metafits) != "1101503312.metafits" {
				t.Errorf("metafits = %s", obs.Metafits)
			}
		})
	}
}

func TestWriteConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative antennas", Config{Antennas: -1}},
		{"fine channels", Config{FineChans: 3}},
		{"bitpix", Config{Bitpix: 16}},
		{"old legacy batches", Config{Version: gpubox.OldLegacy, BatchSteps: 1}},
		{"data channel outside plan", Config{DataChannels: []int{140}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Dir = t.TempDir()
			if _, err := Write(tt.cfg); !errors.Is(err, ErrConfig) {
				t.Errorf("Write() error = %v, want ErrConfig", err)
			}
		})
	}
}

func TestWriteMetafits(t *testing.T) {
	obs, err := Write(Config{Dir: t.TempDir(), Antennas: 4, Channels: []int{110, 109, 111}, FineChans: 4})
	if err != nil {
		t.Fatal(err)
	}
	f, err := fits.Open(obs.Metafits)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	h := f.Primary().Header
	ints := []struct {
		key  string
		want int64
	}{
		{"GPSTIME", DefaultObsID},
		{"NINPUTS", 8},
		{"EXPOSURE", 1},
	}
	for _, tt := range ints {
		if v, err := h.Int(tt.key); err != nil || v != tt.want {
			t.Errorf("Int(%s) = %d, %v, want %d", tt.key, v, err, tt.want)
		}
	}
	floats := []struct {
		key  string
		want float64
	}{
		{"FINECHAN", 320},
		{"BANDWDTH", 3.84},
		{"FREQCENT", 140.8},
		{"INTTIME", 0.5},
		{"QUACKTIM", 1},
	}
	for _, tt := range floats {
		if v, err := h.Float(tt.key); err != nil || v != tt.want {
			t.Errorf("Float(%s) = %v, %v, want %v", tt.key, v, err, tt.want)
		}
	}
	if v, _ := h.Text("CHANNELS"); v != "110,109,111" {
		t.Errorf("CHANNELS = %q", v)
	}

	hdu, err := f.HDU(1)
	if err != nil {
		t.Fatal(err)
	}
	tbl, err := hdu.ReadTable()
	if err != nil {
		t.Fatal(err)
	}
	if tbl.NumRows() != 8 {
		t.Fatalf("TILEDATA rows = %d, want 8", tbl.NumRows())
	}
	in, _ := tbl.ColumnIndex("Input")
	ant, _ := tbl.ColumnIndex("Antenna")
	pol, _ := tbl.ColumnIndex("Pol")
	for row := 0; row < tbl.NumRows(); row++ {
		input, _ := tbl.Int(row, in)
		a, _ := tbl.Int(row, ant)
		p, _ := tbl.Text(row, pol)
		if input != int64(row) {
			t.Errorf("row %d Input = %d", row, input)
		}
		wantAnt := int64(3 - row/2)
		wantPol := []string{"X", "Y"}[row%2]
		if a != wantAnt || p != wantPol {
			t.Errorf("row %d = antenna %d pol %s, want antenna %d pol %s", row, a, p, wantAnt, wantPol)
		}
	}
}

func TestWriteEditMetafits(t *testing.T) {
	obs, err := Write(Config{
		Dir:          t.TempDir(),
		EditMetafits: func(h *fits.Header) { h.Delete("DATE-OBS") },
	})
	if err != nil {
		t.Fatal(err)
	}
	f, err := fits.Open(obs.Metafits)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if f.Primary().Header.Has("DATE-OBS") {
		t.Error("DATE-OBS present after EditMetafits removed it")
	}
}

// readBlock reads HDU h of path and converts it back to canonical order.
func readBlock(t *testing.T, path string, h int, v gpubox.Version, d convert.Dims, lm *convert.LegacyMap) []float32 {
	t.Helper()
	f, err := fits.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	hdu, err := f.HDU(h)
	if err != nil {
		t.Fatal(err)
	}
	disk := make([]float32, hdu.NumElements())
	if err := hdu.ReadFloat32(disk, nil); err != nil {
		t.Fatal(err)
	}
	out := make([]float32, d.Len())
	if v == gpubox.MWAX {
		err = convert.FromMWAX(disk, out, convert.BaselineMajor, d)
	} else {
		err = convert.FromLegacy(disk, out, convert.BaselineMajor, d, lm)
	}
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestWriteDataLayout(t *testing.T) {
	for _, tc := range []struct {
		version gpubox.Version
		bitpix  int
	}{
		{gpubox.MWAX, -32},
		{gpubox.MWAX, 32},
		{gpubox.Legacy, -32},
		{gpubox.OldLegacy, 32},
	} {
		t.Run(tc.version.String(), func(t *testing.T) {
			obs, err := Write(Config{Dir: t.TempDir(), Version: tc.version, Bitpix: tc.bitpix, Antennas: 4, DataChannels: []int{110}})
			if err != nil {
				t.Fatal(err)
			}
			lm, err := convert.NewLegacyMap(convert.SlotsFromInputs(xInputs(4)))
			if err != nil {
				t.Fatal(err)
			}
			d := convert.Dims{Baselines: 10, FineChans: DefaultFineChans}
			for step := 0; step < DefaultTimeSteps; step++ {
				got := readBlock(t, obs.DataFiles[0], step+1, tc.version, d, lm)
				if want := Block(step, 110, d); !slices.Equal(got, want) {
					t.Errorf("timestep %d does not round trip", step)
				}
			}
		})
	}
}

func TestValueExact(t *testing.T) {
	seen := make(map[float32]bool)
	for b := 0; b < 6; b++ {
		for p := 0; p < convert.Pols; p++ {
			for ri := 0; ri < 2; ri++ {
				v := Value(1, 109, b, 0, p, ri)
				if v != float32(int32(v)) || v >= 1<<21 || v < -(1<<21) {
					t.Fatalf("Value = %v is not a small integer", v)
				}
				seen[v] = true
			}
		}
	}
	if len(seen) != 6*convert.Pols*2 {
		t.Errorf("%d distinct values, want %d", len(seen), 6*convert.Pols*2)
	}
}
