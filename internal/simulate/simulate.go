// Package simulate writes synthetic MWA observations: a metafits file and
// correlator data files for any correlator generation, with deterministic
// visibilities laid out as that correlator stores them.
package simulate

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/robert-malhotra/go-mwalib/internal/convert"
	"github.com/robert-malhotra/go-mwalib/internal/fits"
	"github.com/robert-malhotra/go-mwalib/internal/gpubox"
)

// Defaults applied by Write to zero Config fields.
const (
	DefaultObsID         = 1101503312
	DefaultAntennas      = 3
	DefaultFineChans     = 2
	DefaultTimeSteps     = 2
	DefaultIntegrationMs = 500
	DefaultQuackMs       = 1000

	coarseWidthHz = 1_280_000
	// gpsUnixOffset converts GPS to UNIX seconds with 16 leap seconds.
	gpsUnixOffset = 315964784
	mjdUnixEpoch  = 40587
)

// DefaultChannels is the receiver channel plan used when Config.Channels is
// empty.
var DefaultChannels = []int{109, 110}

// ErrConfig is returned for configurations no correlator could produce.
var ErrConfig = errors.New("invalid simulation config")

// Config describes the observation to write.
type Config struct {
	Dir           string
	ObsID         int
	Version       gpubox.Version
	Antennas      int
	FineChans     int   // fine channels per coarse channel
	Channels      []int // receiver channels in the metafits plan
	DataChannels  []int // receiver channels given data files; nil means all
	TimeSteps     int
	Coverage      map[int]int // timesteps written per receiver channel, overriding TimeSteps
	BatchSteps    int         // timesteps per batch file; 0 writes one batch
	IntegrationMs int64
	QuackMs       int64
	Bitpix        int  // -32 or 32
	NumericLength bool // write physical cable lengths instead of EL_ values

	// EditMetafits, when set, may change the metafits primary header
	// before it is written.
	EditMetafits func(*fits.Header)
}

func (c Config) withDefaults() Config {
	if c.ObsID == 0 {
		c.ObsID = DefaultObsID
	}
	if c.Version == 0 {
		c.Version = gpubox.MWAX
	}
	if c.Antennas == 0 {
		c.Antennas = DefaultAntennas
	}
	if c.FineChans == 0 {
		c.FineChans = DefaultFineChans
	}
	if len(c.Channels) == 0 {
		c.Channels = DefaultChannels
	}
	if c.DataChannels == nil {
		c.DataChannels = c.Channels
	}
	if c.TimeSteps == 0 {
		c.TimeSteps = DefaultTimeSteps
	}
	if c.IntegrationMs == 0 {
		c.IntegrationMs = DefaultIntegrationMs
	}
	if c.QuackMs == 0 {
		c.QuackMs = DefaultQuackMs
	}
	if c.Bitpix == 0 {
		c.Bitpix = -32
	}
	return c
}

func (c Config) validate() error {
	switch {
	case c.Antennas < 1:
		return fmt.Errorf("%w: %d antennas", ErrConfig, c.Antennas)
	case c.FineChans < 1 || coarseWidthHz%c.FineChans != 0:
		return fmt.Errorf("%w: %d fine channels do not divide %d Hz", ErrConfig, c.FineChans, coarseWidthHz)
	case c.Bitpix != -32 && c.Bitpix != 32:
		return fmt.Errorf("%w: BITPIX %d", ErrConfig, c.Bitpix)
	case c.Version == gpubox.OldLegacy && c.BatchSteps > 0:
		return fmt.Errorf("%w: OldLegacy files have no batches", ErrConfig)
	}
	for _, rec := range c.DataChannels {
		if !slices.Contains(c.Channels, rec) {
			return fmt.Errorf("%w: data channel %d is not in the plan %v", ErrConfig, rec, c.Channels)
		}
	}
	return nil
}

// Observation lists the files Write produced.
type Observation struct {
	Metafits    string
	DataFiles   []string
	StartUnixMs int64 // first timestep of every data file
}

// Write writes the metafits file and data files described by cfg into
// cfg.Dir.
func Write(cfg Config) (*Observation, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	startUnix := int64(cfg.ObsID) + gpsUnixOffset
	obs := &Observation{
		Metafits:    filepath.Join(cfg.Dir, fmt.Sprintf("%d.metafits", cfg.ObsID)),
		StartUnixMs: startUnix * 1000,
	}
	if err := writeMetafits(obs.Metafits, cfg, startUnix); err != nil {
		return nil, err
	}

	slots := convert.SlotsFromInputs(xInputs(cfg.Antennas))
	lm, err := convert.NewLegacyMap(slots)
	if err != nil {
		return nil, err
	}
	dateTime := time.Unix(startUnix, 0).UTC().Format("20060102150405")
	for _, rec := range cfg.DataChannels {
		id, _ := gpubox.ChannelID(cfg.Version, cfg.Channels, rec)
		n := cfg.TimeSteps
		if v, ok := cfg.Coverage[rec]; ok {
			n = v
		}
		per := cfg.BatchSteps
		if per <= 0 {
			per = n
		}
		for batch, first := 0, 0; first < n; batch, first = batch+1, first+per {
			name := gpubox.FileName{
				Version:  cfg.Version,
				ObsID:    cfg.ObsID,
				DateTime: dateTime,
				Channel:  id,
				Batch:    batch,
			}
			path := filepath.Join(cfg.Dir, name.Name())
			steps := min(per, n-first)
			if err := writeDataFile(path, cfg, rec, first, steps, obs.StartUnixMs, lm); err != nil {
				return nil, err
			}
			obs.DataFiles = append(obs.DataFiles, path)
		}
	}
	return obs, nil
}

// xInputs returns the correlator input number of each antenna's X input.
// Inputs run in reverse antenna order so legacy slots differ from antenna
// indices.
func xInputs(antennas int) []int {
	out := make([]int, antennas)
	for a := range out {
		out[a] = 2 * (antennas - 1 - a)
	}
	return out
}

func joinInts(v []int) string {
	s := make([]string, len(v))
	for i, n := range v {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, ",")
}

func writeMetafits(path string, cfg Config, startUnix int64) error {
	durationMs := int64(cfg.TimeSteps) * cfg.IntegrationMs
	sorted := slices.Sorted(slices.Values(cfg.Channels))
	centre := float64(sorted[len(sorted)/2]) * coarseWidthHz / 1e6

	delays := make([]int, 16)
	for i := range delays {
		delays[i] = i % 4
	}

	h := fits.NewHeader()
	h.Set("GPSTIME", cfg.ObsID, "[s] GPS time of observation start")
	h.Set("EXPOSURE", int64(math.Ceil(float64(durationMs)/1000)), "[s] duration of observation")
	h.Set("FILENAME", "simulated", "name of observation")
	h.Set("MJD", float64(startUnix)/86400+mjdUnixEpoch, "[days] MJD of observation")
	h.Set("DATE-OBS", time.Unix(startUnix, 0).UTC().Format("2006-01-02T15:04:05"), "[UT] date of observation")
	h.Set("LST", 58.2, "[deg] local sidereal time")
	h.Set("HA", "-00:00:00.00", "hour angle of pointing centre")
	h.Set("GRIDNAME", "sweet", "")
	h.Set("GRIDNUM", 0, "")
	h.Set("CREATOR", "simulate", "")
	h.Set("PROJECT", "C001", "")
	h.Set("MODE", "HW_LFILES", "")
	h.Set("RA", 60.0, "[deg] RA of pointing centre")
	h.Set("DEC", -27.0, "[deg] Dec of pointing centre")
	h.Set("RAPHASE", 64.5, "[deg] RA of desired phase centre")
	h.Set("DECPHASE", -26.5, "[deg] Dec of desired phase centre")
	h.Set("AZIMUTH", 0.0, "[deg] azimuth of pointing centre")
	h.Set("ALTITUDE", 90.0, "[deg] altitude of pointing centre")
	h.Set("SUN-ALT", -31.5, "")
	h.Set("SUN-DIST", 117.3, "")
	h.Set("MOONDIST", 62.1, "")
	h.Set("JUP-DIST", 98.9, "")
	h.Set("NINPUTS", 2*cfg.Antennas, "number of RF inputs")
	h.Set("RECVRS", "1,2", "receivers used")
	h.Set("DELAYS", joinInts(delays), "beamformer delays")
	h.Set("ATTEN_DB", 1.0, "[dB] global analogue attenuation")
	h.Set("CHANNELS", joinInts(cfg.Channels), "coarse channels")
	h.Set("FREQCENT", centre, "[MHz] centre frequency")
	h.Set("BANDWDTH", float64(len(cfg.Channels))*coarseWidthHz/1e6, "[MHz] total bandwidth")
	h.Set("FINECHAN", float64(coarseWidthHz/cfg.FineChans)/1000, "[kHz] fine channel width")
	h.Set("INTTIME", float64(cfg.IntegrationMs)/1000, "[s] integration time")
	h.Set("QUACKTIM", float64(cfg.QuackMs)/1000, "[s] seconds of bad data after start")
	h.Set("GOODTIME", float64(startUnix)+float64(cfg.QuackMs)/1000, "UNIX time of first good data")
	h.AddComment(fmt.Sprintf("synthetic %s observation", cfg.Version))
	if cfg.EditMetafits != nil {
		cfg.EditMetafits(h)
	}

	w, err := fits.Create(path)
	if err != nil {
		return err
	}
	if err := w.WritePrimary(h); err != nil {
		w.Close()
		return err
	}
	th := fits.NewHeader()
	th.Set("EXTNAME", "TILEDATA", "")
	if err := w.WriteTable(th, tileData(cfg)); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// tileData returns the TILEDATA columns, one row per RF input in input
// order.
func tileData(cfg Config) []fits.TableColumn {
	n := 2 * cfg.Antennas
	input, antenna, tile := make([]int16, n), make([]int16, n), make([]int16, n)
	rx, slot, flag := make([]int16, n), make([]int16, n), make([]int16, n)
	tileName, pol, length := make([]string, n), make([]string, n), make([]string, n)
	north, east, height := make([]float32, n), make([]float32, n), make([]float32, n)
	xs := xInputs(cfg.Antennas)
	for a, x := range xs {
		for p, name := range []string{"X", "Y"} {
			row := x + p
			input[row] = int16(x + p)
			antenna[row] = int16(a)
			tile[row] = int16(1000 + a)
			tileName[row] = fmt.Sprintf("Tile%03d", a)
			pol[row] = name
			rx[row] = int16(1 + a/8)
			slot[row] = int16(1 + a%8)
			if a == cfg.Antennas-1 && cfg.Antennas > 1 {
				flag[row] = 1
			}
			metres := 100 + float64(a)
			if cfg.NumericLength {
				length[row] = strconv.FormatFloat(metres, 'f', 2, 64)
			} else {
				length[row] = "EL_" + strconv.FormatFloat(metres, 'f', 2, 64)
			}
			north[row] = float32(10 * a)
			east[row] = float32(-5 * a)
			height[row] = 377
		}
	}
	return []fits.TableColumn{
		{Name: "Input", Format: "I", Values: input},
		{Name: "Antenna", Format: "I", Values: antenna},
		{Name: "Tile", Format: "I", Values: tile},
		{Name: "TileName", Format: "8A", Values: tileName},
		{Name: "Pol", Format: "1A", Values: pol},
		{Name: "Rx", Format: "I", Values: rx},
		{Name: "Slot", Format: "I", Values: slot},
		{Name: "Flag", Format: "I", Values: flag},
		{Name: "Length", Format: "14A", Values: length},
		{Name: "North", Format: "E", Unit: "m", Values: north},
		{Name: "East", Format: "E", Unit: "m", Values: east},
		{Name: "Height", Format: "E", Unit: "m", Values: height},
	}
}

func writeDataFile(path string, cfg Config, rec, first, steps int, startUnixMs int64, lm *convert.LegacyMap) error {
	d := convert.Dims{Baselines: cfg.Antennas * (cfg.Antennas + 1) / 2, FineChans: cfg.FineChans}
	fileStart := startUnixMs + int64(first)*cfg.IntegrationMs

	h := fits.NewHeader()
	h.Set("TIME", fileStart/1000, "[s] UNIX time of first timestep")
	h.Set("MILLITIM", fileStart%1000, "[ms] milliseconds past TIME")
	h.Set("OBSID", cfg.ObsID, "")
	if cfg.Version == gpubox.MWAX {
		h.Set("CORR_VER", 2, "MWAX correlator")
	}

	w, err := fits.Create(path)
	if err != nil {
		return err
	}
	if err := w.WritePrimary(h); err != nil {
		w.Close()
		return err
	}

	axes := []int{d.FineChans * convert.Pols * 2, d.Baselines}
	if cfg.Version != gpubox.MWAX {
		axes = []int{d.Baselines * convert.Pols * 2, d.FineChans}
	}
	disk := make([]float32, d.Len())
	for t := first; t < first+steps; t++ {
		block := Block(t, rec, d)
		if cfg.Version == gpubox.MWAX {
			err = convert.ToMWAX(block, disk, d)
		} else {
			err = convert.ToLegacy(block, disk, d, lm)
		}
		if err == nil {
			err = writeImage(w, cfg.Bitpix, axes, disk)
		}
		if err != nil {
			w.Close()
			return fmt.Errorf("%s timestep %d: %w", path, t, err)
		}
	}
	return w.Close()
}

// int32Scale is the BSCALE of BITPIX 32 images. Stored values are twice the
// physical ones.
const int32Scale = 0.5

func writeImage(w *fits.Writer, bitpix int, axes []int, data []float32) error {
	if bitpix == -32 {
		return w.WriteImage(fits.NewHeader(), axes, data)
	}
	h := fits.NewHeader()
	h.Set("BSCALE", int32Scale, "")
	h.Set("BZERO", 0.0, "")
	raw := make([]int32, len(data))
	for i, v := range data {
		raw[i] = int32(v / int32Scale)
	}
	return w.WriteImageInt32(h, axes, raw)
}

// Value is the visibility component Write stores for timestep t, receiver
// channel rec, canonical baseline b, fine channel f, polarisation p and
// component ri (0 real, 1 imaginary). Values are integers below 2^21 in
// magnitude, exact in float32.
func Value(t, rec, b, f, p, ri int) float32 {
	h := ((((t*131+rec)*8191+b)*127+f)*convert.Pols+p)*2 + ri
	return float32(h%(1<<22)) - (1 << 21)
}

// Block returns timestep t of receiver channel rec in canonical
// BaselineMajor order.
func Block(t, rec int, d convert.Dims) []float32 {
	out := make([]float32, 0, d.Len())
	for b := 0; b < d.Baselines; b++ {
		for f := 0; f < d.FineChans; f++ {
			for p := 0; p < convert.Pols; p++ {
				out = append(out, Value(t, rec, b, f, p, 0), Value(t, rec, b, f, p, 1))
			}
		}
	}
	return out
}
