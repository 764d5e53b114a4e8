package mwalib

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/robert-malhotra/go-mwalib/internal/convert"
	"github.com/robert-malhotra/go-mwalib/internal/fits"
	"github.com/robert-malhotra/go-mwalib/internal/logging"
)

// MWA array location and cable constants.
const (
	MWALatitudeDegrees  = -(26 + 42.0/60 + 11.94986/3600)
	MWALongitudeDegrees = 116 + 40.0/60 + 14.93485/3600
	MWAAltitudeMetres   = 377.827

	MWALatitudeRadians  = MWALatitudeDegrees * math.Pi / 180
	MWALongitudeRadians = MWALongitudeDegrees * math.Pi / 180

	// CoaxVelocityFactor converts physical cable length to electrical
	// length.
	CoaxVelocityFactor = 1.204

	// NumAntennaPols is the number of polarisations per antenna.
	NumAntennaPols = 2
)

// dateObsLayout is the DATE-OBS format. Times are UTC.
const dateObsLayout = "2006-01-02T15:04:05"

// MetafitsMetadata holds the observation-level values of a metafits file.
// Times are integer milliseconds.
type MetafitsMetadata struct {
	Filename string
	ObsID    int

	ScheduledStartGPSMs  int64
	ScheduledEndGPSMs    int64
	ScheduledStartUnixMs int64
	ScheduledEndUnixMs   int64
	ScheduledStartUTC    time.Time
	ScheduledEndUTC      time.Time
	ScheduledStartMJD    float64
	ScheduledEndMJD      float64
	ScheduledDurationMs  int64
	QuackTimeMs          int64
	GoodTimeUnixMs       int64
	GoodTimeGPSMs        int64

	RATilePointingDeg  float64
	DecTilePointingDeg float64
	RAPhaseCentreDeg   *float64
	DecPhaseCentreDeg  *float64
	AzimuthDeg         float64
	AltitudeDeg        float64
	ZenithAngleDeg     float64
	AzimuthRad         float64
	AltitudeRad        float64
	ZenithAngleRad     float64
	SunAltitudeDeg     float64
	SunDistanceDeg     float64
	MoonDistanceDeg    float64
	JupiterDistanceDeg float64
	LSTDeg             float64
	LSTRad             float64
	HourAngle          string

	GridName        string
	GridNumber      int
	Creator         string
	ProjectID       string
	ObservationName string
	Mode            string

	Receivers           []int
	Delays              []int
	GlobalAttenuationDB float64

	IntegrationTimeMs      int64
	FineChanWidthHz        int
	FineChansPerCoarse     int
	CoarseChanWidthHz      int
	ObservationBandwidthHz int
	CentreFreqHz           int

	NumAntennas       int
	NumRFInputs       int
	NumAntennaPols    int
	NumBaselines      int
	NumVisibilityPols int
	NumCoarseChannels int
}

// MetafitsContext is the decoded metafits file. It is immutable and safe
// for concurrent use.
type MetafitsContext struct {
	MetafitsMetadata

	antennas    []Antenna
	rfInputs    []RFInput
	baselines   []Baseline
	channelPlan []int // receiver channels as listed in CHANNELS
}

// OpenMetafits reads the metafits file at path.
func OpenMetafits(path string, opts ...Option) (*MetafitsContext, error) {
	o := applyOptions(opts)
	logger := logging.Default(o.logger).With("component", "metafits")

	f, err := fits.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMetadata, err)
	}
	defer f.Close()

	m, err := decodeMetafits(path, f)
	if err != nil {
		return nil, err
	}
	logger.Info("metafits opened",
		slog.String("path", path),
		slog.Int("obsid", m.ObsID),
		slog.Int("antennas", m.NumAntennas),
		slog.Int("coarse_channels", m.NumCoarseChannels))
	return m, nil
}

func decodeMetafits(path string, f *fits.File) (*MetafitsContext, error) {
	r := &headerReader{path: path, h: f.Primary().Header}
	m := &MetafitsContext{}
	md := &m.MetafitsMetadata
	md.Filename = path

	md.ObsID = int(r.int("GPSTIME"))
	md.QuackTimeMs = secondsToMs(r.float("QUACKTIM"))
	md.GoodTimeUnixMs = secondsToMs(r.float("GOODTIME"))
	numInputs := int(r.int("NINPUTS"))
	md.CentreFreqHz = int(math.Round(r.float("FREQCENT") * 1e6))
	dateObs := r.text("DATE-OBS")
	md.ScheduledStartMJD = r.float("MJD")
	md.ScheduledDurationMs = r.int("EXPOSURE") * 1000

	md.RATilePointingDeg = r.float("RA")
	md.DecTilePointingDeg = r.float("DEC")
	md.RAPhaseCentreDeg = r.optionalFloat("RAPHASE")
	md.DecPhaseCentreDeg = r.optionalFloat("DECPHASE")
	md.AzimuthDeg = r.float("AZIMUTH")
	md.AltitudeDeg = r.float("ALTITUDE")
	md.SunAltitudeDeg = r.float("SUN-ALT")
	md.SunDistanceDeg = r.float("SUN-DIST")
	md.MoonDistanceDeg = r.float("MOONDIST")
	md.JupiterDistanceDeg = r.float("JUP-DIST")
	md.LSTDeg = r.float("LST")
	md.HourAngle = r.text("HA")
	md.GridName = r.text("GRIDNAME")
	md.GridNumber = int(r.int("GRIDNUM"))
	md.Creator = r.text("CREATOR")
	md.ProjectID = r.text("PROJECT")
	md.ObservationName = r.text("FILENAME")
	md.Mode = r.text("MODE")
	md.IntegrationTimeMs = secondsToMs(r.float("INTTIME"))
	md.Receivers = r.intList("RECVRS")
	md.Delays = r.intList("DELAYS")
	md.GlobalAttenuationDB = r.float("ATTEN_DB")
	md.ObservationBandwidthHz = int(math.Round(r.float("BANDWDTH") * 1e6))
	m.channelPlan = r.intList("CHANNELS")
	md.FineChanWidthHz = int(math.Round(r.float("FINECHAN") * 1000))
	if r.err != nil {
		return nil, r.err
	}

	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrMetadata, path, fmt.Sprintf(format, args...))
	}

	start, err := time.ParseInLocation(dateObsLayout, strings.TrimSpace(dateObs), time.UTC)
	if err != nil {
		return nil, fail("DATE-OBS %q: %v", dateObs, err)
	}
	md.ScheduledStartUTC = start
	md.ScheduledEndUTC = start.Add(time.Duration(md.ScheduledDurationMs) * time.Millisecond)
	md.ScheduledEndMJD = md.ScheduledStartMJD + float64(md.ScheduledDurationMs)/1000/86400
	md.ScheduledStartGPSMs = int64(md.ObsID) * 1000
	md.ScheduledEndGPSMs = md.ScheduledStartGPSMs + md.ScheduledDurationMs
	md.ScheduledStartUnixMs = md.GoodTimeUnixMs - md.QuackTimeMs
	md.ScheduledEndUnixMs = md.ScheduledStartUnixMs + md.ScheduledDurationMs
	md.GoodTimeGPSMs = md.ScheduledStartGPSMs + md.QuackTimeMs

	md.ZenithAngleDeg = 90 - md.AltitudeDeg
	md.AzimuthRad = toRadians(md.AzimuthDeg)
	md.AltitudeRad = toRadians(md.AltitudeDeg)
	md.ZenithAngleRad = toRadians(md.ZenithAngleDeg)
	md.LSTRad = toRadians(md.LSTDeg)

	if len(m.channelPlan) == 0 {
		return nil, fail("CHANNELS is empty")
	}
	if md.IntegrationTimeMs <= 0 {
		return nil, fail("INTTIME must be positive, got %d ms", md.IntegrationTimeMs)
	}
	if md.ObservationBandwidthHz <= 0 {
		return nil, fail("BANDWDTH must be positive, got %d Hz", md.ObservationBandwidthHz)
	}
	if md.FineChanWidthHz <= 0 {
		return nil, fail("FINECHAN must be positive, got %d Hz", md.FineChanWidthHz)
	}
	md.CoarseChanWidthHz = md.ObservationBandwidthHz / len(m.channelPlan)
	md.FineChansPerCoarse = md.CoarseChanWidthHz / md.FineChanWidthHz
	if md.FineChansPerCoarse <= 0 {
		return nil, fail("fine channel width %d Hz exceeds coarse channel width %d Hz", md.FineChanWidthHz, md.CoarseChanWidthHz)
	}
	if md.CoarseChanWidthHz%md.FineChanWidthHz != 0 {
		return nil, fail("FINECHAN %d Hz does not divide the coarse channel width %d Hz", md.FineChanWidthHz, md.CoarseChanWidthHz)
	}
	md.NumCoarseChannels = len(m.channelPlan)

	if f.NumHDUs() < 2 {
		return nil, fail("no TILEDATA table")
	}
	hdu, err := f.HDU(1)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMetadata, path, err)
	}
	tbl, err := hdu.ReadTable()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: TILEDATA: %w", ErrMetadata, path, err)
	}
	if tbl.NumRows()%2 != 0 {
		return nil, fail("TILEDATA has %d rows, expected an even number", tbl.NumRows())
	}
	if tbl.NumRows() != numInputs {
		return nil, fail("TILEDATA has %d rows but NINPUTS is %d", tbl.NumRows(), numInputs)
	}
	inputs, err := readRFInputs(tbl)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: TILEDATA: %w", ErrMetadata, path, err)
	}
	antennas, err := buildAntennas(inputs)
	if err != nil {
		return nil, fail("%v", err)
	}

	m.rfInputs = inputs
	m.antennas = antennas
	m.baselines = buildBaselines(len(antennas))
	md.NumRFInputs = len(inputs)
	md.NumAntennas = len(antennas)
	md.NumAntennaPols = NumAntennaPols
	md.NumBaselines = len(m.baselines)
	md.NumVisibilityPols = len(visibilityPols)
	return m, nil
}

func secondsToMs(s float64) int64 {
	return int64(math.Round(s * 1000))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// headerReader reads required keys, keeping the first error.
type headerReader struct {
	path string
	h    *fits.Header
	err  error
}

func (r *headerReader) fail(err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s: %w", ErrMetadata, r.path, err)
	}
}

func (r *headerReader) int(key string) int64 {
	v, err := r.h.Int(key)
	if err != nil {
		r.fail(err)
	}
	return v
}

func (r *headerReader) float(key string) float64 {
	v, err := r.h.Float(key)
	if err != nil {
		r.fail(err)
	}
	return v
}

func (r *headerReader) text(key string) string {
	v, err := r.h.Text(key)
	if err != nil {
		r.fail(err)
	}
	return v
}

func (r *headerReader) optionalFloat(key string) *float64 {
	if !r.h.Has(key) {
		return nil
	}
	v := r.float(key)
	return &v
}

// intList reads a comma separated list. Lists of one element may be stored
// as a bare integer.
func (r *headerReader) intList(key string) []int {
	c, ok := r.h.Get(key)
	if !ok {
		r.text(key)
		return nil
	}
	if n, isInt := c.Value.(int64); isInt {
		return []int{int(n)}
	}
	v, err := parseIntList(r.text(key))
	if err != nil {
		r.fail(fmt.Errorf("%s: %w", key, err))
	}
	return v
}

// Metadata returns a copy of the observation-level values.
func (m *MetafitsContext) Metadata() MetafitsMetadata {
	md := m.MetafitsMetadata
	md.Receivers = append([]int(nil), m.Receivers...)
	md.Delays = append([]int(nil), m.Delays...)
	return md
}

// Antenna returns antenna i.
func (m *MetafitsContext) Antenna(i int) (Antenna, error) {
	if i < 0 || i >= len(m.antennas) {
		return Antenna{}, fmt.Errorf("%w: antenna %d (have %d)", ErrIndexOutOfRange, i, len(m.antennas))
	}
	return m.antennas[i], nil
}

// RFInput returns RF input i, in subfile order.
func (m *MetafitsContext) RFInput(i int) (RFInput, error) {
	if i < 0 || i >= len(m.rfInputs) {
		return RFInput{}, fmt.Errorf("%w: RF input %d (have %d)", ErrIndexOutOfRange, i, len(m.rfInputs))
	}
	return m.rfInputs[i], nil
}

// Baseline returns baseline i.
func (m *MetafitsContext) Baseline(i int) (Baseline, error) {
	if i < 0 || i >= len(m.baselines) {
		return Baseline{}, fmt.Errorf("%w: baseline %d (have %d)", ErrIndexOutOfRange, i, len(m.baselines))
	}
	return m.baselines[i], nil
}

// VisibilityPol returns polarisation product i.
func (m *MetafitsContext) VisibilityPol(i int) (VisibilityPol, error) {
	if i < 0 || i >= len(visibilityPols) {
		return VisibilityPol{}, fmt.Errorf("%w: visibility pol %d (have %d)", ErrIndexOutOfRange, i, len(visibilityPols))
	}
	return visibilityPols[i], nil
}

// Antennas returns a copy of the antenna table.
func (m *MetafitsContext) Antennas() []Antenna { return append([]Antenna(nil), m.antennas...) }

// RFInputs returns a copy of the RF inputs in subfile order.
func (m *MetafitsContext) RFInputs() []RFInput { return append([]RFInput(nil), m.rfInputs...) }

// Baselines returns a copy of the baseline table.
func (m *MetafitsContext) Baselines() []Baseline { return append([]Baseline(nil), m.baselines...) }

// VisibilityPols returns the polarisation products in block order.
func (m *MetafitsContext) VisibilityPols() []VisibilityPol {
	return append([]VisibilityPol(nil), visibilityPols...)
}

// antennaSlots returns each antenna's legacy correlator slot.
func (m *MetafitsContext) antennaSlots() []int {
	inputs := make([]int, len(m.antennas))
	for i, a := range m.antennas {
		inputs[i] = m.rfInputs[a.X].Input
	}
	return convert.SlotsFromInputs(inputs)
}

func (m *MetafitsContext) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "MetafitsContext (\n")
	fmt.Fprintf(&b, "    obsid:                 %d\n", m.ObsID)
	fmt.Fprintf(&b, "    observation name:      %s\n", m.ObservationName)
	fmt.Fprintf(&b, "    project:               %s\n", m.ProjectID)
	fmt.Fprintf(&b, "    mode:                  %s\n", m.Mode)
	fmt.Fprintf(&b, "    scheduled start (UTC): %s\n", m.ScheduledStartUTC.Format(time.RFC3339))
	fmt.Fprintf(&b, "    scheduled start (GPS): %.3f\n", float64(m.ScheduledStartGPSMs)/1000)
	fmt.Fprintf(&b, "    scheduled duration:    %.3f s\n", float64(m.ScheduledDurationMs)/1000)
	fmt.Fprintf(&b, "    quack time:            %.3f s\n", float64(m.QuackTimeMs)/1000)
	fmt.Fprintf(&b, "    pointing (RA, Dec):    %.4f, %.4f deg\n", m.RATilePointingDeg, m.DecTilePointingDeg)
	fmt.Fprintf(&b, "    az, alt, za:           %.4f, %.4f, %.4f deg\n", m.AzimuthDeg, m.AltitudeDeg, m.ZenithAngleDeg)
	fmt.Fprintf(&b, "    LST:                   %.4f deg\n", m.LSTDeg)
	fmt.Fprintf(&b, "    grid:                  %s (%d)\n", m.GridName, m.GridNumber)
	fmt.Fprintf(&b, "    antennas:              %d\n", m.NumAntennas)
	fmt.Fprintf(&b, "    RF inputs:             %d\n", m.NumRFInputs)
	fmt.Fprintf(&b, "    baselines:             %d\n", m.NumBaselines)
	fmt.Fprintf(&b, "    visibility pols:       %d\n", m.NumVisibilityPols)
	fmt.Fprintf(&b, "    coarse channels:       %v\n", m.channelPlan)
	fmt.Fprintf(&b, "    centre frequency:      %.3f MHz\n", float64(m.CentreFreqHz)/1e6)
	fmt.Fprintf(&b, "    bandwidth:             %.3f MHz\n", float64(m.ObservationBandwidthHz)/1e6)
	fmt.Fprintf(&b, "    coarse channel width:  %.3f MHz\n", float64(m.CoarseChanWidthHz)/1e6)
	fmt.Fprintf(&b, "    fine channel width:    %.3f kHz\n", float64(m.FineChanWidthHz)/1e3)
	fmt.Fprintf(&b, "    fine chans per coarse: %d\n", m.FineChansPerCoarse)
	fmt.Fprintf(&b, "    integration time:      %.3f s\n", float64(m.IntegrationTimeMs)/1000)
	fmt.Fprintf(&b, "    receivers:             %v\n", m.Receivers)
	fmt.Fprintf(&b, "    delays:                %v\n", m.Delays)
	fmt.Fprintf(&b, "    attenuation:           %.2f dB\n", m.GlobalAttenuationDB)
	fmt.Fprintf(&b, "    metafits:              %s\n", m.Filename)
	b.WriteString(")")
	return b.String()
}
