package mwalib

import (
	"fmt"
	"time"
)

// TimeStep is one correlator integration. Both times mark its start.
type TimeStep struct {
	UnixTimeMs int64
	GPSTimeMs  int64
}

// Time returns the start of the integration in UTC.
func (t TimeStep) Time() time.Time {
	return time.UnixMilli(t.UnixTimeMs).UTC()
}

func (t TimeStep) String() string {
	return fmt.Sprintf("unix %.3f gps %.3f", float64(t.UnixTimeMs)/1000, float64(t.GPSTimeMs)/1000)
}
