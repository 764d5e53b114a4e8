package mwalib

// VisibilityPol is one polarisation product of a baseline.
type VisibilityPol struct {
	Name string
}

// Products in the order they appear in every visibility block.
var visibilityPols = []VisibilityPol{{"XX"}, {"XY"}, {"YX"}, {"YY"}}
