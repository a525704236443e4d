// Package severity maps predicted traffic levels to their presentation:
// a route color, a human label and a travel-time multiplier.
package severity

// Color is the stroke color used to draw a route.
type Color string

const (
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorRed    Color = "red"
	ColorGray   Color = "gray"
)

// Valid reports whether c is one of the known route colors.
func (c Color) Valid() bool {
	switch c {
	case ColorGreen, ColorYellow, ColorRed, ColorGray:
		return true
	}
	return false
}

// Label is the human readable congestion label.
type Label string

const (
	LabelLight    Label = "Light"
	LabelModerate Label = "Moderate"
	LabelHeavy    Label = "Heavy"
	// LabelUnknown is used for levels outside the table.
	LabelUnknown Label = ""
)

// Valid reports whether l is one of the known labels, including LabelUnknown.
func (l Label) Valid() bool {
	switch l {
	case LabelLight, LabelModerate, LabelHeavy, LabelUnknown:
		return true
	}
	return false
}

// Known traffic levels returned by the prediction service.
const (
	LevelLight    = 0
	LevelModerate = 1
	LevelHeavy    = 2
)

// Info is the presentation of a single traffic level.
type Info struct {
	Color      Color   `json:"color" toml:"color"`
	Label      Label   `json:"label" toml:"label"`
	Multiplier float64 `json:"multiplier" toml:"multiplier"`
}

// Known reports whether the info describes a recognized level.
func (i Info) Known() bool {
	return i.Label != LabelUnknown
}

// Fallback is the neutral severity used for unrecognized levels.
var Fallback = Info{Color: ColorGray, Label: LabelUnknown, Multiplier: 1.0}

var defaultTable = DefaultTable()

// Classify returns the severity for level using the default table.
// It never fails: unknown levels yield Fallback.
func Classify(level int) Info {
	return defaultTable.Classify(level)
}
