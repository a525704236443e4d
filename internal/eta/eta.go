// Package eta formats travel durations and applies congestion multipliers.
package eta

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
)

// Units holds the unit words of a locale.
type Units struct {
	Hours   string
	Minutes string
}

// Formatter renders durations as "H hours M minutes" in a fixed locale.
type Formatter struct {
	tag   language.Tag
	units Units
}

var (
	// English is the default formatter.
	English = Formatter{tag: language.English, units: Units{Hours: "hours", Minutes: "minutes"}}
	// Turkish uses the wording of the original route page.
	Turkish = Formatter{tag: language.Turkish, units: Units{Hours: "saat", Minutes: "dakika"}}

	supported = []Formatter{English, Turkish}
	matcher   = language.NewMatcher([]language.Tag{English.tag, Turkish.tag})
)

// NewFormatter returns the formatter best matching a BCP 47 tag such as
// "tr-TR" or "en". Unparseable or unsupported tags fall back to English.
func NewFormatter(tag string) Formatter {
	parsed, err := language.Parse(tag)
	if err != nil {
		return English
	}
	_, idx, conf := matcher.Match(parsed)
	if conf == language.No {
		return English
	}
	return supported[idx]
}

// Locale returns the locale tag of the formatter.
func (f Formatter) Locale() string {
	return f.tag.String()
}

// Format renders seconds rounded to the nearest minute.
// seconds must be non-negative and not NaN.
func (f Formatter) Format(seconds float64) string {
	hours, minutes := Split(seconds)
	if hours > 0 {
		return fmt.Sprintf("%d %s %d %s", hours, f.units.Hours, minutes, f.units.Minutes)
	}
	return fmt.Sprintf("%d %s", minutes, f.units.Minutes)
}

// Format renders seconds with the English formatter.
func Format(seconds float64) string {
	return English.Format(seconds)
}

// Split rounds seconds to the nearest minute (halves round up) and returns
// the whole hours and the remaining minutes.
func Split(seconds float64) (hours, minutes int) {
	total := int(math.Floor(seconds/60 + 0.5))
	return total / 60, total % 60
}

// Adjust scales a base duration by a congestion multiplier.
func Adjust(baseSeconds, multiplier float64) float64 {
	return baseSeconds * multiplier
}
