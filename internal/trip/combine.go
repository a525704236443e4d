package trip

import (
	"github.com/trafficroute/trafficroute/internal/eta"
	"github.com/trafficroute/trafficroute/internal/prediction"
	"github.com/trafficroute/trafficroute/internal/routing"
	"github.com/trafficroute/trafficroute/internal/severity"
)

var defaultTable = severity.DefaultTable()

// Combine derives the outcome of a route and its prediction. It has no side
// effects; equal inputs give equal outcomes. A nil table uses the default
// severity table. Inexact levels always classify as unknown.
func Combine(route *routing.Result, p prediction.Prediction, table *severity.Table, f eta.Formatter) Outcome {
	if table == nil {
		table = defaultTable
	}
	info := table.Classify(p.Level)
	if p.Inexact {
		info = table.Unknown()
	}

	adjusted := eta.Adjust(route.BaseDurationSeconds, info.Multiplier)
	return Outcome{
		Level:                   p.Level,
		ReportedLevel:           p.ReportedLevel(),
		Severity:                info,
		AdjustedDurationSeconds: adjusted,
		FormattedDuration:       f.Format(adjusted),
		DistanceText:            route.DistanceText,
	}
}
