package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/trafficroute/trafficroute/internal/api/models"
	"github.com/trafficroute/trafficroute/internal/trip"
)

// historyGrace bounds how long predict waits for the search to be recorded.
const historyGrace = 10 * time.Second

type predictOptions struct {
	from    string
	to      string
	at      string
	json    bool
	quiet   bool
	locale  string
	timeout time.Duration
}

func newPredictCommand(build Builder) *cobra.Command {
	opts := &predictOptions{}

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the travel time of a trip",
		Long: `Looks up the driving route between two locations and adjusts its
duration by the predicted traffic level. The departure time defaults to now.`,
		Example: `  trafficroute predict --from Kadıköy --to Beşiktaş
  trafficroute predict --from Istanbul --to Ankara --at 2026-03-09T08:30:00+03:00 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPredict(cmd, build, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.from, "from", "", "origin location")
	flags.StringVar(&opts.to, "to", "", "destination location")
	flags.StringVar(&opts.at, "at", "", "departure time (RFC 3339, default now)")
	flags.BoolVar(&opts.json, "json", false, "output the result as JSON")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "do not report progress on stderr")
	flags.StringVar(&opts.locale, "locale", "", "duration wording, e.g. en or tr")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall time limit")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func runPredict(cmd *cobra.Command, build Builder, opts *predictOptions) error {
	var at time.Time
	if opts.at != "" {
		parsed, err := time.Parse(time.RFC3339, opts.at)
		if err != nil {
			return fmt.Errorf("invalid --at %q: expected RFC 3339, e.g. 2026-03-09T08:30:00Z", opts.at)
		}
		at = parsed
	}

	orch, err := build(opts.locale)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	if !opts.quiet && !opts.json {
		unsubscribe := orch.Subscribe(progress(cmd.ErrOrStderr()))
		defer unsubscribe()
	}

	snap, runErr := orch.Submit(ctx, trip.NewQuery(opts.from, opts.to, at))

	out := cmd.OutOrStdout()
	if opts.json {
		if err := writeJSON(out, snap); err != nil {
			return err
		}
	} else {
		writeText(out, snap)
	}

	// The search is recorded in the background; give it a chance to land.
	waitCtx, waitCancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), historyGrace)
	defer waitCancel()
	_ = orch.Wait(waitCtx)

	var stageErr *trip.StageError
	if errors.As(runErr, &stageErr) {
		return errors.New(stageErr.UserMessage())
	}
	return runErr
}

// progress reports each in-flight stage once.
func progress(w io.Writer) func(trip.Snapshot) {
	return func(s trip.Snapshot) {
		switch s.State {
		case trip.StateLookingUpRoute:
			fmt.Fprintln(w, "Looking up route...")
		case trip.StatePredictingTraffic:
			fmt.Fprintln(w, "Predicting traffic...")
		}
	}
}

func writeJSON(w io.Writer, snap trip.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(models.NewTripResult(snap, false))
}

func writeText(w io.Writer, snap trip.Snapshot) {
	if q := snap.Query; q != nil {
		fmt.Fprintf(w, "Trip:      %s -> %s\n", q.Origin, q.Destination)
		fmt.Fprintf(w, "Departure: %s\n", q.Datetime.Format(time.RFC1123))
	}
	if r := snap.Route; r != nil {
		if r.Summary != "" {
			fmt.Fprintf(w, "Via:       %s\n", r.Summary)
		}
		fmt.Fprintf(w, "Distance:  %s\n", r.DistanceText)
		if r.DurationText != "" {
			fmt.Fprintf(w, "Base time: %s\n", r.DurationText)
		}
	}
	if o := snap.Outcome; o != nil {
		label := string(o.Severity.Label)
		if !o.Severity.Known() {
			label = "unknown level " + o.ReportedLevel.String()
		}
		fmt.Fprintf(w, "Traffic:   %s (%s)\n", label, o.Severity.Color)
		fmt.Fprintf(w, "ETA:       %s\n", o.FormattedDuration)
	}
}
