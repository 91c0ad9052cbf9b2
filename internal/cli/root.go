package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aerc-harvest/harvester/internal/build"
	"github.com/aerc-harvest/harvester/internal/model"
	"github.com/aerc-harvest/harvester/pkg/failure"
)

// Exit codes: 0 ok, 1 config error, 2 partial failure with degraded
// run, 3 fatal.
const (
	ExitOK          = 0
	ExitConfigError = 1
	ExitDegraded    = 2
	ExitFatal       = 3
)

// ExitCodeError carries the process exit code a subcommand wants,
// past cobra's own error handling. main.go type-asserts the error
// Execute() returns to recover Code; any other error (e.g. cobra's
// own flag-parsing failures) maps to ExitConfigError.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string { return fmt.Sprintf("exit code %d", e.Code) }

func exitErr(code int) error {
	if code == ExitOK {
		return nil
	}
	return &ExitCodeError{Code: code}
}

// ExitCodeFor recovers the intended process exit code from whatever
// Execute() returned: nil means ExitOK, an *ExitCodeError carries its
// own code, and any other error (flag parsing, unknown subcommand)
// is treated as a config error.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	if exitErr, ok := err.(*ExitCodeError); ok {
		return exitErr.Code
	}
	return ExitConfigError
}

// NewRootCmd builds the aerc-harvester operator CLI over an already
// wired App, one subcommand per independently-schedulable stage.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "aerc-harvester",
		Short:         "Scrape, geocode, and enrich AERC endurance ride events",
		Version:       build.FullVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunScrapeCmd(app))
	root.AddCommand(newEnrichGeocodeCmd(app))
	root.AddCommand(newEnrichDetailsCmd(app))
	root.AddCommand(newMigrateCmd(app))

	return root
}

func newRunScrapeCmd(app *App) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "run-scrape",
		Short: "Run one scrape pass over configured seed sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := app.RunScrape(cmd.Context(), source)
			if err != nil {
				fmt.Fprintf(os.Stderr, "run-scrape: %v\n", err)
				return exitErr(ExitFatal)
			}
			printRunReport(report)
			switch report.Outcome {
			case model.RunOutcomeOK:
				return nil
			case model.RunOutcomeDegraded, model.RunOutcomeTimedOut:
				return exitErr(ExitDegraded)
			default:
				return exitErr(ExitFatal)
			}
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "run only the named seed source (default: all configured sources)")
	return cmd
}

func newEnrichGeocodeCmd(app *App) *cobra.Command {
	var limit int
	var all bool
	cmd := &cobra.Command{
		Use:   "enrich-geocode",
		Short: "Geocode events with geocoding_attempted = false",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && limit <= 0 {
				fmt.Fprintln(os.Stderr, "enrich-geocode: one of --limit N or --all is required")
				return exitErr(ExitConfigError)
			}
			effectiveLimit := limit
			if all {
				effectiveLimit = 0
			}
			processed, derr := app.RunGeocode(cmd.Context(), effectiveLimit)
			if derr != nil {
				fmt.Fprintf(os.Stderr, "enrich-geocode: %v\n", derr)
				if derr.Severity() == failure.SeverityFatal {
					return exitErr(ExitFatal)
				}
				return exitErr(ExitDegraded)
			}
			fmt.Printf("geocoded %d events\n", processed)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of events to geocode")
	cmd.Flags().BoolVar(&all, "all", false, "geocode every eligible event, ignoring --limit")
	return cmd
}

func newEnrichDetailsCmd(app *App) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "enrich-details",
		Short: "Run detail enrichment for events eligible under the tiered re-check cadence",
		RunE: func(cmd *cobra.Command, args []string) error {
			processed, derr := app.RunDetails(cmd.Context(), limit)
			if derr != nil {
				fmt.Fprintf(os.Stderr, "enrich-details: %v\n", derr)
				if derr.Severity() == failure.SeverityFatal {
					return exitErr(ExitFatal)
				}
				return exitErr(ExitDegraded)
			}
			fmt.Printf("enriched %d events\n", processed)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of events to enrich (0 = all eligible events)")
	return cmd
}

func newMigrateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Migrate(cmd.Context()); err != nil {
				fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
				return exitErr(ExitConfigError)
			}
			fmt.Println("migration applied")
			return nil
		},
	}
}

func printRunReport(report model.RunReport) {
	fmt.Printf(
		"run %s source=%s outcome=%s fetched=%d parsed=%d inserted=%d updated=%d skipped=%d invalid=%d errors=%d\n",
		report.RunID, report.Source, report.Outcome,
		report.Counts.Fetched, report.Counts.Parsed, report.Counts.Inserted,
		report.Counts.Updated, report.Counts.Skipped, report.Counts.Invalid, len(report.Errors),
	)
}
