// Package cli implements the operator CLI on top of cobra
// (github.com/spf13/cobra): four subcommands (run-scrape,
// enrich-geocode, enrich-details, migrate) over an already-wired App.
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aerc-harvest/harvester/internal/aercparser"
	"github.com/aerc-harvest/harvester/internal/config"
	"github.com/aerc-harvest/harvester/internal/detail"
	"github.com/aerc-harvest/harvester/internal/discovery"
	"github.com/aerc-harvest/harvester/internal/eventnorm"
	"github.com/aerc-harvest/harvester/internal/fetcher"
	"github.com/aerc-harvest/harvester/internal/geocode"
	"github.com/aerc-harvest/harvester/internal/htmlnorm"
	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/internal/model"
	"github.com/aerc-harvest/harvester/internal/orchestrator"
	"github.com/aerc-harvest/harvester/internal/repository"
	"github.com/aerc-harvest/harvester/pkg/failure"
	"github.com/aerc-harvest/harvester/pkg/retry"
	"github.com/aerc-harvest/harvester/pkg/timeutil"
)

// discoveryYearsBack/Forward bound the season windows Discover()
// expands a {year}-templated seed into. Not worth surfacing as an
// operator-facing setting.
const (
	discoveryYearsBack    = 1
	discoveryYearsForward = 1
)

// App bundles every already-constructed collaborator a CLI subcommand
// needs. main.go owns assembly (config -> cache -> fetcher -> ... ->
// repository); App and its subcommands only sequence calls into them
// and translate results into process exit codes.
type App struct {
	Config        config.Config
	MetadataSink  metadata.MetadataSink
	Repo          repository.Repository
	HTMLFetcher   fetcher.Fetcher
	HTMLNorm      htmlnorm.Normalizer
	Parser        aercparser.Parser
	EventNorm     eventnorm.Normalizer
	RobotDecide   discovery.RobotAdapter
	GeocodeWorker *geocode.GeocodeWorker
	DetailWorker  *detail.Worker
	Now           func() time.Time

	// LocationTriggers is the queue boundary an outside writer pushes
	// {event_id, "location_changed"} messages into; the daemon hands
	// its receive side to GeocodeWorker.Listen.
	LocationTriggers chan geocode.LocationChangedEvent

	// MigrateFn applies schema migrations. nil when Repo isn't
	// postgres-backed (e.g. the in-memory reference repository used
	// for local/dry-run invocations), in which case the migrate
	// subcommand reports a config error.
	MigrateFn func(ctx context.Context) error
}

var errMigrateUnsupported = errors.New("migrate is only supported with a database_url-backed repository")

// RunScrape runs one ScrapeOrchestrator invocation, bounded by
// run_deadline, optionally narrowed to a single named seed source.
func (a *App) RunScrape(ctx context.Context, sourceFilter string) (model.RunReport, error) {
	seeds := a.seedSources(sourceFilter)
	if len(seeds) == 0 {
		return model.RunReport{}, fmt.Errorf("no seed source named %q configured", sourceFilter)
	}

	label := sourceFilter
	if label == "" {
		label = "all"
	}

	disc := discovery.NewAERCDiscoverer(a.MetadataSink, seeds, discoveryYearsBack, discoveryYearsForward, a.Now, a.RobotDecide)
	orch := orchestrator.NewOrchestrator(a.MetadataSink, disc, a.HTMLFetcher, a.HTMLNorm, a.Parser, a.EventNorm, a.Repo, orchestrator.Config{
		SourceLabel:   label,
		UserAgent:     a.Config.UserAgent(),
		FetchTTL:      a.Config.CacheTTLHTML(),
		FetchWorkers:  a.Config.NUpsert(),
		UpsertWorkers: a.Config.NUpsert(),
		RetryParam:    a.retryParam(),
	})

	ctx, cancel := context.WithTimeout(ctx, a.Config.RunDeadline())
	defer cancel()
	return orch.Run(ctx)
}

func (a *App) seedSources(sourceFilter string) []discovery.SeedSource {
	var out []discovery.SeedSource
	for _, s := range a.Config.SeedSources() {
		if sourceFilter != "" && s.Name != sourceFilter {
			continue
		}
		out = append(out, discovery.SeedSource{Name: s.Name, URLTemplate: s.URLTemplate})
	}
	return out
}

func (a *App) retryParam() retry.RetryParam {
	return retry.NewRetryParam(
		a.Config.BaseDelay(),
		a.Config.BaseDelay()/2,
		time.Now().UnixNano(),
		a.Config.MaxRetries(),
		timeutil.NewBackoffParam(a.Config.BaseDelay(), 2.0, 30*time.Second),
	)
}

// RunGeocode batch-geocodes up to limit events (limit <= 0 means
// unbounded/--all), bounded by run_deadline.
func (a *App) RunGeocode(ctx context.Context, limit int) (int, failure.ClassifiedError) {
	ctx, cancel := context.WithTimeout(ctx, a.Config.RunDeadline())
	defer cancel()
	return a.GeocodeWorker.RunBatch(ctx, limit)
}

// RunDetails batch-enriches up to limit events (limit <= 0 means every
// eligible event), processed in chunks of detail_batch_size, bounded by
// run_deadline.
func (a *App) RunDetails(ctx context.Context, limit int) (int, failure.ClassifiedError) {
	ctx, cancel := context.WithTimeout(ctx, a.Config.RunDeadline())
	defer cancel()
	return a.DetailWorker.RunBatch(ctx, limit)
}

// Migrate applies schema migrations via MigrateFn.
func (a *App) Migrate(ctx context.Context) error {
	if a.MigrateFn == nil {
		return errMigrateUnsupported
	}
	return a.MigrateFn(ctx)
}
