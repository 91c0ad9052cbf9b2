package discovery

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/pkg/failure"
)

const yearPlaceholder = "{year}"

// robotChecker is the admission capability discovery needs from
// internal/robots, expressed as a local interface so this package
// never imports a concrete robots type.
type robotChecker interface {
	Decide(target url.URL) (decideResult, *decideError)
}

// decideResult/decideError mirror robots.Decision/robots.RobotsError's
// shape structurally; Go satisfies the robotChecker interface via
// RobotAdapter below rather than direct assignment, since the two
// packages' concrete types differ.
type decideResult struct {
	Allowed bool
}
type decideError struct {
	Message string
}

func (e *decideError) Error() string { return e.Message }

// RobotAdapter closes over a *robots.CachedRobot so discovery can call
// it without importing internal/robots' Decision/RobotsError types
// directly into this package's public surface.
type RobotAdapter func(target url.URL) (allowed bool, err error)

func (f RobotAdapter) Decide(target url.URL) (decideResult, *decideError) {
	allowed, err := f(target)
	if err != nil {
		return decideResult{}, &decideError{Message: err.Error()}
	}
	return decideResult{Allowed: allowed}, nil
}

// AERCDiscoverer expands configured seed sources into a set of target
// pages, admitting each through a robots check before any of them
// is fetched.
type AERCDiscoverer struct {
	metadataSink metadata.MetadataSink
	seeds        []SeedSource
	yearsBack    int
	yearsForward int
	now          func() time.Time
	robot        robotChecker
}

// NewAERCDiscoverer builds a discoverer over seeds, expanding each
// {year}-templated seed from yearsBack years in the past through
// yearsForward years in the future, relative to now(). robot may be
// nil, in which case every discovered page is admitted unchecked.
func NewAERCDiscoverer(
	metadataSink metadata.MetadataSink,
	seeds []SeedSource,
	yearsBack, yearsForward int,
	now func() time.Time,
	robot robotChecker,
) *AERCDiscoverer {
	return &AERCDiscoverer{
		metadataSink: metadataSink,
		seeds:        seeds,
		yearsBack:    yearsBack,
		yearsForward: yearsForward,
		now:          now,
		robot:        robot,
	}
}

func (d *AERCDiscoverer) Discover() ([]TargetPage, failure.ClassifiedError) {
	if len(d.seeds) == 0 {
		err := &DiscoveryError{Message: "seed_sources is empty", Cause: ErrCauseNoSeedSources}
		d.recordError("Discover", err)
		return nil, err
	}

	var pages []TargetPage
	for _, seed := range d.seeds {
		expanded, err := d.expand(seed)
		if err != nil {
			d.recordError("Discover", err)
			return nil, err
		}
		for _, page := range expanded {
			if d.robot == nil {
				pages = append(pages, page)
				continue
			}
			decision, derr := d.robot.Decide(page.URL)
			if derr != nil {
				err := &DiscoveryError{
					Message:   derr.Error(),
					Retryable: true,
					Cause:     ErrCauseRobotsFailure,
				}
				d.metadataSink.RecordError(
					time.Now(), "discovery", "Discover",
					mapDiscoveryErrorToMetadataCause(err), err.Error(),
					[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, page.URL.String())},
				)
				continue
			}
			if !decision.Allowed {
				d.metadataSink.RecordError(
					time.Now(), "discovery", "Discover",
					metadata.CausePolicyDisallow, "page disallowed by robots",
					[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, page.URL.String())},
				)
				continue
			}
			pages = append(pages, page)
		}
	}
	return pages, nil
}

func (d *AERCDiscoverer) expand(seed SeedSource) ([]TargetPage, *DiscoveryError) {
	if !strings.Contains(seed.URLTemplate, yearPlaceholder) {
		parsed, err := url.Parse(seed.URLTemplate)
		if err != nil {
			return nil, &DiscoveryError{
				Message: err.Error(),
				Cause:   ErrCauseInvalidTemplate,
			}
		}
		return []TargetPage{{URL: *parsed, Source: seed.Name}}, nil
	}

	currentYear := d.now().Year()
	var pages []TargetPage
	for y := currentYear - d.yearsBack; y <= currentYear+d.yearsForward; y++ {
		rendered := strings.ReplaceAll(seed.URLTemplate, yearPlaceholder, strconv.Itoa(y))
		parsed, err := url.Parse(rendered)
		if err != nil {
			return nil, &DiscoveryError{
				Message: err.Error(),
				Cause:   ErrCauseInvalidTemplate,
			}
		}
		pages = append(pages, TargetPage{URL: *parsed, Source: seed.Name, Year: y})
	}
	return pages, nil
}

func (d *AERCDiscoverer) recordError(op string, err *DiscoveryError) {
	d.metadataSink.RecordError(
		time.Now(), "discovery", op,
		mapDiscoveryErrorToMetadataCause(err), err.Error(),
		nil,
	)
}
