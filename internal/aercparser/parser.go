package aercparser

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/internal/model"
	"github.com/aerc-harvest/harvester/pkg/failure"
	"github.com/aerc-harvest/harvester/pkg/urlutil"
)

// AERCParser is the SourceParser for AERC ride-calendar pages:
// a goquery selector table driving deterministic per-row field
// extraction, since a
// calendar table has a known, stable structure rather than an unknown
// documentation layout.
type AERCParser struct {
	metadataSink metadata.MetadataSink
}

func NewAERCParser(metadataSink metadata.MetadataSink) AERCParser {
	return AERCParser{metadataSink: metadataSink}
}

func (p *AERCParser) Parse(pageURL string, normalizedHTML string, pageOrder int) (Result, failure.ClassifiedError) {
	result, err := p.parse(pageURL, normalizedHTML, pageOrder)
	if err != nil {
		p.metadataSink.RecordError(
			time.Now(),
			"aercparser",
			"AERCParser.Parse",
			mapParserErrorToMetadataCause(err.Cause),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, pageURL),
				metadata.NewAttr(metadata.AttrField, string(err.Cause)),
			},
		)
		return Result{}, err
	}
	return result, nil
}

func (p *AERCParser) parse(pageURL string, normalizedHTML string, pageOrder int) (Result, *StructuralError) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(normalizedHTML))
	if err != nil {
		return Result{}, &StructuralError{
			Message:   "normalized HTML could not be parsed: " + err.Error(),
			Retryable: false,
			Cause:     ErrCauseUnparseableDoc,
		}
	}

	rows := findRows(doc)
	if rows == nil || rows.Length() == 0 {
		return Result{}, &StructuralError{
			Message:   "no calendar-row container matched any known selector",
			Retryable: false,
			Cause:     ErrCauseNoRows,
		}
	}

	var events []model.RawEvent
	var warnings []RowWarning

	rows.Each(func(rowIndex int, row *goquery.Selection) {
		event, rowWarnings := p.parseRow(pageURL, row, pageOrder, rowIndex)
		events = append(events, event)
		warnings = append(warnings, rowWarnings...)
	})

	return Result{Events: events, Warnings: warnings}, nil
}

// findRows tries each candidate selector in priority order and
// returns the first that matches anything.
func findRows(doc *goquery.Document) *goquery.Selection {
	for _, sel := range rowSelectors {
		if found := doc.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return nil
}

func (p *AERCParser) parseRow(pageURL string, row *goquery.Selection, pageOrder, rowIndex int) (model.RawEvent, []RowWarning) {
	var warnings []RowWarning
	warn := func(field, message string) {
		warnings = append(warnings, RowWarning{RowIndex: rowIndex, Field: field, Message: message})
	}

	event := model.RawEvent{
		Source:          "aerc",
		SourcePageOrder: pageOrder,
		SourceRowOrder:  rowIndex,
		EventDetails:    map[string]any{},
	}

	// Identity: missing id does not fail the row.
	if rideID, exists := row.Attr(selRideIDAttr); exists {
		event.RideID = strings.TrimSpace(rideID)
	} else {
		warn("ride_id", "row has no "+selRideIDAttr+" attribute")
	}

	name, isCanceled := parseName(row.Find(selName).First().Text())
	event.Name = name
	event.IsCanceled = isCanceled
	if row.Find(selCanceled).Length() > 0 {
		event.IsCanceled = true
	}

	dateText := strings.TrimSpace(row.Find(selDates).First().Text())
	start, end, ok := ParseDateRange(dateText)
	if !ok {
		warn("dates", fmt.Sprintf("no recognizable date range in %q", dateText))
	} else if start.IsZero() {
		warn("dates", fmt.Sprintf("unrecognized month token in %q", dateText))
	}
	event.DateStart = start
	event.DateEnd = end
	event.DateValid = !start.IsZero()

	loc := ParseLocation(row.Find(selLocation).First().Text())
	event.Location = strings.TrimSpace(row.Find(selLocation).First().Text())
	event.City = loc.City
	event.State = loc.State
	event.Country = loc.Country

	event.Distances, event.HasIntroRide = parseDistances(row)
	event.ControlJudges = parseJudges(row)

	managerName := strings.TrimSpace(row.Find(selManagerName).First().Text())
	event.RideManager = managerName

	if email, exists := row.Find(selManagerEmail).First().Attr("href"); exists {
		email = strings.TrimPrefix(email, "mailto:")
		if isValidEmail(email) {
			event.ManagerEmail = email
		} else {
			warn("manager_email", fmt.Sprintf("malformed email %q", email))
		}
	}

	if phone := strings.TrimSpace(row.Find(selManagerPhone).First().Text()); phone != "" {
		if isValidPhone(phone) {
			event.ManagerPhone = phone
		} else {
			warn("manager_phone", fmt.Sprintf("malformed phone %q", phone))
		}
	}

	event.WebsiteURL = resolveAndCanonicalize(pageURL, row, selWebsiteLink, warn, "website_url")
	event.FlyerURL = resolveAndCanonicalize(pageURL, row, selFlyerLink, warn, "flyer_url")

	if mapHref, exists := row.Find(selMapLink).First().Attr("href"); exists && mapHref != "" {
		if lat, lng, found := ExtractMapLinkCoordinates(mapHref); found {
			event.Latitude = &lat
			event.Longitude = &lng
			event.GeocodingAttempted = true
		}
		event.MapLink = resolveAndCanonicalize(pageURL, row, selMapLink, warn, "map_link")
	}

	return event, warnings
}

func parseName(raw string) (name string, canceled bool) {
	name = strings.TrimSpace(raw)
	lower := strings.ToLower(name)
	for _, marker := range []string{"cancelled", "canceled"} {
		if strings.Contains(lower, marker) {
			canceled = true
			name = stripMarker(name, marker)
			break
		}
	}
	return strings.TrimSpace(name), canceled
}

// stripMarker removes a case-insensitive marker token (and any
// surrounding bracket/dash punctuation) from anywhere in the name.
func stripMarker(name, marker string) string {
	lower := strings.ToLower(name)
	idx := strings.Index(lower, marker)
	if idx < 0 {
		return name
	}
	before := strings.TrimRight(name[:idx], " -–—([ ")
	after := strings.TrimLeft(name[idx+len(marker):], " -–—)] ")
	if before == "" {
		return after
	}
	if after == "" {
		return before
	}
	return before + " " + after
}

func parseDistances(row *goquery.Selection) (distances []model.Distance, hasIntro bool) {
	row.Find(selDistancesRow).Each(func(_ int, d *goquery.Selection) {
		label := strings.TrimSpace(d.Find(selDistanceLabel).First().Text())
		startTime := strings.TrimSpace(d.Find(selDistanceStart).First().Text())
		dateText := strings.TrimSpace(d.Find(selDistanceDate).First().Text())

		dist := model.Distance{Label: label, StartTime: startTime}
		if start, _, ok := ParseDateRange(dateText); ok {
			dist.Date = start
		}
		distances = append(distances, dist)

		if strings.Contains(strings.ToLower(label), "intro") || d.HasClass("intro-ride") {
			hasIntro = true
		}
	})
	return distances, hasIntro
}

func parseJudges(row *goquery.Selection) []model.Judge {
	var judges []model.Judge
	row.Find(selJudgeRow).Each(func(_ int, j *goquery.Selection) {
		role := strings.TrimSpace(j.Find(selJudgeRole).First().Text())
		name := strings.TrimSpace(j.Find(selJudgeName).First().Text())
		if role == "" && name == "" {
			return
		}
		judges = append(judges, model.Judge{Role: role, Name: name})
	})
	return judges
}

// resolveAndCanonicalize resolves a selector's href against the page
// URL (handling relative links) and canonicalizes it. Invalid
// URLs are dropped with a warning; the row survives.
func resolveAndCanonicalize(pageURL string, row *goquery.Selection, selector string, warn func(field, message string), field string) string {
	href, exists := row.Find(selector).First().Attr("href")
	if !exists || strings.TrimSpace(href) == "" {
		return ""
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		warn(field, "page URL could not be parsed as a base: "+err.Error())
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		warn(field, fmt.Sprintf("invalid URL %q: %s", href, err.Error()))
		return ""
	}

	resolved := base.ResolveReference(ref)
	canonical := urlutil.Canonicalize(*resolved)
	return canonical.String()
}
