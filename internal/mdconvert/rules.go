// Package mdconvert converts a normalized event-website page into
// Markdown for the DetailExtractor, and collects the page's link
// references so the enrichment worker can spot flyer candidates a
// calendar listing didn't carry.
//
// Markdown rather than stripped plain text: headings, lists, and
// tables on ride websites (ride schedules, vet-check tables, driving
// directions) carry structure the extractor grounds on, and the
// conversion is deterministic for the same input.
package mdconvert

import (
	"errors"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/pkg/failure"
)

// Converter turns a normalized HTML page into a ConversionResult.
// Implementations must be deterministic: same input, same output.
type Converter interface {
	Convert(normalizedHTML string) (ConversionResult, failure.ClassifiedError)
}

// Compile-time interface check
var _ Converter = (*PageConverter)(nil)

// PageConverter is the single production Converter: html-to-markdown/v2
// with the base, commonmark, and table plugins. No inferred structure,
// no reformatting; DOM order is preserved.
type PageConverter struct {
	metadataSink metadata.MetadataSink
}

func NewPageConverter(metadataSink metadata.MetadataSink) *PageConverter {
	return &PageConverter{
		metadataSink: metadataSink,
	}
}

func (p *PageConverter) Convert(normalizedHTML string) (ConversionResult, failure.ClassifiedError) {
	conversionResult, err := convert(normalizedHTML)
	if err != nil {
		var conversionError *ConversionError
		errors.As(err, &conversionError)

		p.metadataSink.RecordError(
			time.Now(),
			"mdconvert",
			"PageConverter.Convert",
			mapConversionErrorToMetadataCause(*conversionError),
			err.Error(),
			[]metadata.Attribute{},
		)
		return ConversionResult{}, conversionError
	}
	return conversionResult, nil
}

// convert is a stateless pure function from a normalized HTML string to
// a ConversionResult containing Markdown content and link references.
func convert(normalizedHTML string) (ConversionResult, *ConversionError) {
	doc, parseErr := html.Parse(strings.NewReader(normalizedHTML))
	if parseErr != nil {
		return ConversionResult{}, &ConversionError{
			Message:   parseErr.Error(),
			Retryable: false,
			Cause:     ErrCauseParseFailure,
		}
	}

	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)

	markdown, err := conv.ConvertNode(doc)
	if err != nil {
		return ConversionResult{}, &ConversionError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseConversionFailure,
		}
	}

	linkRefs := extractLinkRefs(doc)

	return NewConversionResult(string(markdown), linkRefs), nil
}

// extractLinkRefs walks the DOM and collects <a href> and <img src>
// references in document order.
func extractLinkRefs(htmlDoc *html.Node) []LinkRef {
	var linkRefs []LinkRef

	doc := goquery.NewDocumentFromNode(htmlDoc)

	// A single selector keeps document order across both tag kinds.
	doc.Find("a[href], img[src]").Each(func(i int, s *goquery.Selection) {
		tagName := goquery.NodeName(s)
		switch tagName {
		case "a":
			if href, exists := s.Attr("href"); exists {
				linkRefs = append(linkRefs, toLinkRef("a", href))
			}
		case "img":
			if src, exists := s.Attr("src"); exists {
				linkRefs = append(linkRefs, toLinkRef("img", src))
			}
		}
	})

	return linkRefs
}

// toLinkRef classifies a raw URL value by its tag and shape.
func toLinkRef(tagName, raw string) LinkRef {
	tagName = strings.ToLower(tagName)

	var kind LinkKind
	switch tagName {
	case "img":
		kind = KindImage
	case "a":
		if strings.HasPrefix(raw, "#") {
			kind = KindAnchor
		} else {
			kind = KindNavigation
		}
	default:
		kind = KindNavigation
	}

	return NewLinkRef(raw, kind)
}
