package htmlnorm

import (
	"bytes"
	"regexp"
	"strings"
	"time"

	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/pkg/failure"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// allowedAttrs is the semantically significant attribute allowlist.
// Everything else (style, onclick, tracking data-* excluded below by
// name, inline event handlers, presentational width/height, ...) is
// dropped during normalization.
var allowedAttrs = map[string]bool{
	"href":  true,
	"id":    true,
	"class": true,
}

// strippedTags are removed along with their entire subtree: script and
// style never carry content relevant to a calendar listing, and noscript
// duplicates content that is already rendered elsewhere in the page.
var strippedTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
}

// whitespaceRun collapses runs of spaces/tabs but deliberately leaves
// newlines alone: date ranges and distance lists on AERC pages are
// frequently separated only by a line break in the source markup.
var whitespaceRun = regexp.MustCompile(`[ \t]+`)

type HTMLNormalizer struct {
	metadataSink metadata.MetadataSink
}

func NewHTMLNormalizer(metadataSink metadata.MetadataSink) HTMLNormalizer {
	return HTMLNormalizer{metadataSink: metadataSink}
}

// Normalize implements Normalizer. It is a pure function of rawHTML:
// given the same bytes it always produces the same Result.
func (n *HTMLNormalizer) Normalize(rawHTML []byte) (Result, failure.ClassifiedError) {
	result, err := normalize(rawHTML)
	if err != nil {
		n.metadataSink.RecordError(
			time.Now(),
			"htmlnorm",
			"HTMLNormalizer.Normalize",
			mapNormalizationErrorToMetadataCause(err.Cause),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrField, string(err.Cause)),
				metadata.NewAttr(metadata.AttrMessage, err.Message),
			},
		)
		return Result{}, err
	}
	return result, nil
}

func normalize(rawHTML []byte) (Result, *NormalizationError) {
	if len(bytes.TrimSpace(rawHTML)) == 0 {
		return Result{}, &NormalizationError{
			Message:   "input is empty or whitespace-only",
			Retryable: false,
			Cause:     ErrCauseEmptyInput,
		}
	}

	doc, parseErr := html.Parse(bytes.NewReader(rawHTML))
	if parseErr != nil {
		return Result{}, &NormalizationError{
			Message:   "document could not be parsed: " + parseErr.Error(),
			Retryable: false,
			Cause:     ErrCauseUnparseableDoc,
		}
	}

	stripTrackingAndChrome(doc)
	discovered := extractURLs(doc)
	stripAttributes(doc)
	collapseWhitespace(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return Result{}, &NormalizationError{
			Message:   "normalized document could not be rendered: " + err.Error(),
			Retryable: false,
			Cause:     ErrCauseUnparseableDoc,
		}
	}

	return Result{
		HTML:           buf.String(),
		DiscoveredURLs: discovered,
	}, nil
}

// stripTrackingAndChrome removes script/style/noscript subtrees, HTML
// comments, and 1x1 tracking pixels in a single bottom-up pass so that
// nested chrome (a <script> inside a removed <div>, say) is still
// caught regardless of traversal order.
func stripTrackingAndChrome(n *html.Node) {
	var children []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		children = append(children, c)
	}
	for _, c := range children {
		stripTrackingAndChrome(c)
	}

	if n.Type == html.CommentNode {
		removeNode(n)
		return
	}
	if n.Type == html.ElementNode {
		if strippedTags[n.DataAtom] {
			removeNode(n)
			return
		}
		if n.DataAtom == atom.Img && isTrackingPixel(n) {
			removeNode(n)
			return
		}
	}
}

func isTrackingPixel(n *html.Node) bool {
	width, height := attrVal(n, "width"), attrVal(n, "height")
	return (width == "1" || width == "0") && (height == "1" || height == "0")
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func removeNode(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// extractURLs walks the (already chrome-stripped) document and returns
// every href exactly as authored, deduplicated, in DOM order. Relative
// URLs are preserved as-is; resolution against a base URL happens
// downstream in SourceParser, which has the page's own URL in hand.
func extractURLs(doc *html.Node) []string {
	seen := make(map[string]bool)
	var urls []string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			href := attrVal(n, "href")
			href = strings.TrimSpace(href)
			if href != "" && !strings.HasPrefix(href, "#") && !seen[href] {
				seen[href] = true
				urls = append(urls, href)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return urls
}

// stripAttributes drops every attribute not in allowedAttrs, except
// data-* attributes, which are preserved verbatim regardless of name.
func stripAttributes(n *html.Node) {
	if n.Type == html.ElementNode && len(n.Attr) > 0 {
		kept := n.Attr[:0]
		for _, a := range n.Attr {
			if allowedAttrs[a.Key] || strings.HasPrefix(a.Key, "data-") {
				kept = append(kept, a)
			}
		}
		n.Attr = kept
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		stripAttributes(c)
	}
}

// collapseWhitespace squeezes horizontal whitespace runs in text nodes
// to a single space but leaves newlines intact, since multi-day date
// ranges and distance lists on AERC calendar pages are often delimited
// only by a line break rather than explicit markup.
func collapseWhitespace(n *html.Node) {
	if n.Type == html.TextNode {
		n.Data = whitespaceRun.ReplaceAllString(n.Data, " ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collapseWhitespace(c)
	}
}
