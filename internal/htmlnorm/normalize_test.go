package htmlnorm_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aerc-harvest/harvester/internal/htmlnorm"
	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMetadataSink struct {
	errors []recordedError
}

type recordedError struct {
	cause metadata.ErrorCause
}

func (m *mockMetadataSink) RecordFetch(string, int, time.Duration, string, int, int) {}
func (m *mockMetadataSink) RecordAssetFetch(string, int, time.Duration, int)         {}
func (m *mockMetadataSink) RecordError(_ time.Time, _ string, _ string, cause metadata.ErrorCause, _ string, _ []metadata.Attribute) {
	m.errors = append(m.errors, recordedError{cause: cause})
}
func (m *mockMetadataSink) RecordArtifact(metadata.ArtifactKind, string, []metadata.Attribute) {}
func (m *mockMetadataSink) RecordCacheEvent(bool, bool, bool)                                  {}
func (m *mockMetadataSink) RecordGeocodeAttempt(string, bool, time.Duration)                   {}
func (m *mockMetadataSink) RecordDetailAttempt(string, bool, time.Duration)                    {}
func (m *mockMetadataSink) RecordRunReport(string, string, metadata.CrawlStats)                {}

func TestNormalize_StripsScriptsStylesAndComments(t *testing.T) {
	sink := &mockMetadataSink{}
	n := htmlnorm.NewHTMLNormalizer(sink)

	input := `<html><body>
		<script>trackUser();</script>
		<style>.hidden{display:none}</style>
		<!-- a comment -->
		<noscript>enable js</noscript>
		<p>Ride: Old Pueblo</p>
	</body></html>`

	result, err := n.Normalize([]byte(input))

	require.NoError(t, err)
	assert.NotContains(t, result.HTML, "trackUser")
	assert.NotContains(t, result.HTML, "display:none")
	assert.NotContains(t, result.HTML, "a comment")
	assert.NotContains(t, result.HTML, "enable js")
	assert.Contains(t, result.HTML, "Old Pueblo")
}

func TestNormalize_StripsTrackingPixels(t *testing.T) {
	sink := &mockMetadataSink{}
	n := htmlnorm.NewHTMLNormalizer(sink)

	input := `<html><body>
		<img src="https://track.example.com/p.gif" width="1" height="1">
		<img src="/flyer.jpg" width="400" height="300">
	</body></html>`

	result, err := n.Normalize([]byte(input))

	require.NoError(t, err)
	assert.NotContains(t, result.HTML, "track.example.com")
	assert.Contains(t, result.HTML, "flyer.jpg")
}

func TestNormalize_PreservesAllowedAttributesOnly(t *testing.T) {
	sink := &mockMetadataSink{}
	n := htmlnorm.NewHTMLNormalizer(sink)

	input := `<div id="ride-42" class="listing" data-ride-id="42" onclick="doSomething()" style="color:red">
		<a href="/events/42">Details</a>
	</div>`

	result, err := n.Normalize([]byte(input))

	require.NoError(t, err)
	assert.Contains(t, result.HTML, `id="ride-42"`)
	assert.Contains(t, result.HTML, `class="listing"`)
	assert.Contains(t, result.HTML, `data-ride-id="42"`)
	assert.Contains(t, result.HTML, `href="/events/42"`)
	assert.NotContains(t, result.HTML, "onclick")
	assert.NotContains(t, result.HTML, "color:red")
}

func TestNormalize_CollapsesWhitespaceButKeepsLineBreaks(t *testing.T) {
	sink := &mockMetadataSink{}
	n := htmlnorm.NewHTMLNormalizer(sink)

	input := "<p>Jun   15-16,\n2024</p>"

	result, err := n.Normalize([]byte(input))

	require.NoError(t, err)
	assert.Contains(t, result.HTML, "Jun 15-16,\n2024")
}

func TestNormalize_ExtractsDiscoveredURLsInDOMOrder(t *testing.T) {
	sink := &mockMetadataSink{}
	n := htmlnorm.NewHTMLNormalizer(sink)

	input := `<div>
		<a href="/events/1">one</a>
		<a href="#skip">frag</a>
		<a href="https://example.com/flyer.pdf">flyer</a>
		<a href="/events/1">dup</a>
	</div>`

	result, err := n.Normalize([]byte(input))

	require.NoError(t, err)
	assert.Equal(t, []string{"/events/1", "https://example.com/flyer.pdf"}, result.DiscoveredURLs)
}

func TestNormalize_EmptyInputIsRejected(t *testing.T) {
	sink := &mockMetadataSink{}
	n := htmlnorm.NewHTMLNormalizer(sink)

	_, err := n.Normalize([]byte("   \n\t  "))

	require.Error(t, err)
	require.NotEmpty(t, sink.errors)
	assert.Equal(t, metadata.CauseContentInvalid, sink.errors[0].cause)
}

func TestNormalize_Deterministic(t *testing.T) {
	sink := &mockMetadataSink{}
	n := htmlnorm.NewHTMLNormalizer(sink)

	input := []byte(`<html><body><p class="x" onclick="y()">Vermont 100 - Jun 15-16, 2024</p>
		<a href="/ride/1">link</a></body></html>`)

	first, err := n.Normalize(input)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		next, err := n.Normalize(input)
		require.NoError(t, err)
		assert.Equal(t, first.HTML, next.HTML)
		assert.Equal(t, first.DiscoveredURLs, next.DiscoveredURLs)
	}
}

func TestNormalize_NestedTrackingScriptInsideContent(t *testing.T) {
	sink := &mockMetadataSink{}
	n := htmlnorm.NewHTMLNormalizer(sink)

	input := `<div class="listing"><script>inner();</script><span>Tevis Cup</span></div>`

	result, err := n.Normalize([]byte(input))

	require.NoError(t, err)
	assert.False(t, strings.Contains(result.HTML, "inner()"))
	assert.True(t, strings.Contains(result.HTML, "Tevis Cup"))
}
