package mdconvert_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerc-harvest/harvester/internal/mdconvert"
)

const rideSitePage = `<html><body>
<h1>Fire Mountain Pioneer</h1>
<p>Three days of desert singletrack. Camp opens Thursday noon.</p>
<h2>Schedule</h2>
<table>
<tr><th>Day</th><th>Distances</th></tr>
<tr><td>Friday</td><td>25 / 50</td></tr>
<tr><td>Saturday</td><td>25 / 50 / 75</td></tr>
</table>
<p><a href="/flyers/fire-mountain-2024.pdf">Ride flyer</a>
and <a href="https://maps.google.com/?q=34.5,-116.9">camp map</a>.</p>
<p><a href="#top">Back to top</a></p>
<img src="/images/trail.jpg">
</body></html>`

func TestConvert_ProducesMarkdownStructure(t *testing.T) {
	conv := mdconvert.NewPageConverter(newMockMetadataSink())

	result, err := conv.Convert(rideSitePage)
	require.Nil(t, err)

	md := result.GetMarkdownContent()
	assert.Contains(t, md, "# Fire Mountain Pioneer")
	assert.Contains(t, md, "## Schedule")
	assert.Contains(t, md, "| Day |")
	assert.Contains(t, md, "| Saturday |")
	assert.Contains(t, md, "25 / 50 / 75")
}

func TestConvert_CollectsLinkRefsInDocumentOrder(t *testing.T) {
	conv := mdconvert.NewPageConverter(newMockMetadataSink())

	result, err := conv.Convert(rideSitePage)
	require.Nil(t, err)

	refs := result.GetLinkRefs()
	require.Len(t, refs, 4)

	assert.Equal(t, "/flyers/fire-mountain-2024.pdf", refs[0].GetRaw())
	assert.Equal(t, mdconvert.KindNavigation, refs[0].GetKind())

	assert.Equal(t, "https://maps.google.com/?q=34.5,-116.9", refs[1].GetRaw())
	assert.Equal(t, mdconvert.KindNavigation, refs[1].GetKind())

	assert.Equal(t, "#top", refs[2].GetRaw())
	assert.Equal(t, mdconvert.KindAnchor, refs[2].GetKind())

	assert.Equal(t, "/images/trail.jpg", refs[3].GetRaw())
	assert.Equal(t, mdconvert.KindImage, refs[3].GetKind())
}

func TestConvert_Deterministic(t *testing.T) {
	conv := mdconvert.NewPageConverter(newMockMetadataSink())

	first, err := conv.Convert(rideSitePage)
	require.Nil(t, err)
	second, err := conv.Convert(rideSitePage)
	require.Nil(t, err)

	assert.Equal(t, first.GetMarkdownContent(), second.GetMarkdownContent())
	assert.Equal(t, first.GetLinkRefs(), second.GetLinkRefs())
}

func TestConvert_EmptyPage_YieldsEmptyMarkdown(t *testing.T) {
	conv := mdconvert.NewPageConverter(newMockMetadataSink())

	result, err := conv.Convert("<html><body></body></html>")
	require.Nil(t, err)
	assert.Empty(t, strings.TrimSpace(result.GetMarkdownContent()))
	assert.Empty(t, result.GetLinkRefs())
}
