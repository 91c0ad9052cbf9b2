package aercparser

// rowSelectors lists the CSS selectors tried, in priority order, to
// find the repeating calendar-row container on a normalized AERC
// page. The candidates are AERC's own markup conventions rather than
// third-party doc-framework selectors, since a calendar listing has
// one authoring source instead of many competing frameworks.
var rowSelectors = []string{
	"[data-ride-id]",
	".ride-listing",
	".calendar-row",
}

const (
	selRideIDAttr = "data-ride-id"

	selName       = ".ride-name"
	selCanceled   = ".ride-canceled"
	selDates      = ".ride-dates"
	selLocation   = ".ride-location"

	selDistancesRow  = ".distances .distance-row"
	selDistanceLabel = ".label"
	selDistanceDate  = ".date"
	selDistanceStart = ".start-time"
	selIntroMarker   = ".intro-ride"

	selManagerName  = ".ride-manager .name"
	selManagerEmail = ".ride-manager a[href^='mailto:']"
	selManagerPhone = ".ride-manager .phone"

	selWebsiteLink = "a.ride-website"
	selFlyerLink   = "a.ride-flyer"
	selMapLink     = "a.ride-map"

	selJudgeRow  = ".control-judges .judge"
	selJudgeRole = ".role"
	selJudgeName = ".name"
)
