package robots

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/internal/robots/cache"
)

/*
Responsibilities

- Fetch robots.txt per host
- Cache rules for crawl duration
- Enforce allow/disallow rules before enqueue

Robots checks occur before a URL enters the frontier.
*/

// ruleSetStore is the per-host ruleSet cache, held behind a pointer so
// CachedRobot itself stays a comparable value type.
type ruleSetStore struct {
	mu   sync.Mutex
	data map[string]ruleSet
}

// CachedRobot is the Robot capability: fetch-once, cache-for-the-run
// robots.txt enforcement per host, built on RobotsFetcher and the
// ruleSet matching rules in mapper.go.
type CachedRobot struct {
	metadataSink metadata.MetadataSink
	userAgent    string
	fetcher      *RobotsFetcher
	store        *ruleSetStore
}

func NewCachedRobot(metadataSink metadata.MetadataSink) CachedRobot {
	return CachedRobot{metadataSink: metadataSink}
}

// Init prepares the robot with a default, process-local robots.txt cache.
func (r *CachedRobot) Init(userAgent string) {
	r.InitWithCache(userAgent, cache.NewMemoryCache())
}

// InitWithCache prepares the robot with a caller-supplied robots.txt cache.
func (r *CachedRobot) InitWithCache(userAgent string, c cache.Cache) {
	r.userAgent = userAgent
	r.fetcher = NewRobotsFetcher(r.metadataSink, userAgent, c)
	r.store = &ruleSetStore{data: make(map[string]ruleSet)}
}

// Decide fetches (or reuses the cached) robots.txt for target's host and
// evaluates target's path against it.
func (r *CachedRobot) Decide(target url.URL) (Decision, *RobotsError) {
	rs, ok := r.lookup(target.Host)
	if !ok {
		scheme := target.Scheme
		if scheme == "" {
			scheme = "https"
		}
		result, err := r.fetcher.Fetch(context.Background(), scheme, target.Host)
		if err != nil {
			r.metadataSink.RecordError(
				time.Now(),
				"robots",
				"CachedRobot.Decide",
				mapRobotsErrorToMetadataCause(err),
				err.Error(),
				[]metadata.Attribute{metadata.NewAttr(metadata.AttrHost, target.Host)},
			)
			return Decision{}, err
		}
		rs = MapResponseToRuleSet(result.Response, r.userAgent, result.FetchedAt)
		r.store.put(target.Host, rs)
	}
	return evaluate(rs, target), nil
}

func (r *CachedRobot) lookup(host string) (ruleSet, bool) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rs, ok := r.store.data[host]
	return rs, ok
}

func (s *ruleSetStore) put(host string, rs ruleSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[host] = rs
}

// evaluate applies the standard robots.txt longest-match-wins rule,
// with Allow preferred over Disallow on exact-length ties.
func evaluate(rs ruleSet, target url.URL) Decision {
	decision := Decision{Url: target}
	if delay := rs.CrawlDelay(); delay != nil {
		decision.CrawlDelay = *delay
	}

	if !rs.hasGroups {
		decision.Allowed = true
		decision.Reason = EmptyRuleSet
		return decision
	}
	if !rs.matchedGroup {
		decision.Allowed = true
		decision.Reason = UserAgentNotMatched
		return decision
	}

	path := target.Path
	if path == "" {
		path = "/"
	}

	bestLen := -1
	bestAllow := false
	matched := false

	for _, rule := range rs.allowRules {
		if patternMatches(rule.prefix, path) {
			matched = true
			length := matchLength(rule.prefix)
			if length > bestLen || (length == bestLen && !bestAllow) {
				bestLen = length
				bestAllow = true
			}
		}
	}
	for _, rule := range rs.disallowRules {
		if patternMatches(rule.prefix, path) {
			matched = true
			length := matchLength(rule.prefix)
			if length > bestLen {
				bestLen = length
				bestAllow = false
			}
		}
	}

	if !matched {
		decision.Allowed = true
		decision.Reason = NoMatchingRules
		return decision
	}

	decision.Allowed = bestAllow
	if bestAllow {
		decision.Reason = AllowedByRobots
	} else {
		decision.Reason = DisallowedByRobots
	}
	return decision
}

func matchLength(pattern string) int {
	return len(strings.TrimSuffix(pattern, "$"))
}

// patternMatches implements the robots.txt pattern grammar: '*' matches
// any sequence (including empty), a trailing '$' anchors the match to
// the end of path, and everything else is matched literally. Absent a
// trailing '$', the pattern only needs to match a prefix of path.
func patternMatches(pattern, path string) bool {
	anchored := strings.HasSuffix(pattern, "$")
	raw := strings.TrimSuffix(pattern, "$")

	var sb strings.Builder
	sb.WriteString("^")
	for _, part := range strings.Split(raw, "*") {
		sb.WriteString(regexp.QuoteMeta(part))
		sb.WriteString(".*")
	}
	expr := strings.TrimSuffix(sb.String(), ".*")
	if anchored {
		expr += "$"
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return false
	}
	return re.MatchString(path)
}
