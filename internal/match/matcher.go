package match

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/remedystack/remedy-engine/internal/models"
)

// placeholders maps template tokens to their capture expressions. Compile
// substitutes them in this order, so an earlier token never corrupts a later
// one.
var placeholders = []struct {
	token   string
	capture string
}{
	{"{service}", `([\w_-]+)`},
	{"{value}", `(\d+\.?\d*)`},
	{"{code}", `(\d+)`},
	{"{txid}", `(tx-\d+)`},
	{"{target}", `([\w_-]+)`},
	{"{resource}", `(/[\w/]+)`},
	{"{table}", `([\w_-]+)`},
	{"{id}", `(\d+)`},
	{"{query}", `(SELECT [^)]+)`},
}

// bindOrder is the precedence used when assigning captured values back into
// a remediation template. {service} is special-cased to the first capture;
// every other capture claims the first token type still present.
var bindOrder = []string{
	"{value}", "{code}", "{txid}", "{target}", "{resource}", "{table}", "{id}", "{query}",
}

// Compile turns an issue template into a regular expression. Literal text is
// quoted and each placeholder becomes a capture group, so the result matches
// anywhere inside a message.
func Compile(template string) (*regexp.Regexp, error) {
	expr := regexp.QuoteMeta(template)
	for _, ph := range placeholders {
		expr = strings.ReplaceAll(expr, regexp.QuoteMeta(ph.token), ph.capture)
	}
	return regexp.Compile(expr)
}

// Match is a successful pattern lookup: the winning pattern and its
// remediation command with all placeholders bound to values from the
// message.
type Match struct {
	Pattern models.Pattern
	Command string
}

// Matcher selects the best remediation for an incident message. It keeps a
// cache of compiled templates keyed by template text; patterns are
// append-only so entries never go stale.
type Matcher struct {
	logger *slog.Logger

	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
}

// NewMatcher constructs a Matcher.
func NewMatcher(logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		logger:   logger,
		compiled: make(map[string]*regexp.Regexp),
	}
}

func (m *Matcher) compile(template string) (*regexp.Regexp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if re, ok := m.compiled[template]; ok {
		return re, nil
	}
	re, err := Compile(template)
	if err != nil {
		return nil, err
	}
	m.compiled[template] = re
	return re, nil
}

// FindBest scans every pattern against the message and returns the match
// with the longest issue template, or nil when nothing matches. Equal-length
// candidates keep the earliest pattern, so established patterns are stable
// under later additions. Templates that fail to compile are skipped and
// logged rather than aborting the scan.
func (m *Matcher) FindBest(patterns []models.Pattern, message string) *Match {
	var (
		best      *Match
		bestScore int
	)
	for _, p := range patterns {
		re, err := m.compile(p.IssuePattern)
		if err != nil {
			m.logger.Warn("skipping malformed issue template",
				slog.String("template", p.IssuePattern),
				slog.Any("error", err))
			continue
		}
		groups := re.FindStringSubmatch(message)
		if groups == nil {
			continue
		}
		score := len(p.IssuePattern)
		if score > bestScore {
			bestScore = score
			best = &Match{
				Pattern: p,
				Command: bindCommand(p.RemediationTemplate, groups[1:]),
			}
		}
	}
	return best
}

// bindCommand substitutes captured values into a remediation template. The
// first capture fills every {service} occurrence. Then each capture, in
// order, fills all occurrences of the first bindOrder token still present in
// the template. Unmatched tokens are left verbatim.
func bindCommand(template string, captures []string) string {
	out := template
	if len(captures) > 0 && strings.Contains(out, "{service}") {
		out = strings.ReplaceAll(out, "{service}", captures[0])
	}
	for _, capture := range captures {
		for _, token := range bindOrder {
			if strings.Contains(out, token) {
				out = strings.ReplaceAll(out, token, capture)
				break
			}
		}
	}
	return out
}
