package signals

import (
	"regexp"
	"strings"
)

// Extractor derives a normalized [0,1] value from one text fragment.
// Implementations must be safe for concurrent use.
type Extractor interface {
	// Name identifies the extractor strategy.
	Name() string

	// Extract scores a single text fragment.
	Extract(text string) float64
}

// DepthTier is one rung of the expression-depth ladder: a set of markers
// and the value awarded when any of them matches.
type DepthTier struct {
	// Label names the tier (surface, pattern, insight, identity).
	Label string

	// Value is the tier's score in [0,1].
	Value float64

	// Markers are case-insensitive regular expressions.
	Markers []string
}

// DepthLadder scores text by the deepest tier whose markers match. The
// maximum matched tier wins; tier values are never summed, so repeating a
// shallow marker cannot outrank a single deep one.
type DepthLadder struct {
	name     string
	tiers    []compiledTier
	maxValue float64
}

type compiledTier struct {
	value    float64
	patterns []*regexp.Regexp
}

// NewDepthLadder compiles a ladder. Tiers may be given in any order.
func NewDepthLadder(name string, tiers []DepthTier) (*DepthLadder, error) {
	l := &DepthLadder{name: name}
	for _, t := range tiers {
		ct := compiledTier{value: Clamp(t.Value)}
		for _, m := range t.Markers {
			re, err := regexp.Compile("(?i)" + m)
			if err != nil {
				return nil, err
			}
			ct.patterns = append(ct.patterns, re)
		}
		l.tiers = append(l.tiers, ct)
		if ct.value > l.maxValue {
			l.maxValue = ct.value
		}
	}
	return l, nil
}

// Name returns the extractor strategy name.
func (l *DepthLadder) Name() string { return l.name }

// Extract returns the highest tier value whose markers match the text.
func (l *DepthLadder) Extract(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	best := 0.0
	for _, tier := range l.tiers {
		if tier.value <= best {
			continue
		}
		for _, re := range tier.patterns {
			if re.MatchString(text) {
				best = tier.value
				break
			}
		}
		if best == l.maxValue {
			break
		}
	}
	return best
}

// DefaultExpressionTiers is the standard four-rung depth ladder for
// expression-derived signals: surface 0.2, pattern 0.5, insight 0.8,
// identity 1.0.
func DefaultExpressionTiers() []DepthTier {
	return []DepthTier{
		{
			Label: "surface",
			Value: 0.2,
			Markers: []string{
				`\bi (did|made|tried|went|ate|finished)\b`,
				`\btoday i\b`,
				`\bthis week\b`,
			},
		},
		{
			Label: "pattern",
			Value: 0.5,
			Markers: []string{
				`\bi (always|usually|often|tend to|keep)\b`,
				`\bevery (day|time|morning|evening)\b`,
				`\bwhenever i\b`,
			},
		},
		{
			Label: "insight",
			Value: 0.8,
			Markers: []string{
				`\bi (realized|realised|noticed|understand now|figured out)\b`,
				`\bbecause i\b`,
				`\bthe reason (i|why)\b`,
			},
		},
		{
			Label: "identity",
			Value: 1.0,
			Markers: []string{
				`\bi am (becoming|turning into)\b`,
				`\bi('m| am) (someone|the kind of person) who\b`,
				`\bthat('s| is) (just )?who i am\b`,
			},
		},
	}
}

// NewActiveExpressionExtractor builds the default ladder for the
// active_expression signal.
func NewActiveExpressionExtractor() *DepthLadder {
	l, err := NewDepthLadder("active_expression", DefaultExpressionTiers())
	if err != nil {
		// Default tiers compile by construction.
		panic(err)
	}
	return l
}

// NewAwarenessDepthExtractor builds the default ladder for the
// awareness_depth signal. It shares the tier values with the expression
// ladder but keys on reflective rather than narrative markers.
func NewAwarenessDepthExtractor() *DepthLadder {
	tiers := []DepthTier{
		{
			Label:   "surface",
			Value:   0.2,
			Markers: []string{`\bi feel\b`, `\bi felt\b`, `\bit was (hard|easy|fine)\b`},
		},
		{
			Label:   "pattern",
			Value:   0.5,
			Markers: []string{`\bi notice (that )?i\b`, `\bi struggle with\b`, `\bi keep (doing|falling)\b`},
		},
		{
			Label:   "insight",
			Value:   0.8,
			Markers: []string{`\bi (see|understand) why\b`, `\bit comes from\b`, `\bconnected to\b`},
		},
		{
			Label:   "identity",
			Value:   1.0,
			Markers: []string{`\bpart of who i am\b`, `\bi('m| am) no longer (the|a) person\b`},
		},
	}
	l, err := NewDepthLadder("awareness_depth", tiers)
	if err != nil {
		panic(err)
	}
	return l
}
