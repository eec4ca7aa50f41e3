package rule

import "strings"

// Ruleset is an immutable snapshot of the rules applied to a scan: every
// built-in in precedence order, then the custom keywords in configured order.
type Ruleset struct {
	rules []Rule
}

// NewRuleset builds a ruleset from custom keywords. Keywords are trimmed;
// blanks and case-insensitive duplicates are dropped, keeping the first
// occurrence.
func NewRuleset(customKeywords []string) Ruleset {
	keywords := NormalizeKeywords(customKeywords)
	rules := make([]Rule, 0, len(BuiltInKinds)+len(keywords))
	for _, k := range BuiltInKinds {
		rules = append(rules, BuiltIn{Kind: k})
	}
	for _, kw := range keywords {
		rules = append(rules, Custom{Keyword: kw})
	}
	return Ruleset{rules: rules}
}

// Rules returns a copy of the ordered rule list.
func (rs Ruleset) Rules() []Rule {
	return append([]Rule(nil), rs.rules...)
}

// CustomKeywords returns the custom keywords in evaluation order.
func (rs Ruleset) CustomKeywords() []string {
	var out []string
	for _, r := range rs.rules {
		if c, ok := r.(Custom); ok {
			out = append(out, c.Keyword)
		}
	}
	return out
}

// Classify evaluates every rule against in and returns the issues in rule
// order. All matching rules contribute; none short-circuits another. A zero
// Ruleset evaluates the built-ins only.
func Classify(in Input, rs Ruleset) []string {
	rules := rs.rules
	if rules == nil {
		rules = NewRuleset(nil).rules
	}
	var issues []string
	for _, r := range rules {
		if issue, ok := r.evaluate(in); ok {
			issues = append(issues, issue)
		}
	}
	return issues
}

// NormalizeKeywords trims keywords and removes blanks and case-insensitive
// duplicates, preserving first-seen order and spelling.
func NormalizeKeywords(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, kw)
	}
	return out
}
