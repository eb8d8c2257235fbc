package extraction

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/serline/ruleminer/rule_type"
)

const (
	minRuleTextLength = 10
	minConfidence     = 0.3
	maxTags           = 8

	// Dedup keys keep the first 15 words longer than 3 characters.
	// Near-duplicates that differ only after that window slip
	// through; that is the accepted precision/performance trade-off
	// of O(n) hashing over pairwise comparison.
	dedupSignificantWords = 15
	dedupMinWordLength    = 3
)

// Validate filters malformed and low-confidence candidates, normalizes
// the survivors and removes near-duplicates. Dedup keys are
// content-based, so the nondeterministic candidate order across
// concurrent batches does not change which texts survive. Idempotent:
// validating an already-validated set is a no-op.
func Validate(candidates []rule_type.RuleCandidate) []rule_type.Rule {
	rules := make([]rule_type.Rule, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))

	for _, c := range candidates {
		text := strings.TrimSpace(c.Text)
		if len(text) < minRuleTextLength || c.Confidence < minConfidence {
			continue
		}

		rule := rule_type.Rule{
			Text:       text,
			Conditions: c.Conditions,
			Domain:     c.Domain,
			Tags:       c.Tags,
			Confidence: clampConfidence(c.Confidence),
			Source:     c.Source,
		}
		if len(rule.Tags) > maxTags {
			rule.Tags = rule.Tags[:maxTags]
		}
		if rule.Source.Page < 0 {
			rule.Source.Page = 0
		}

		key := dedupHash(text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		rules = append(rules, rule)
	}

	return rules
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// dedupHash builds the normalized key (lowercase, punctuation
// stripped, significant words only) and hashes it for O(1) set
// membership.
func dedupHash(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}

	significant := make([]string, 0, dedupSignificantWords)
	for _, word := range strings.Fields(b.String()) {
		if len(word) <= dedupMinWordLength {
			continue
		}
		significant = append(significant, word)
		if len(significant) == dedupSignificantWords {
			break
		}
	}

	sum := sha256.Sum256([]byte(strings.Join(significant, " ")))
	return hex.EncodeToString(sum[:])
}
