package extraction

import (
	"strings"
	"testing"

	"github.com/serline/ruleminer/rule_type"
)

func TestValidateFilterBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		candidate rule_type.RuleCandidate
		kept      bool
	}{
		{
			name:      "nine characters is dropped",
			candidate: rule_type.RuleCandidate{Text: "123456789", Confidence: 0.9},
			kept:      false,
		},
		{
			name:      "ten characters with threshold confidence is kept",
			candidate: rule_type.RuleCandidate{Text: "1234567890", Confidence: 0.3},
			kept:      true,
		},
		{
			name:      "confidence just below threshold is dropped",
			candidate: rule_type.RuleCandidate{Text: "A perfectly fine rule text", Confidence: 0.2999},
			kept:      false,
		},
		{
			name:      "whitespace does not count toward length",
			candidate: rule_type.RuleCandidate{Text: "   short    ", Confidence: 0.9},
			kept:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := Validate([]rule_type.RuleCandidate{tt.candidate})
			if got := len(rules) == 1; got != tt.kept {
				t.Errorf("kept = %v, want %v", got, tt.kept)
			}
		})
	}
}

func TestValidateClampsConfidence(t *testing.T) {
	rules := Validate([]rule_type.RuleCandidate{
		{Text: "Orders above the limit require managerial approval", Confidence: 1.5},
	})
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	if rules[0].Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", rules[0].Confidence)
	}

	if got := clampConfidence(-0.2); got != 0.0 {
		t.Errorf("clampConfidence(-0.2) = %v, want 0.0", got)
	}
}

func TestValidateTruncatesTags(t *testing.T) {
	tags := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	rules := Validate([]rule_type.RuleCandidate{
		{Text: "Refunds are only issued within thirty days", Confidence: 0.8, Tags: tags},
	})
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	if len(rules[0].Tags) != 8 {
		t.Errorf("tag count = %d, want 8", len(rules[0].Tags))
	}
}

func TestValidateDefaultsNegativeSourcePage(t *testing.T) {
	rules := Validate([]rule_type.RuleCandidate{
		{Text: "Invoices must be paid within sixty days", Confidence: 0.7, Source: rule_type.RuleSource{Page: -3}},
	})
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	if rules[0].Source.Page != 0 {
		t.Errorf("source page = %d, want 0", rules[0].Source.Page)
	}
}

func TestValidateDeduplicatesNearIdenticalRules(t *testing.T) {
	base := "Customers with overdue balances cannot place additional orders until payment clears"
	candidates := []rule_type.RuleCandidate{
		{Text: base, Confidence: 0.9},
		{Text: strings.ToUpper(base), Confidence: 0.8},
		{Text: base + "!!!", Confidence: 0.7},
		{Text: "A completely different rule about shipping insurance coverage", Confidence: 0.9},
	}

	rules := Validate(candidates)

	if len(rules) != 2 {
		t.Fatalf("expected 2 rules after dedup, got %d", len(rules))
	}
	// First occurrence wins.
	if rules[0].Text != base {
		t.Errorf("surviving rule = %q, want the first occurrence", rules[0].Text)
	}
}

func TestValidateIdempotent(t *testing.T) {
	candidates := []rule_type.RuleCandidate{
		{Text: "Discounts require approval above ten percent", Confidence: 0.9},
		{Text: "Discounts require approval above ten percent", Confidence: 0.6},
		{Text: "Every contract renewal must be countersigned by legal", Confidence: 0.55},
	}

	once := Validate(candidates)

	again := make([]rule_type.RuleCandidate, 0, len(once))
	for _, r := range once {
		again = append(again, rule_type.RuleCandidate{
			Text:       r.Text,
			Conditions: r.Conditions,
			Domain:     r.Domain,
			Tags:       r.Tags,
			Confidence: r.Confidence,
			Source:     r.Source,
		})
	}
	twice := Validate(again)

	if len(once) != len(twice) {
		t.Errorf("validating an already-validated set changed size: %d -> %d", len(once), len(twice))
	}
}

func TestDedupHashIgnoresTrailingWords(t *testing.T) {
	// Keys come from the first 15 significant words, so texts that
	// agree on those collide by design.
	words := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		words = append(words, "condition")
	}
	a := strings.Join(words, " ")
	b := a + " extra trailing words here"

	if dedupHash(a) != dedupHash(b) {
		t.Error("expected identical hashes for texts sharing the leading significant words")
	}
}
