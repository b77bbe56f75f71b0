package rules

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

func rule(field string, op repository.Operator, value string) *repository.FlowRule {
	return &repository.FlowRule{Field: field, Operator: op, Value: value}
}

func TestMatchesOperators(t *testing.T) {
	data := map[string]any{
		"amount":     float64(6000),
		"status":     "submitted",
		"days":       float64(3.5),
		"cost_code":  "TRV-01",
		"not_number": "abc",
	}

	tests := []struct {
		name string
		rule *repository.FlowRule
		want bool
	}{
		{"eq string match", rule("status", repository.OpEqual, "submitted"), true},
		{"eq string mismatch", rule("status", repository.OpEqual, "draft"), false},
		{"eq numeric normalizes", rule("amount", repository.OpEqual, "6000.00"), true},
		{"ne match", rule("status", repository.OpNotEqual, "draft"), true},
		{"ne mismatch", rule("status", repository.OpNotEqual, "submitted"), false},
		{"ne missing field is non-match", rule("ghost", repository.OpNotEqual, "x"), false},

		{"gt true", rule("amount", repository.OpGreater, "5000"), true},
		{"gt false on equal", rule("amount", repository.OpGreater, "6000"), false},
		{"gte true on equal", rule("amount", repository.OpGreaterEq, "6000"), true},
		{"lt true", rule("days", repository.OpLess, "4"), true},
		{"lte false", rule("amount", repository.OpLessEq, "5999"), false},
		{"numeric op non-numeric lhs", rule("not_number", repository.OpGreater, "5"), false},
		{"numeric op non-numeric rhs", rule("amount", repository.OpGreater, "high"), false},
		{"numeric op missing field", rule("ghost", repository.OpGreater, "5"), false},

		{"in string match", rule("cost_code", repository.OpIn, "TRV-01,TRV-02"), true},
		{"in trims spaces", rule("cost_code", repository.OpIn, "TRV-02, TRV-01"), true},
		{"in numeric match", rule("amount", repository.OpIn, "100, 6000.0, 9000"), true},
		{"in no match", rule("cost_code", repository.OpIn, "TRV-02,TRV-03"), false},
		{"in missing field", rule("ghost", repository.OpIn, "a,b"), false},

		{"between inside", rule("amount", repository.OpBetween, "5000,7000"), true},
		{"between lower bound", rule("amount", repository.OpBetween, "6000,7000"), true},
		{"between upper bound", rule("amount", repository.OpBetween, "5000,6000"), true},
		{"between outside", rule("amount", repository.OpBetween, "7000,9000"), false},
		{"between malformed", rule("amount", repository.OpBetween, "5000"), false},
		{"between non-numeric bound", rule("amount", repository.OpBetween, "low,high"), false},
		{"between non-numeric value", rule("not_number", repository.OpBetween, "1,10"), false},
		{"between missing field", rule("ghost", repository.OpBetween, "1,10"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.rule, data))
		})
	}
}

func TestEvaluatePolicies(t *testing.T) {
	data := map[string]any{"amount": float64(6000), "type": "travel"}

	matching := rule("amount", repository.OpGreater, "5000")
	failing := rule("type", repository.OpEqual, "petty_cash")

	tests := []struct {
		name   string
		rules  []*repository.FlowRule
		policy repository.MatchPolicy
		want   bool
	}{
		{"ALL empty is vacuously true", nil, repository.MatchAll, true},
		{"ANY empty is false", nil, repository.MatchAny, false},
		{"ALL every rule matches", []*repository.FlowRule{matching, rule("type", repository.OpEqual, "travel")}, repository.MatchAll, true},
		{"ALL one rule fails", []*repository.FlowRule{matching, failing}, repository.MatchAll, false},
		{"ANY one rule matches", []*repository.FlowRule{failing, matching}, repository.MatchAny, true},
		{"ANY none match", []*repository.FlowRule{failing}, repository.MatchAny, false},
		{"unknown policy fails closed", []*repository.FlowRule{matching}, repository.MatchPolicy("SOME"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.rules, tt.policy, data))
		})
	}
}

func TestEvaluateNoNormalizationOfFieldNames(t *testing.T) {
	// camelCase key does not satisfy a snake_case rule field.
	data := map[string]any{"totalAmount": float64(100)}
	assert.False(t, Matches(rule("total_amount", repository.OpEqual, "100"), data))
}

func TestEvaluateConcurrent(t *testing.T) {
	ruleSet := []*repository.FlowRule{
		rule("amount", repository.OpBetween, "0,10000"),
		rule("type", repository.OpIn, "travel,expense"),
	}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			data := map[string]any{"amount": float64(n), "type": "travel"}
			assert.True(t, Evaluate(ruleSet, repository.MatchAll, data), fmt.Sprintf("iteration %d", n))
		}(i)
	}
	wg.Wait()
}
