// Package rules evaluates flow routing rules against submitted request
// data. Evaluation is pure and fail-closed: malformed operands or missing
// fields make a rule a non-match, never an error.
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

// Evaluate applies the match policy over the ordered rule set.
// An empty rule set is vacuously true under ALL and false under ANY.
// Safe for concurrent use; no shared state.
func Evaluate(ruleSet []*repository.FlowRule, policy repository.MatchPolicy, data map[string]any) bool {
	if len(ruleSet) == 0 {
		return policy == repository.MatchAll
	}

	switch policy {
	case repository.MatchAll:
		for _, r := range ruleSet {
			if !Matches(r, data) {
				return false
			}
		}
		return true
	case repository.MatchAny:
		for _, r := range ruleSet {
			if Matches(r, data) {
				return true
			}
		}
		return false
	}
	// Unknown policy fails closed.
	return false
}

// Matches evaluates a single rule against the data dictionary. Field names
// are matched literally; no case or format normalization is applied.
func Matches(r *repository.FlowRule, data map[string]any) bool {
	raw, ok := data[r.Field]
	if !ok {
		return false
	}
	val := stringify(raw)

	switch r.Operator {
	case repository.OpEqual:
		return literalsEqual(val, r.Value)
	case repository.OpNotEqual:
		return !literalsEqual(val, r.Value)
	case repository.OpGreater, repository.OpGreaterEq, repository.OpLess, repository.OpLessEq:
		return compareNumeric(r.Operator, val, r.Value)
	case repository.OpIn:
		for _, elem := range strings.Split(r.Value, ",") {
			if literalsEqual(val, strings.TrimSpace(elem)) {
				return true
			}
		}
		return false
	case repository.OpBetween:
		parts := strings.SplitN(r.Value, ",", 2)
		if len(parts) != 2 {
			return false
		}
		lo, loErr := decimal.NewFromString(strings.TrimSpace(parts[0]))
		hi, hiErr := decimal.NewFromString(strings.TrimSpace(parts[1]))
		v, vErr := decimal.NewFromString(val)
		if loErr != nil || hiErr != nil || vErr != nil {
			return false
		}
		return v.GreaterThanOrEqual(lo) && v.LessThanOrEqual(hi)
	}
	return false
}

// literalsEqual compares numerically when both sides parse as numbers,
// falling back to exact string comparison otherwise.
func literalsEqual(a, b string) bool {
	da, errA := decimal.NewFromString(a)
	db, errB := decimal.NewFromString(b)
	if errA == nil && errB == nil {
		return da.Equal(db)
	}
	return a == b
}

// compareNumeric requires both operands to parse as numbers; anything else
// is a non-match.
func compareNumeric(op repository.Operator, a, b string) bool {
	da, errA := decimal.NewFromString(a)
	db, errB := decimal.NewFromString(b)
	if errA != nil || errB != nil {
		return false
	}
	cmp := da.Cmp(db)
	switch op {
	case repository.OpGreater:
		return cmp > 0
	case repository.OpGreaterEq:
		return cmp >= 0
	case repository.OpLess:
		return cmp < 0
	case repository.OpLessEq:
		return cmp <= 0
	}
	return false
}

// stringify renders an intake value as the literal the configured rule
// value is compared against. JSON numbers arrive as float64.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
