package kpi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalFormula(t *testing.T) {
	vars := map[string]float64{
		"total_revenue":      1500,
		"total_transactions": 30,
		"failed":             5,
	}

	tests := []struct {
		name    string
		formula string
		want    float64
	}{
		{"division", "total_revenue / total_transactions", 50},
		{"precedence", "2 + 3 * 4", 14},
		{"parentheses", "(2 + 3) * 4", 20},
		{"unary minus", "-failed + 10", 5},
		{"nested", "((total_revenue - 500) / 10) * 2", 200},
		{"literal only", "42.5", 42.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evalFormula(tt.formula, vars)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEvalFormulaErrors(t *testing.T) {
	vars := map[string]float64{"a": 1}

	tests := []struct {
		name    string
		formula string
	}{
		{"unknown variable", "a + missing"},
		{"division by zero", "a / 0"},
		{"illegal character", "a ^ 2"},
		{"unmatched paren", "(a + 1"},
		{"trailing token", "a 1"},
		{"empty", "   "},
		{"dangling operator", "a +"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := evalFormula(tt.formula, vars)
			assert.Error(t, err)
		})
	}
}
