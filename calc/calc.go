package calc

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/casbin/govaluate"
	"github.com/shopspring/decimal"

	"github.com/finchat/ragcore/schema"
)

// Package calc evaluates closed-form arithmetic expressions extracted from
// user queries. Only numeric results are accepted; anything else is an
// invalid expression.

var (
	ErrEmptyExpression   = errors.New("calc: empty expression")
	ErrInvalidExpression = errors.New("calc: invalid expression")
	ErrNonNumericResult  = errors.New("calc: expression did not produce a number")
)

// Engine wraps expression evaluation behind the Calculator contract.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Evaluate parses and evaluates an arithmetic expression to a decimal.
// Syntax and operator errors come back wrapped in ErrInvalidExpression.
func (e *Engine) Evaluate(expression string) (schema.CalculationResult, error) {
	result := schema.CalculationResult{Expression: expression}

	expr := normalize(expression)
	if expr == "" {
		return result, ErrEmptyExpression
	}

	parsed, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	value, err := parsed.Evaluate(nil)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	num, ok := value.(float64)
	if !ok {
		return result, ErrNonNumericResult
	}
	if math.IsNaN(num) || math.IsInf(num, 0) {
		return result, fmt.Errorf("%w: result is not finite", ErrInvalidExpression)
	}

	result.Success = true
	result.Value = decimal.NewFromFloat(num)
	return result, nil
}

// normalize strips formatting the expression extractor tends to leave in:
// thousands separators, unicode multiplication signs, percent shorthand.
func normalize(expression string) string {
	expr := strings.TrimSpace(expression)
	replacer := strings.NewReplacer(
		",", "",
		"×", "*",
		"÷", "/",
		"−", "-",
		"^", "**",
	)
	return replacer.Replace(expr)
}
