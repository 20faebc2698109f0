package validator

import (
	"regexp"
	"strings"

	"github.com/finchat/ragcore/config"
	"github.com/finchat/ragcore/schema"
)

// Rejection reasons reported by input validation.
const (
	ReasonEmpty        = "empty_input"
	ReasonTooLong      = "input_too_long"
	ReasonRepeatedRuns = "repeated_characters"
	ReasonSQLInjection = "sql_injection"
	ReasonBannedTerm   = "banned_keyword"
)

var sqlInjectionPattern = regexp.MustCompile(`(?i)(\b(select|update|delete|insert|drop|truncate|alter)\b|;|--|#)`)

// InputValidator applies the request-side rules, cheapest first. Rules run
// locally; no rule makes a network call.
type InputValidator struct {
	maxLength    int
	repeatLimit  int
	bannedLower  []string
}

func NewInputValidator(cfg *config.ValidatorConfig) *InputValidator {
	maxLength := 5000
	repeatLimit := 7
	var banned []string
	if cfg != nil {
		if cfg.MaxInputLength > 0 {
			maxLength = cfg.MaxInputLength
		}
		if cfg.RepeatedCharLimit > 0 {
			repeatLimit = cfg.RepeatedCharLimit
		}
		for _, kw := range cfg.BannedKeywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				banned = append(banned, kw)
			}
		}
	}
	return &InputValidator{
		maxLength:   maxLength,
		repeatLimit: repeatLimit,
		bannedLower: banned,
	}
}

// Validate runs the rules in order and stops at the first violation.
func (v *InputValidator) Validate(query string) schema.ValidationResult {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return schema.ValidationResult{Valid: false, Reason: ReasonEmpty}
	}
	if len([]rune(query)) > v.maxLength {
		return schema.ValidationResult{Valid: false, Reason: ReasonTooLong}
	}
	if hasRepeatedRun(query, v.repeatLimit) {
		return schema.ValidationResult{Valid: false, Reason: ReasonRepeatedRuns}
	}
	if sqlInjectionPattern.MatchString(query) {
		return schema.ValidationResult{Valid: false, Reason: ReasonSQLInjection}
	}
	lower := strings.ToLower(query)
	for _, kw := range v.bannedLower {
		if strings.Contains(lower, kw) {
			return schema.ValidationResult{Valid: false, Reason: ReasonBannedTerm}
		}
	}
	return schema.ValidationResult{Valid: true}
}

// hasRepeatedRun reports a run of limit or more identical characters.
func hasRepeatedRun(s string, limit int) bool {
	if limit <= 0 {
		return false
	}
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev {
			run++
			if run >= limit {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}
