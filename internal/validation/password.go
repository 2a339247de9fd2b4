package validation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Strength is an ordinal password rating.
type Strength int

const (
	StrengthWeak Strength = iota
	StrengthFair
	StrengthGood
	StrengthStrong
)

const (
	minPasswordLength  = 8
	goodPasswordLength = 12
	specialCharacters  = `!@#$%^&*()_+-=[]{};':"\|,.<>/?~` + "`"
)

// Stable messages; clients match on them.
const (
	ErrPasswordTooShort     = "Password must be at least 8 characters long"
	ErrPasswordNoUppercase  = "Password must contain at least one uppercase letter"
	ErrPasswordNoLowercase  = "Password must contain at least one lowercase letter"
	ErrPasswordNoDigit      = "Password must contain at least one number"
	SuggestLongerPassword   = "Use at least 12 characters for a stronger password"
	SuggestSpecialCharacter = "Add a special character for a stronger password"
)

func (s Strength) String() string {
	switch s {
	case StrengthWeak:
		return "weak"
	case StrengthFair:
		return "fair"
	case StrengthGood:
		return "good"
	case StrengthStrong:
		return "strong"
	default:
		return fmt.Sprintf("Strength(%d)", int(s))
	}
}

func (s Strength) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PasswordResult is the structured outcome of PasswordStrength. Errors are
// hard failures; Suggestions never affect Valid.
type PasswordResult struct {
	Valid       bool     `json:"valid"`
	Strength    Strength `json:"strength"`
	Errors      []string `json:"errors"`
	Suggestions []string `json:"suggestions"`
}

// PasswordStrength rates a candidate password. Any hard error forces the
// strength down to weak.
func PasswordStrength(password string) PasswordResult {
	res := PasswordResult{Errors: []string{}, Suggestions: []string{}}

	length := utf8.RuneCountInString(password)
	switch {
	case length < minPasswordLength:
		res.Strength = StrengthWeak
		res.Errors = append(res.Errors, ErrPasswordTooShort)
	case length < goodPasswordLength:
		res.Strength = StrengthFair
		res.Suggestions = append(res.Suggestions, SuggestLongerPassword)
	default:
		res.Strength = StrengthGood
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(specialCharacters, r):
			special = true
		}
	}
	if !upper {
		res.Errors = append(res.Errors, ErrPasswordNoUppercase)
	}
	if !lower {
		res.Errors = append(res.Errors, ErrPasswordNoLowercase)
	}
	if !digit {
		res.Errors = append(res.Errors, ErrPasswordNoDigit)
	}

	if len(res.Errors) > 0 {
		res.Strength = StrengthWeak
		return res
	}

	res.Valid = true
	if special {
		if res.Strength == StrengthGood {
			res.Strength = StrengthStrong
		}
	} else {
		res.Suggestions = append(res.Suggestions, SuggestSpecialCharacter)
	}
	return res
}
