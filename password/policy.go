package password

import (
	"crypto/subtle"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Policy is the set of structural rules a candidate password must satisfy.
type Policy struct {
	MinLength              int
	RequireUppercase       bool
	RequireLowercase       bool
	RequireNumbers         bool
	RequireSpecialChars    bool
	PreventCommonPasswords bool
	// PreventPasswordReuse is how many previous passwords are checked. Zero disables the check.
	PreventPasswordReuse int
}

// DefaultPolicy returns the policy applied when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:              8,
		RequireUppercase:       true,
		RequireLowercase:       true,
		RequireNumbers:         true,
		RequireSpecialChars:    true,
		PreventCommonPasswords: true,
		PreventPasswordReuse:   5,
	}
}

// Label is the ordinal strength bucket derived from a score.
type Label string

const (
	LabelWeak       Label = "weak"
	LabelFair       Label = "fair"
	LabelGood       Label = "good"
	LabelStrong     Label = "strong"
	LabelVeryStrong Label = "very-strong"
)

const maxScore = 4

// Feedback messages. Each failed rule contributes exactly one line.
const (
	MsgUppercase  = "Password must contain at least one uppercase letter"
	MsgLowercase  = "Password must contain at least one lowercase letter"
	MsgNumber     = "Password must contain at least one number"
	MsgSpecial    = "Password must contain at least one special character"
	MsgCommon     = "This password is too common. Please choose a more unique password"
	MsgRepeated   = "Avoid using repeated characters"
	MsgSequential = "Avoid using sequential characters"
)

// MinLengthMessage is the feedback line for a password shorter than n runes.
func MinLengthMessage(n int) string {
	return "Password must be at least " + strconv.Itoa(n) + " characters long"
}

const specialChars = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

// Strength is the result of [Validate].
type Strength struct {
	Score        int      `json:"score"`
	Label        Label    `json:"strength"`
	Feedback     []string `json:"feedback"`
	PassesPolicy bool     `json:"passesPolicy"`
}

// Percentage maps the score onto 0..100 for strength meters.
func (s Strength) Percentage() int {
	return s.Score * 100 / maxScore
}

// Validate scores password against policy. It is pure: no I/O and no
// shared state.
//
// PassesPolicy depends only on Feedback being empty. Length bonuses and the
// repeated/sequential penalties move the score without changing whether a
// password that meets every configured rule is accepted, except that the
// penalties also add feedback lines.
func Validate(password string, policy Policy) Strength {
	var (
		feedback []string
		score    int
	)

	length := utf8.RuneCountInString(password)
	if length < policy.MinLength {
		feedback = append(feedback, MinLengthMessage(policy.MinLength))
	} else {
		score++
	}

	classes := scanClasses(password)
	rules := []struct {
		required bool
		present  bool
		msg      string
	}{
		{policy.RequireUppercase, classes.upper, MsgUppercase},
		{policy.RequireLowercase, classes.lower, MsgLowercase},
		{policy.RequireNumbers, classes.digit, MsgNumber},
		{policy.RequireSpecialChars, classes.special, MsgSpecial},
	}
	for _, rule := range rules {
		if !rule.required {
			continue
		}
		if rule.present {
			score++
		} else {
			feedback = append(feedback, rule.msg)
		}
	}

	if policy.PreventCommonPasswords && IsCommon(password) {
		feedback = append(feedback, MsgCommon)
		score = max(0, score-2)
	}

	if length >= 12 {
		score++
	}
	if length >= 16 {
		score++
	}

	if hasRepeatedRun(password) {
		feedback = append(feedback, MsgRepeated)
		score = max(0, score-1)
	}
	if hasSequentialRun(password) {
		feedback = append(feedback, MsgSequential)
		score = max(0, score-1)
	}

	score = min(maxScore, score)

	return Strength{
		Score:        score,
		Label:        labelFor(score),
		Feedback:     feedback,
		PassesPolicy: len(feedback) == 0,
	}
}

// CheckReuse reports whether newPassword may be used, comparing it against
// the policy.PreventPasswordReuse most recent entries of a plaintext
// history (newest first). Production callers keep hashed history and use
// [Argon2.CheckReuse] instead.
func CheckReuse(newPassword string, history []string, policy Policy) bool {
	candidate := []byte(newPassword)
	for _, prev := range recentHistory(history, policy.PreventPasswordReuse) {
		if subtle.ConstantTimeCompare(candidate, []byte(prev)) == 1 {
			return false
		}
	}
	return true
}

func recentHistory(history []string, n int) []string {
	if n <= 0 {
		return nil
	}
	if len(history) > n {
		return history[:n]
	}
	return history
}

func labelFor(score int) Label {
	switch {
	case score >= 4:
		return LabelVeryStrong
	case score >= 3:
		return LabelStrong
	case score >= 2:
		return LabelGood
	case score >= 1:
		return LabelFair
	default:
		return LabelWeak
	}
}

type charClasses struct {
	upper, lower, digit, special bool
}

// scanClasses only counts ASCII letters and digits, so "É" satisfies
// neither the uppercase nor the lowercase rule.
func scanClasses(s string) charClasses {
	var c charClasses
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			c.upper = true
		case r >= 'a' && r <= 'z':
			c.lower = true
		case r >= '0' && r <= '9':
			c.digit = true
		case strings.ContainsRune(specialChars, r):
			c.special = true
		}
	}
	return c
}

// hasRepeatedRun reports three or more identical consecutive characters,
// excluding line breaks.
func hasRepeatedRun(s string) bool {
	var (
		prev rune = -1
		run  int
	)
	for _, r := range s {
		if r == '\n' || r == '\r' {
			prev, run = -1, 0
			continue
		}
		if r == prev {
			run++
			if run >= 3 {
				return true
			}
			continue
		}
		prev, run = r, 1
	}
	return false
}

// hasSequentialRun reports a three-character ascending run such as "abc"
// or "789", case-insensitively.
func hasSequentialRun(s string) bool {
	runes := []rune(s)
	for i := 0; i+2 < len(runes); i++ {
		a := unicode.ToLower(runes[i])
		b := unicode.ToLower(runes[i+1])
		c := unicode.ToLower(runes[i+2])
		if b != a+1 || c != b+1 {
			continue
		}
		if (a >= 'a' && c <= 'z') || (a >= '0' && c <= '9') {
			return true
		}
	}
	return false
}
