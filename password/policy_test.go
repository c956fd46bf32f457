package password

import (
	"reflect"
	"testing"
)

func TestValidateAllClassesShortOfBonus(t *testing.T) {
	got := Validate("Password1!", DefaultPolicy())
	if !got.PassesPolicy || len(got.Feedback) != 0 {
		t.Fatalf("expected pass with no feedback, got %+v", got)
	}
	if got.Score != 4 || got.Label != LabelVeryStrong {
		t.Fatalf("expected capped score 4/very-strong, got %d/%s", got.Score, got.Label)
	}
}

func TestValidateRepeatedLowercase(t *testing.T) {
	got := Validate("aaaaaaaa", DefaultPolicy())
	want := []string{MsgUppercase, MsgNumber, MsgSpecial, MsgRepeated}
	if !reflect.DeepEqual(got.Feedback, want) {
		t.Fatalf("feedback mismatch:\n got  %q\n want %q", got.Feedback, want)
	}
	if got.PassesPolicy {
		t.Fatal("expected policy failure")
	}
	if got.Score != 1 || got.Label != LabelFair {
		t.Fatalf("expected 1/fair, got %d/%s", got.Score, got.Label)
	}
}

func TestValidateBelowMinLength(t *testing.T) {
	got := Validate("Ab1!", DefaultPolicy())
	if got.PassesPolicy {
		t.Fatal("expected policy failure")
	}
	if len(got.Feedback) != 1 || got.Feedback[0] != MinLengthMessage(8) {
		t.Fatalf("expected only the length message, got %q", got.Feedback)
	}
	if got.Feedback[0] != "Password must be at least 8 characters long" {
		t.Fatalf("unexpected length message %q", got.Feedback[0])
	}
}

func TestValidateEmptyPasswordFeedbackOrder(t *testing.T) {
	got := Validate("", DefaultPolicy())
	want := []string{MinLengthMessage(8), MsgUppercase, MsgLowercase, MsgNumber, MsgSpecial}
	if !reflect.DeepEqual(got.Feedback, want) {
		t.Fatalf("feedback mismatch:\n got  %q\n want %q", got.Feedback, want)
	}
	if got.Score != 0 || got.Label != LabelWeak {
		t.Fatalf("expected 0/weak, got %d/%s", got.Score, got.Label)
	}
}

func TestValidateCommonPasswordPenalty(t *testing.T) {
	got := Validate("Password123", DefaultPolicy())
	want := []string{MsgSpecial, MsgCommon, MsgSequential}
	if !reflect.DeepEqual(got.Feedback, want) {
		t.Fatalf("feedback mismatch:\n got  %q\n want %q", got.Feedback, want)
	}
	// 4 (length, upper, lower, digit) - 2 common - 1 sequential
	if got.Score != 1 {
		t.Fatalf("expected score 1, got %d", got.Score)
	}
}

func TestValidateCommonCheckDisabled(t *testing.T) {
	policy := DefaultPolicy()
	policy.PreventCommonPasswords = false
	policy.RequireSpecialChars = false
	got := Validate("Passw0rd", policy)
	if !got.PassesPolicy {
		t.Fatalf("expected pass with common check disabled, got %q", got.Feedback)
	}
}

func TestValidateLengthBonusesWithoutPassing(t *testing.T) {
	got := Validate("lowercaseonlypassword", DefaultPolicy())
	if got.PassesPolicy {
		t.Fatal("expected policy failure")
	}
	if got.Score != 4 {
		t.Fatalf("expected bonuses to lift score to 4, got %d", got.Score)
	}
}

func TestValidateLongStrongPassword(t *testing.T) {
	got := Validate("Tr0ub4dor&Horse!Zq", DefaultPolicy())
	if !got.PassesPolicy || got.Score != 4 {
		t.Fatalf("expected pass at score 4, got %+v", got)
	}
}

func TestValidateUnrequiredClassesDoNotScore(t *testing.T) {
	policy := Policy{MinLength: 8}
	got := Validate("zzqqxxpp", policy)
	if !got.PassesPolicy {
		t.Fatalf("expected pass, got %q", got.Feedback)
	}
	if got.Score != 1 || got.Label != LabelFair {
		t.Fatalf("expected only the length point, got %d/%s", got.Score, got.Label)
	}
}

func TestValidateSequentialCaseInsensitive(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"Good#XYZ9", true},
		{"Good#789a", true},
		{"Good#yz{a", false},
		{"Good#9:;a", false},
		{"Good#acegA1", false},
	}
	for _, tc := range cases {
		if got := hasSequentialRun(tc.in); got != tc.want {
			t.Fatalf("hasSequentialRun(%q)=%v want %v", tc.in, got, tc.want)
		}
	}
}

func TestValidateRepeatedRunRunes(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"aab", false},
		{"aaab", true},
		{"ééé", true},
		{"aa\naa", false},
	}
	for _, tc := range cases {
		if got := hasRepeatedRun(tc.in); got != tc.want {
			t.Fatalf("hasRepeatedRun(%q)=%v want %v", tc.in, got, tc.want)
		}
	}
}

func TestValidateCountsRunesForLength(t *testing.T) {
	policy := Policy{MinLength: 4}
	got := Validate("ñöüß", policy)
	if !got.PassesPolicy {
		t.Fatalf("expected 4 runes to satisfy MinLength 4, got %q", got.Feedback)
	}
}

func TestStrengthPercentage(t *testing.T) {
	for score, want := range map[int]int{0: 0, 1: 25, 2: 50, 3: 75, 4: 100} {
		if got := (Strength{Score: score}).Percentage(); got != want {
			t.Fatalf("Percentage(%d)=%d want %d", score, got, want)
		}
	}
}

func TestIsCommonCaseInsensitive(t *testing.T) {
	if !IsCommon("LetMeIn") {
		t.Fatal("expected case-insensitive block-list match")
	}
	if IsCommon("letmein!") {
		t.Fatal("expected exact match only")
	}
}

func TestCheckReusePlaintext(t *testing.T) {
	history := []string{"first", "second", "third"}
	policy := DefaultPolicy()
	policy.PreventPasswordReuse = 2

	if CheckReuse("second", history, policy) {
		t.Fatal("expected reuse within window to be blocked")
	}
	if !CheckReuse("third", history, policy) {
		t.Fatal("expected entry outside window to be allowed")
	}

	policy.PreventPasswordReuse = 0
	if !CheckReuse("first", history, policy) {
		t.Fatal("expected check disabled at 0")
	}
}
