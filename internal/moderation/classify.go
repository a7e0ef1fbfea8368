package moderation

import (
	"regexp"
	"strings"
)

// Verdict is the outcome of ClassifyOffensive.
type Verdict int

const (
	Clean Verdict = iota
	Blocked
)

// Category says which family of checks blocked a text.
type Category string

const (
	CategoryNone      Category = ""
	CategoryProfanity Category = "profanity"
	CategorySpam      Category = "spam"
)

// Classification is the result of running the offensive/spam checks.
// Rule names the matching rule and is meant for logs, not for callers.
type Classification struct {
	Verdict  Verdict
	Category Category
	Rule     string
}

// Blocked reports whether the text should be rejected.
func (c Classification) Blocked() bool { return c.Verdict == Blocked }

// blockedWords are matched as whole words, case-insensitively.
var blockedWords = []string{
	"fuck", "shit", "ass", "bitch", "damn", "cunt", "dick", "cock", "pussy",
	"nigger", "faggot", "retard", "slut", "whore", "bastard", "asshole",
	"motherfucker", "bullshit", "piss", "crap",
}

// promoPhrases are matched anywhere in the text, case-insensitively.
var promoPhrases = []string{
	"buy now", "click here", "free money", "earn $", "bitcoin", "crypto", "viagra", "casino",
}

// minRepeatedRun is the length of a run of identical characters that counts as spam.
const minRepeatedRun = 5

var (
	blocklistPattern = buildBlocklist(blockedWords)

	urlPattern      = regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.\-]*://\S+`)
	emailPattern    = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)
	promoPattern    = buildPhrases(promoPhrases)
	digitRunPattern = regexp.MustCompile(`\d{10,}`)
)

// spamRules are evaluated in order; any single match blocks.
var spamRules = []struct {
	name  string
	match func(string) bool
}{
	{"url", urlPattern.MatchString},
	{"email", emailPattern.MatchString},
	{"repeated_chars", func(s string) bool { return hasRepeatedRun(s, minRepeatedRun) }},
	{"promo_phrase", promoPattern.MatchString},
	{"digit_run", digitRunPattern.MatchString},
}

func buildBlocklist(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

func buildPhrases(phrases []string) *regexp.Regexp {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
}

// ClassifyOffensive runs the lexical blocklist and then the spam rules.
// The first match wins.
func ClassifyOffensive(text string) Classification {
	if m := blocklistPattern.FindString(text); m != "" {
		return Classification{
			Verdict:  Blocked,
			Category: CategoryProfanity,
			Rule:     "blocklist:" + strings.ToLower(m),
		}
	}

	for _, rule := range spamRules {
		if rule.match(text) {
			return Classification{Verdict: Blocked, Category: CategorySpam, Rule: rule.name}
		}
	}

	return Classification{Verdict: Clean}
}

// hasRepeatedRun reports whether text contains n or more identical
// consecutive runes. RE2 has no back-references, so this is a scan.
func hasRepeatedRun(text string, n int) bool {
	var prev rune
	run := 0
	for _, r := range text {
		if run > 0 && r == prev {
			run++
		} else {
			prev, run = r, 1
		}
		if run >= n {
			return true
		}
	}
	return false
}
