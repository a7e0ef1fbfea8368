// Package moderation decides whether a candidate motto is acceptable.
//
// Everything here is pure: no network, no storage, no clock. The service layer
// calls these functions in a fixed order and turns their errors into HTTP
// responses; the functions themselves only know about text and integers.
//
// Rejections are returned as *apperror.AppError values so the caller-facing
// reason travels with the error:
//
//	if err := moderation.ValidateContent(text); err != nil {
//	    return nil, err // "Motto text is required", "Contains spam content", ...
//	}
package moderation

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/sakif/motto-wall/internal/apperror"
	"github.com/sakif/motto-wall/internal/model"
)

// MaxTextLength is the maximum motto length in Unicode code points.
const MaxTextLength = 10000

// Caller-facing reasons. These strings are part of the public contract.
const (
	MsgTextRequired          = "Motto text is required"
	MsgTextTooLong           = "Motto must be less than 10,000 characters"
	MsgNicknameTooLong       = "Nickname must be less than 10,000 characters"
	MsgInappropriate         = "Contains inappropriate language"
	MsgSpam                  = "Contains spam content"
	MsgNicknameInappropriate = "Nickname contains inappropriate language"
	MsgNicknameSpam          = "Nickname contains spam content"
	MsgCaptchaData           = "Invalid captcha data"
	MsgCaptchaQuestion       = "Invalid captcha question"
	MsgCaptchaAnswer         = "Incorrect captcha answer"
)

// ValidateContent checks a motto body: present after trimming, at most
// MaxTextLength code points, and clean according to ClassifyOffensive.
func ValidateContent(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperror.ValidationFailed("motto_text", MsgTextRequired)
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return apperror.ValidationFailed("motto_text", MsgTextTooLong)
	}

	switch c := ClassifyOffensive(text); c.Category {
	case CategoryProfanity:
		return apperror.ValidationFailed("motto_text", MsgInappropriate)
	case CategorySpam:
		return apperror.ValidationFailed("motto_text", MsgSpam)
	}
	return nil
}

// ValidateNickname applies the body rules to a nickname. A blank nickname is
// always acceptable because it is stored as "anonymous".
func ValidateNickname(nickname string) error {
	if strings.TrimSpace(nickname) == "" {
		return nil
	}
	if utf8.RuneCountInString(nickname) > MaxTextLength {
		return apperror.ValidationFailed("nickname", MsgNicknameTooLong)
	}

	switch c := ClassifyOffensive(nickname); c.Category {
	case CategoryProfanity:
		return apperror.ValidationFailed("nickname", MsgNicknameInappropriate)
	case CategorySpam:
		return apperror.ValidationFailed("nickname", MsgNicknameSpam)
	}
	return nil
}

// CaptchaRange is the inclusive operand range shared by challenge generation
// and server-side validation.
type CaptchaRange struct {
	Min int
	Max int
}

// DefaultCaptchaRange is 1..10.
var DefaultCaptchaRange = CaptchaRange{Min: 1, Max: 10}

// Contains reports whether n lies inside the range.
func (r CaptchaRange) Contains(n int) bool {
	return n >= r.Min && n <= r.Max
}

func (r CaptchaRange) String() string {
	return fmt.Sprintf("%d..%d", r.Min, r.Max)
}

// ValidateCaptcha recomputes num1+num2 and compares it with the claimed
// answer. Operands outside r are rejected before the sum is checked.
func ValidateCaptcha(num1, num2, answer int, r CaptchaRange) error {
	if !r.Contains(num1) || !r.Contains(num2) {
		return apperror.CaptchaFailed(MsgCaptchaQuestion)
	}
	if num1+num2 != answer {
		return apperror.CaptchaFailed(MsgCaptchaAnswer)
	}
	return nil
}

// HoneypotTriggered reports whether the hidden decoy field was filled in.
func HoneypotTriggered(field string) bool {
	return strings.TrimSpace(field) != ""
}

// NormalizeNickname trims the nickname and substitutes "anonymous" for blanks.
func NormalizeNickname(nickname string) string {
	if n := strings.TrimSpace(nickname); n != "" {
		return n
	}
	return model.AnonymousNickname
}

// NormalizeText returns the body exactly as it is stored: trimmed.
func NormalizeText(text string) string {
	return strings.TrimSpace(text)
}

// strictPolicy strips every tag and keeps only text content.
var strictPolicy = bluemonday.StrictPolicy()

// StripMarkup removes HTML tags from s for plain-text destinations such as
// the notification feed. Submissions are validated and stored unstripped.
// bluemonday escapes the surviving text, so entities are decoded again.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	return html.UnescapeString(strictPolicy.Sanitize(s))
}
