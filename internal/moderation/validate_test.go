package moderation_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/motto-wall/internal/apperror"
	"github.com/sakif/motto-wall/internal/moderation"
)

func messageOf(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr), "expected *apperror.AppError, got %T", err)
	return appErr.Message
}

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantMsg string
	}{
		{"clean", "Today my brain is confetti.", ""},
		{"empty", "", moderation.MsgTextRequired},
		{"whitespace only", "   \n\t ", moderation.MsgTextRequired},
		{"exactly at the limit", strings.Repeat("abcd ", 2000), ""},
		{"one over the limit", strings.Repeat("abcd ", 2000) + "x", moderation.MsgTextTooLong},
		{"profanity", "this is crap", moderation.MsgInappropriate},
		{"spam", "visit https://example.com", moderation.MsgSpam},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := moderation.ValidateContent(tt.text)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrValidation))
			assert.Equal(t, tt.wantMsg, messageOf(t, err))
		})
	}
}

func TestValidateContent_CountsCodePoints(t *testing.T) {
	// 10,000 two-byte runes is 20,000 bytes but still within the limit.
	text := strings.Repeat("éa", moderation.MaxTextLength/2)
	assert.NoError(t, moderation.ValidateContent(text))
}

func TestValidateNickname(t *testing.T) {
	tests := []struct {
		name     string
		nickname string
		wantMsg  string
	}{
		{"blank is skipped", "", ""},
		{"whitespace is skipped", "   ", ""},
		{"plain", "sam", ""},
		{"profanity", "big bastard", moderation.MsgNicknameInappropriate},
		{"spam", "me@example.com", moderation.MsgNicknameSpam},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := moderation.ValidateNickname(tt.nickname)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrValidation))
			assert.Equal(t, tt.wantMsg, messageOf(t, err))
		})
	}
}

func TestValidateCaptcha(t *testing.T) {
	r := moderation.DefaultCaptchaRange

	t.Run("every in-range pair with the right sum passes", func(t *testing.T) {
		for a := r.Min; a <= r.Max; a++ {
			for b := r.Min; b <= r.Max; b++ {
				assert.NoError(t, moderation.ValidateCaptcha(a, b, a+b, r), "%d+%d", a, b)
			}
		}
	})

	t.Run("wrong sum", func(t *testing.T) {
		err := moderation.ValidateCaptcha(3, 4, 8, r)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperror.ErrCaptcha))
		assert.Equal(t, moderation.MsgCaptchaAnswer, messageOf(t, err))
	})

	t.Run("operands out of range", func(t *testing.T) {
		for _, pair := range [][2]int{{0, 5}, {5, 0}, {11, 1}, {1, 11}, {-3, 4}} {
			err := moderation.ValidateCaptcha(pair[0], pair[1], pair[0]+pair[1], r)
			require.Error(t, err)
			assert.Equal(t, moderation.MsgCaptchaQuestion, messageOf(t, err), "%v", pair)
		}
	})

	t.Run("range is checked before the sum", func(t *testing.T) {
		err := moderation.ValidateCaptcha(20, 1, 0, r)
		assert.Equal(t, moderation.MsgCaptchaQuestion, messageOf(t, err))
	})

	t.Run("custom range", func(t *testing.T) {
		wide := moderation.CaptchaRange{Min: 1, Max: 50}
		assert.NoError(t, moderation.ValidateCaptcha(40, 2, 42, wide))
		assert.Equal(t, "1..50", wide.String())
	})
}

func TestHoneypotTriggered(t *testing.T) {
	assert.False(t, moderation.HoneypotTriggered(""))
	assert.False(t, moderation.HoneypotTriggered("  "))
	assert.True(t, moderation.HoneypotTriggered("http://bot.example"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "anonymous", moderation.NormalizeNickname(""))
	assert.Equal(t, "anonymous", moderation.NormalizeNickname(" \t"))
	assert.Equal(t, "sam", moderation.NormalizeNickname("  sam "))
	assert.Equal(t, "hello world", moderation.NormalizeText("\n hello world  "))
}

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"<b>bold</b> move", "bold move"},
		{`<script>alert("x")</script>calm`, "calm"},
		{"fish & chips", "fish & chips"},
		{"1 < 2", "1 < 2"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, moderation.StripMarkup(tt.in))
		})
	}
}
