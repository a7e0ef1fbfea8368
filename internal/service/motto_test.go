package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/motto-wall/internal/apperror"
	"github.com/sakif/motto-wall/internal/model"
	"github.com/sakif/motto-wall/internal/moderation"
	"github.com/sakif/motto-wall/internal/ratelimit"
	"github.com/sakif/motto-wall/internal/repository"
)

// =========================================================================
// FAKES
// =========================================================================

// mockMottoRepo stores mottos in memory and hands out numbers like a
// database sequence.
type mockMottoRepo struct {
	mu         sync.Mutex
	mottos     []model.Motto
	nextNumber int64
	createErr  error
}

func (m *mockMottoRepo) Create(_ context.Context, motto *model.Motto) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.nextNumber++
	motto.Number = m.nextNumber
	motto.ID = fmt.Sprintf("mock-%d", m.nextNumber)
	motto.CreatedAt = time.Now()
	m.mottos = append(m.mottos, *motto)
	return nil
}

func (m *mockMottoRepo) GetByNumber(_ context.Context, number int64) (*model.Motto, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.mottos {
		if m.mottos[i].Number == number {
			found := m.mottos[i]
			return &found, nil
		}
	}
	return nil, apperror.NotFound("motto", fmt.Sprint(number))
}

func (m *mockMottoRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Motto, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if opts.Offset >= len(m.mottos) {
		return nil, nil
	}
	end := min(opts.Offset+opts.Limit, len(m.mottos))
	return append([]model.Motto(nil), m.mottos[opts.Offset:end]...), nil
}

func (m *mockMottoRepo) Count(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.mottos)), nil
}

type stubLimiter struct {
	allow bool
	err   error
}

func (s stubLimiter) Allow(context.Context, string) (bool, error) { return s.allow, s.err }

type recordingNotifier struct{ got []*model.Motto }

func (r *recordingNotifier) Notify(m *model.Motto) { r.got = append(r.got, m) }

type stubVerifier struct{ err error }

func (s stubVerifier) Verify(string, int, int) error { return s.err }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intp(n int) *int { return &n }

// validInput is the canonical accepted submission.
func validInput() SubmitInput {
	return SubmitInput{
		Text:          "Today my brain is confetti.",
		CaptchaNum1:   intp(3),
		CaptchaNum2:   intp(4),
		CaptchaAnswer: intp(7),
	}
}

func appMessage(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr), "expected *apperror.AppError, got %T: %v", err, err)
	return appErr.Message
}

// =========================================================================
// ADMIT
// =========================================================================

func TestAdmit(t *testing.T) {
	t.Run("admitted", func(t *testing.T) {
		svc := NewMottoService(&mockMottoRepo{}, stubLimiter{allow: true}, discardLogger())
		assert.NoError(t, svc.Admit(context.Background(), "203.0.113.1"))
	})

	t.Run("denied", func(t *testing.T) {
		svc := NewMottoService(&mockMottoRepo{}, stubLimiter{allow: false}, discardLogger())
		err := svc.Admit(context.Background(), "203.0.113.1")
		assert.True(t, errors.Is(err, apperror.ErrRateLimited))
		assert.Equal(t, MsgRateLimited, appMessage(t, err))
	})

	t.Run("limiter error fails open", func(t *testing.T) {
		svc := NewMottoService(&mockMottoRepo{}, stubLimiter{err: errors.New("redis: connection refused")}, discardLogger())
		assert.NoError(t, svc.Admit(context.Background(), "203.0.113.1"))
	})

	t.Run("no limiter", func(t *testing.T) {
		svc := NewMottoService(&mockMottoRepo{}, nil, discardLogger())
		assert.NoError(t, svc.Admit(context.Background(), "203.0.113.1"))
	})
}

func TestAdmit_HourlyWindow(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewFixedWindow(3, time.Hour, ratelimit.WithClock(func() time.Time { return now }))
	svc := NewMottoService(&mockMottoRepo{}, limiter, discardLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Admit(ctx, "198.51.100.7"), "request %d", i+1)
	}
	assert.True(t, errors.Is(svc.Admit(ctx, "198.51.100.7"), apperror.ErrRateLimited))

	now = now.Add(time.Hour + time.Second)
	assert.NoError(t, svc.Admit(ctx, "198.51.100.7"))
}

// =========================================================================
// SUBMIT
// =========================================================================

func TestSubmit_Accepted(t *testing.T) {
	repo := &mockMottoRepo{nextNumber: 41}
	notifier := &recordingNotifier{}
	svc := NewMottoService(repo, nil, discardLogger(), WithNotifier(notifier))

	res, err := svc.Submit(context.Background(), validInput())
	require.NoError(t, err)
	require.NotNil(t, res.Motto)
	assert.False(t, res.Faked)

	assert.Equal(t, int64(42), res.Motto.Number, "number is previous + 1")
	assert.Equal(t, "anonymous", res.Motto.Nickname)
	assert.Equal(t, "Today my brain is confetti.", res.Motto.Text)
	assert.Nil(t, res.Motto.Timezone)
	assert.NotEmpty(t, res.Motto.ID)

	require.Len(t, notifier.got, 1)
	assert.Equal(t, int64(42), notifier.got[0].Number)
}

func TestSubmit_NormalizesFields(t *testing.T) {
	repo := &mockMottoRepo{}
	svc := NewMottoService(repo, nil, discardLogger())

	in := validInput()
	in.Nickname = "  sam "
	in.Text = "  one thing at a time  "
	tz := " Europe/Lisbon "
	in.Timezone = &tz

	res, err := svc.Submit(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "sam", res.Motto.Nickname)
	assert.Equal(t, "one thing at a time", res.Motto.Text)
	require.NotNil(t, res.Motto.Timezone)
	assert.Equal(t, " Europe/Lisbon ", *res.Motto.Timezone, "timezone is stored as sent")
}

func TestSubmit_EmptyTimezoneIsNil(t *testing.T) {
	svc := NewMottoService(&mockMottoRepo{}, nil, discardLogger())

	in := validInput()
	empty := ""
	in.Timezone = &empty

	res, err := svc.Submit(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, res.Motto.Timezone)
}

func TestSubmit_StoresTextAsWritten(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"angle bracket in prose", "my brain<heart is loud today"},
		{"tag-like word", "focus on <one> thing"},
		{"escaped entities", "I wrote &lt;b&gt; literally"},
		{"real markup", "<b>bold</b> move"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockMottoRepo{}
			svc := NewMottoService(repo, nil, discardLogger())

			in := validInput()
			in.Text = "  " + tt.text + "\n"

			res, err := svc.Submit(context.Background(), in)
			require.NoError(t, err)
			assert.Equal(t, tt.text, res.Motto.Text)

			stored, err := repo.GetByNumber(context.Background(), res.Motto.Number)
			require.NoError(t, err)
			assert.Equal(t, tt.text, stored.Text)
		})
	}
}

func TestSubmit_LengthCountsMarkup(t *testing.T) {
	repo := &mockMottoRepo{}
	svc := NewMottoService(repo, nil, discardLogger())

	in := validInput()
	in.Text = strings.Repeat("ab ", 3333) + "c<i></i>"
	require.Equal(t, 10007, len([]rune(in.Text)))

	res, err := svc.Submit(context.Background(), in)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Motto must be less than 10,000 characters", appErr.Message)

	n, _ := repo.Count(context.Background())
	assert.Zero(t, n)
}

func TestSubmit_Honeypot(t *testing.T) {
	repo := &mockMottoRepo{}
	notifier := &recordingNotifier{}
	svc := NewMottoService(repo, nil, discardLogger(), WithNotifier(notifier))

	in := validInput()
	in.Honeypot = "http://bot.example"
	// Even an otherwise invalid submission gets the fake success.
	in.CaptchaAnswer = intp(99)

	res, err := svc.Submit(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.Faked)
	assert.Nil(t, res.Motto)

	n, _ := repo.Count(context.Background())
	assert.Zero(t, n, "honeypot submissions are never stored")
	assert.Empty(t, notifier.got)
}

func TestSubmit_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(in *SubmitInput)
		sentinel error
		message  string
	}{
		{
			name:     "empty text",
			mutate:   func(in *SubmitInput) { in.Text = "   " },
			sentinel: apperror.ErrValidation,
			message:  "Motto text is required",
		},
		{
			name:     "too long",
			mutate:   func(in *SubmitInput) { in.Text = strings.Repeat("abcd ", 2000) + "z" },
			sentinel: apperror.ErrValidation,
			message:  "Motto must be less than 10,000 characters",
		},
		{
			name:     "profanity",
			mutate:   func(in *SubmitInput) { in.Text = "this is crap" },
			sentinel: apperror.ErrValidation,
			message:  "Contains inappropriate language",
		},
		{
			name:     "spam",
			mutate:   func(in *SubmitInput) { in.Text = "visit https://example.com now" },
			sentinel: apperror.ErrValidation,
			message:  "Contains spam content",
		},
		{
			name:     "nickname profanity",
			mutate:   func(in *SubmitInput) { in.Nickname = "shit happens" },
			sentinel: apperror.ErrValidation,
			message:  "Nickname contains inappropriate language",
		},
		{
			name:     "nickname spam",
			mutate:   func(in *SubmitInput) { in.Nickname = "me@example.com" },
			sentinel: apperror.ErrValidation,
			message:  "Nickname contains spam content",
		},
		{
			name:     "missing captcha answer",
			mutate:   func(in *SubmitInput) { in.CaptchaAnswer = nil },
			sentinel: apperror.ErrCaptcha,
			message:  "Invalid captcha data",
		},
		{
			name:     "operand out of range",
			mutate:   func(in *SubmitInput) { in.CaptchaNum1, in.CaptchaAnswer = intp(11), intp(15) },
			sentinel: apperror.ErrCaptcha,
			message:  "Invalid captcha question",
		},
		{
			name:     "wrong sum",
			mutate:   func(in *SubmitInput) { in.CaptchaAnswer = intp(8) },
			sentinel: apperror.ErrCaptcha,
			message:  "Incorrect captcha answer",
		},
		{
			name: "content is checked before captcha",
			mutate: func(in *SubmitInput) {
				in.Text = ""
				in.CaptchaAnswer = intp(8)
			},
			sentinel: apperror.ErrValidation,
			message:  "Motto text is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockMottoRepo{}
			svc := NewMottoService(repo, nil, discardLogger())

			in := validInput()
			tt.mutate(&in)

			res, err := svc.Submit(context.Background(), in)
			assert.Nil(t, res)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)
			assert.Equal(t, tt.message, appMessage(t, err))

			n, _ := repo.Count(context.Background())
			assert.Zero(t, n, "rejected submissions are never stored")
		})
	}
}

func TestSubmit_StoreFailure(t *testing.T) {
	repo := &mockMottoRepo{createErr: errors.New("sqlite: database is locked")}
	notifier := &recordingNotifier{}
	svc := NewMottoService(repo, nil, discardLogger(), WithNotifier(notifier))

	_, err := svc.Submit(context.Background(), validInput())
	assert.True(t, errors.Is(err, apperror.ErrInternal))
	assert.Equal(t, "Failed to submit motto", appMessage(t, err))
	assert.NotContains(t, err.Error(), "locked", "storage details must not reach callers")
	assert.Empty(t, notifier.got)
}

func TestSubmit_CaptchaToken(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		svc := NewMottoService(&mockMottoRepo{}, nil, discardLogger(), WithTokenVerifier(stubVerifier{}, true))
		in := validInput()
		in.CaptchaToken = "signed"
		_, err := svc.Submit(context.Background(), in)
		assert.NoError(t, err)
	})

	t.Run("bad token", func(t *testing.T) {
		svc := NewMottoService(&mockMottoRepo{}, nil, discardLogger(),
			WithTokenVerifier(stubVerifier{err: errors.New("expired")}, false))
		in := validInput()
		in.CaptchaToken = "stale"
		_, err := svc.Submit(context.Background(), in)
		assert.True(t, errors.Is(err, apperror.ErrCaptcha))
		assert.Equal(t, moderation.MsgCaptchaQuestion, appMessage(t, err))
	})

	t.Run("missing token when required", func(t *testing.T) {
		svc := NewMottoService(&mockMottoRepo{}, nil, discardLogger(),
			WithTokenVerifier(stubVerifier{err: errors.New("empty")}, true))
		_, err := svc.Submit(context.Background(), validInput())
		assert.True(t, errors.Is(err, apperror.ErrCaptcha))
	})

	t.Run("missing token when optional", func(t *testing.T) {
		svc := NewMottoService(&mockMottoRepo{}, nil, discardLogger(),
			WithTokenVerifier(stubVerifier{err: errors.New("never called")}, false))
		_, err := svc.Submit(context.Background(), validInput())
		assert.NoError(t, err)
	})
}

func TestSubmit_CustomCaptchaRange(t *testing.T) {
	svc := NewMottoService(&mockMottoRepo{}, nil, discardLogger(),
		WithCaptchaRange(moderation.CaptchaRange{Min: 1, Max: 20}))

	in := validInput()
	in.CaptchaNum1, in.CaptchaNum2, in.CaptchaAnswer = intp(15), intp(20), intp(35)
	_, err := svc.Submit(context.Background(), in)
	assert.NoError(t, err)
}

// =========================================================================
// READ SIDE
// =========================================================================

func TestReadSide(t *testing.T) {
	repo := &mockMottoRepo{}
	svc := NewMottoService(repo, nil, discardLogger())
	ctx := context.Background()

	empty, err := svc.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, empty, "an empty feed is an empty slice, not nil")
	assert.Len(t, empty, 0)

	for i := 0; i < 3; i++ {
		_, err := svc.Submit(ctx, validInput())
		require.NoError(t, err)
	}

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	page, err := svc.List(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(2), page[0].Number)

	m, err := svc.GetByNumber(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.Number)

	_, err = svc.GetByNumber(ctx, 0)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, err = svc.GetByNumber(ctx, 4)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}
