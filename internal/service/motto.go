// Package service contains the business logic layer.
//
//	Handler (HTTP layer)     → identity extraction, decoding, response shape
//	Service (business layer) → admission, moderation, orchestration
//	Repository (data layer)  → reads/writes mottos
//
// MottoService is the submission gateway. It takes plain Go values, never an
// *http.Request, and returns *apperror.AppError values the handler maps to
// status codes.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/motto-wall/internal/apperror"
	"github.com/sakif/motto-wall/internal/model"
	"github.com/sakif/motto-wall/internal/moderation"
	"github.com/sakif/motto-wall/internal/ratelimit"
	"github.com/sakif/motto-wall/internal/repository"
)

// Caller-facing messages owned by the gateway.
const (
	MsgRateLimited  = "Too many submissions. Please try again later."
	MsgSubmitFailed = "Failed to submit motto"
)

// Notifier is told about every stored motto. It must not block.
type Notifier interface {
	Notify(m *model.Motto)
}

// TokenVerifier checks a signed captcha challenge against its operands.
type TokenVerifier interface {
	Verify(token string, n1, n2 int) error
}

// SubmitInput is a decoded submission. Captcha fields are nil when the
// client omitted them or sent something that is not an integer.
type SubmitInput struct {
	Nickname      string
	Text          string
	Timezone      *string
	CaptchaNum1   *int
	CaptchaNum2   *int
	CaptchaAnswer *int
	CaptchaToken  string
	Honeypot      string
}

// SubmitResult is the outcome of an accepted submission. Faked is set when
// the honeypot fired: the caller gets a success response and nothing was
// stored, so Motto is nil.
type SubmitResult struct {
	Motto *model.Motto
	Faked bool
}

// MottoService admits, moderates and stores submissions and serves the
// public read side.
type MottoService struct {
	repo         repository.MottoRepository
	limiter      ratelimit.Limiter
	notifier     Notifier
	tokens       TokenVerifier
	captchaRange moderation.CaptchaRange
	requireToken bool
	logger       *slog.Logger
}

// Option configures a MottoService.
type Option func(*MottoService)

// WithNotifier sets the notifier told about stored mottos.
func WithNotifier(n Notifier) Option {
	return func(s *MottoService) { s.notifier = n }
}

// WithCaptchaRange sets the accepted operand range. Default 1..10.
func WithCaptchaRange(r moderation.CaptchaRange) Option {
	return func(s *MottoService) { s.captchaRange = r }
}

// WithTokenVerifier enables signed-challenge checks. A submitted token is
// always verified; when require is true a missing token is rejected too.
func WithTokenVerifier(v TokenVerifier, require bool) Option {
	return func(s *MottoService) {
		s.tokens = v
		s.requireToken = require
	}
}

// NewMottoService creates the gateway. limiter may be nil to disable
// admission control.
func NewMottoService(repo repository.MottoRepository, limiter ratelimit.Limiter, logger *slog.Logger, opts ...Option) *MottoService {
	s := &MottoService{
		repo:         repo,
		limiter:      limiter,
		captchaRange: moderation.DefaultCaptchaRange,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Admit counts a submission attempt from addr against the limiters. It runs
// before the request body is even decoded, so malformed and rejected
// submissions use up quota as well.
//
// A limiter that cannot reach its store admits the request.
func (s *MottoService) Admit(ctx context.Context, addr string) error {
	if s.limiter == nil {
		return nil
	}

	ok, err := s.limiter.Allow(ctx, addr)
	if err != nil {
		s.logger.Warn("rate limiter unavailable, admitting request",
			slog.String("addr", addr),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if !ok {
		s.logger.Info("submission rate limited", slog.String("addr", addr))
		return apperror.RateLimited(MsgRateLimited)
	}
	return nil
}

// Submit runs an admitted submission through the honeypot, content and
// captcha checks and stores it. The first failing check decides the error.
func (s *MottoService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if moderation.HoneypotTriggered(in.Honeypot) {
		s.logger.Info("honeypot triggered, discarding submission")
		return &SubmitResult{Faked: true}, nil
	}

	text, nickname := in.Text, in.Nickname

	if err := moderation.ValidateContent(text); err != nil {
		s.logRejection("motto_text", text, err)
		return nil, err
	}
	if err := moderation.ValidateNickname(nickname); err != nil {
		s.logRejection("nickname", nickname, err)
		return nil, err
	}

	if err := s.checkCaptcha(in); err != nil {
		s.logger.Info("captcha rejected", slog.String("reason", err.Error()))
		return nil, err
	}

	m := &model.Motto{
		Nickname: moderation.NormalizeNickname(nickname),
		Text:     moderation.NormalizeText(text),
		Timezone: normalizeTimezone(in.Timezone),
	}

	if err := s.repo.Create(ctx, m); err != nil {
		s.logger.Error("failed to store motto", slog.String("error", err.Error()))
		return nil, apperror.Internal(MsgSubmitFailed)
	}

	s.logger.Info("motto accepted",
		slog.Int64("number", m.Number),
		slog.String("id", m.ID),
	)

	if s.notifier != nil {
		s.notifier.Notify(m)
	}

	return &SubmitResult{Motto: m}, nil
}

func (s *MottoService) checkCaptcha(in SubmitInput) error {
	if in.CaptchaNum1 == nil || in.CaptchaNum2 == nil || in.CaptchaAnswer == nil {
		return apperror.CaptchaFailed(moderation.MsgCaptchaData)
	}

	n1, n2 := *in.CaptchaNum1, *in.CaptchaNum2
	if err := moderation.ValidateCaptcha(n1, n2, *in.CaptchaAnswer, s.captchaRange); err != nil {
		return err
	}

	if s.tokens == nil || (in.CaptchaToken == "" && !s.requireToken) {
		return nil
	}
	if err := s.tokens.Verify(in.CaptchaToken, n1, n2); err != nil {
		s.logger.Debug("captcha token rejected", slog.String("error", err.Error()))
		return apperror.CaptchaFailed(moderation.MsgCaptchaQuestion)
	}
	return nil
}

// logRejection records which rule blocked a text. The text itself is not
// logged.
func (s *MottoService) logRejection(field, text string, err error) {
	c := moderation.ClassifyOffensive(text)
	s.logger.Info("submission rejected",
		slog.String("field", field),
		slog.String("reason", err.Error()),
		slog.String("rule", c.Rule),
	)
}

// normalizeTimezone keeps the client's timezone exactly as sent. Only an
// empty string is treated as absent.
func normalizeTimezone(tz *string) *string {
	if tz == nil || *tz == "" {
		return nil
	}
	v := *tz
	return &v
}

// List returns a page of mottos in submission order.
func (s *MottoService) List(ctx context.Context, limit, offset int) ([]model.Motto, error) {
	mottos, err := s.repo.List(ctx, repository.ListOptions{Limit: limit, Offset: offset}.Normalize())
	if err != nil {
		return nil, fmt.Errorf("listing mottos: %w", err)
	}
	if mottos == nil {
		mottos = []model.Motto{}
	}
	return mottos, nil
}

// GetByNumber returns the motto published as #number.
func (s *MottoService) GetByNumber(ctx context.Context, number int64) (*model.Motto, error) {
	if number < 1 {
		return nil, apperror.NotFound("motto", fmt.Sprint(number))
	}
	return s.repo.GetByNumber(ctx, number)
}

// Count returns how many mottos have been stored.
func (s *MottoService) Count(ctx context.Context) (int64, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting mottos: %w", err)
	}
	return n, nil
}
