// Package captcha issues the two-number addition challenges shown on the
// submission form.
//
// The server never trusts a client-supplied sum: the intake path always
// recomputes num1+num2. A challenge may additionally carry a signed token that
// binds the operands to this server for a short time, so a bot cannot pick its
// own easy operands. Tokens are HS256 JWTs:
//
//	{"iss":"motto-wall","jti":"<uuid>","exp":...,"n1":3,"n2":4}
package captcha

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sakif/motto-wall/internal/moderation"
)

const issuer = "motto-wall"

// ErrInvalidToken is returned by Verify for any token that does not check out.
var ErrInvalidToken = errors.New("captcha: invalid token")

// Challenge is what GET /api/captcha returns.
type Challenge struct {
	Num1  int    `json:"num1"`
	Num2  int    `json:"num2"`
	Token string `json:"token,omitempty"`
}

// Issuer draws operands and, when it has a secret, signs them.
type Issuer struct {
	rng    moderation.CaptchaRange
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithSecret enables signed tokens. Secrets shorter than 16 bytes are rejected
// by NewIssuer.
func WithSecret(secret string) Option {
	return func(i *Issuer) { i.secret = []byte(secret) }
}

// WithTTL sets how long a signed challenge stays valid. Default 10 minutes.
func WithTTL(d time.Duration) Option {
	return func(i *Issuer) { i.ttl = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an Issuer drawing operands from r. Operands are
// positive, so r.Min must be at least 1.
func NewIssuer(r moderation.CaptchaRange, opts ...Option) (*Issuer, error) {
	if r.Min < 1 || r.Min > r.Max {
		return nil, fmt.Errorf("captcha: invalid range %s", r)
	}
	i := &Issuer{rng: r, ttl: 10 * time.Minute, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	if i.secret != nil && len(i.secret) < 16 {
		return nil, errors.New("captcha: secret must be at least 16 characters")
	}
	return i, nil
}

// Signed reports whether Issue produces tokens.
func (i *Issuer) Signed() bool { return len(i.secret) > 0 }

// Range returns the operand range this issuer draws from.
func (i *Issuer) Range() moderation.CaptchaRange { return i.rng }

type claims struct {
	N1 int `json:"n1"`
	N2 int `json:"n2"`
	jwt.RegisteredClaims
}

// Issue returns a fresh challenge.
func (i *Issuer) Issue() (Challenge, error) {
	span := i.rng.Max - i.rng.Min + 1
	c := Challenge{
		Num1: i.rng.Min + rand.IntN(span),
		Num2: i.rng.Min + rand.IntN(span),
	}
	if !i.Signed() {
		return c, nil
	}

	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		N1: c.Num1,
		N2: c.Num2,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return Challenge{}, fmt.Errorf("captcha: signing challenge: %w", err)
	}
	c.Token = signed
	return c, nil
}

// Verify checks that token was issued by this server, has not expired and
// binds exactly the operands n1 and n2.
//
// WHAT A TOKEN PROVES:
// The token only says "this server handed out n1 and n2 recently". It does
// not carry the answer, and it is not single-use: the jti only makes two
// tokens for the same operands differ. The sum is still recomputed by the
// validator. Checks, in order:
//
//  1. signature with the HS256 secret (other algorithms are refused)
//  2. iss == "motto-wall" and exp present and in the future
//  3. the claimed operands equal the submitted ones
func (i *Issuer) Verify(token string, n1, n2 int) error {
	if !i.Signed() {
		return errors.New("captcha: issuer has no secret")
	}
	if token == "" {
		return ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(
		token,
		&claims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return ErrInvalidToken
	}
	if c.N1 != n1 || c.N2 != n2 {
		return fmt.Errorf("%w: operands do not match", ErrInvalidToken)
	}
	return nil
}
