package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/motto-wall/internal/captcha"
	"github.com/sakif/motto-wall/internal/model"
	"github.com/sakif/motto-wall/internal/ratelimit"
	"github.com/sakif/motto-wall/internal/service"
)

// maxBodyBytes caps the submission body. 10,000 code points of four-byte
// UTF-8 plus JSON overhead fits comfortably.
const maxBodyBytes = 1 << 20

// MsgInvalidBody is returned when a submission is not valid JSON.
const MsgInvalidBody = "Invalid request body"

// MottoHandler serves the submission endpoint and the public read side.
type MottoHandler struct {
	svc     *service.MottoService
	captcha *captcha.Issuer
	logger  *slog.Logger
}

// NewMottoHandler creates a MottoHandler.
func NewMottoHandler(svc *service.MottoService, issuer *captcha.Issuer, logger *slog.Logger) *MottoHandler {
	return &MottoHandler{svc: svc, captcha: issuer, logger: logger}
}

// submitRequest is the POST /api/submit-motto body.
//
// LENIENT DECODING:
// Only a body that is not a JSON object is a decode error. Every client-typed
// field is decoded as a raw JSON value and converted afterwards, so a wrong
// type turns into the same answer a missing field would get:
//
//	"website": 1         → honeypot fires, fake success
//	"motto_text": 42     → "Motto text is required"
//	"captcha_num1": "3"  → "Invalid captcha data"
type submitRequest struct {
	Nickname      any `json:"nickname"`
	MottoText     any `json:"motto_text"`
	Timezone      any `json:"timezone"`
	CaptchaNum1   any `json:"captcha_num1"`
	CaptchaNum2   any `json:"captcha_num2"`
	CaptchaAnswer any `json:"captcha_answer"`
	CaptchaToken  any `json:"captcha_token"`
	Website       any `json:"website"`
}

type submitResponse struct {
	Success bool         `json:"success"`
	Motto   *model.Motto `json:"motto,omitempty"`
}

// HandleSubmit accepts a new motto.
//
// HTTP: POST /api/submit-motto
//
// ORDER OF CHECKS:
//  1. rate limit (before the body is read, so garbage still costs quota)
//  2. JSON decode
//  3. honeypot, content, captcha, persist (service.Submit)
func (h *MottoHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	addr := ratelimit.ClientAddr(r)

	if err := h.svc.Admit(r.Context(), addr); err != nil {
		writeError(w, err)
		return
	}

	var req submitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		h.logger.Warn("invalid submission body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: MsgInvalidBody})
		return
	}

	res, err := h.svc.Submit(r.Context(), service.SubmitInput{
		Nickname:      asString(req.Nickname),
		Text:          asString(req.MottoText),
		Timezone:      asOptionalString(req.Timezone),
		CaptchaNum1:   asInt(req.CaptchaNum1),
		CaptchaNum2:   asInt(req.CaptchaNum2),
		CaptchaAnswer: asInt(req.CaptchaAnswer),
		CaptchaToken:  asString(req.CaptchaToken),
		Honeypot:      honeypotValue(req.Website),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{Success: true, Motto: res.Motto})
}

// asString returns v when it is a JSON string and "" otherwise.
func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asOptionalString is asString for nullable fields: anything but a string
// yields nil.
func asOptionalString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

// honeypotValue flattens the decoy field to a string. Any truthy JSON value
// counts as filled in: non-empty strings, true, non-zero numbers, arrays and
// objects.
func honeypotValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return ""
	case json.Number:
		if f, err := x.Float64(); err == nil && f == 0 {
			return ""
		}
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// asInt converts a decoded JSON number to an int. Strings, booleans, nulls
// and non-integral numbers yield nil.
func asInt(v any) *int {
	n, ok := v.(json.Number)
	if !ok {
		return nil
	}
	if i, err := n.Int64(); err == nil {
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil
		}
		out := int(i)
		return &out
	}
	// 7.0 is still seven.
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return nil
	}
	out := int(f)
	return &out
}

// HandleCaptcha issues a fresh challenge.
//
// HTTP: GET /api/captcha
func (h *MottoHandler) HandleCaptcha(w http.ResponseWriter, r *http.Request) {
	c, err := h.captcha.Issue()
	if err != nil {
		h.logger.Error("failed to issue captcha", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, c)
}

// HandleList returns a page of the feed in submission order.
//
// HTTP: GET /api/mottos?limit=20&offset=0
func (h *MottoHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit")
	offset := queryInt(r, "offset")

	mottos, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list mottos", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mottos": mottos})
}

// HandleCount returns the number of stored mottos.
//
// HTTP: GET /api/mottos/count
func (h *MottoHandler) HandleCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Count(r.Context())
	if err != nil {
		h.logger.Error("failed to count mottos", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

// HandleGet returns the motto published as #number.
//
// HTTP: GET /api/mottos/{number}
func (h *MottoHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "number")
	number, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "motto not found with number " + raw})
		return
	}

	m, err := h.svc.GetByNumber(r.Context(), number)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleHealth reports liveness.
//
// HTTP: GET /healthz
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandlePreflight answers OPTIONS requests that the CORS middleware passed
// through with an empty 200.
func HandlePreflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}
