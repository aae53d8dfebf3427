package twofa

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chatterhq/twofactor/pkg/ratelimiter"
)

// Identity is the authenticated caller resolved by the host application's
// session layer.
type Identity struct {
	UserID uuid.UUID
	Email  string
}

// AuthFunc resolves the session identity for a request. It returns false
// when the request carries no valid session.
type AuthFunc func(r *http.Request) (Identity, bool)

// Router mounts the two-factor JSON API.
//
// setup, verify, disable and status require a session via authn. validate
// and check run pre-session against a claimed user ID and are throttled per
// claimed user by limiter (pass nil to disable throttling, e.g. when an
// upstream gateway already rate limits).
func Router(svc *Service, limiter *ratelimiter.Bucket, authn AuthFunc) chi.Router {
	h := &handlers{svc: svc, limiter: limiter, authn: authn}

	r := chi.NewRouter()
	r.Get("/status", h.withIdentity(h.status))
	r.Post("/setup", h.withIdentity(h.setup))
	r.Post("/verify", h.withIdentity(h.verify))
	r.Post("/disable", h.withIdentity(h.disable))
	r.Post("/validate", h.validate)
	r.Post("/check", h.check)
	return r
}

type handlers struct {
	svc     *Service
	limiter *ratelimiter.Bucket
	authn   AuthFunc
}

type codeRequest struct {
	Code string `json:"code"`
}

type validateRequest struct {
	UserID string `json:"userId"`
	Code   string `json:"code"`
}

type checkRequest struct {
	UserID string `json:"userId"`
}

func (h *handlers) withIdentity(next func(w http.ResponseWriter, r *http.Request, id Identity)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.authn(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r, id)
	}
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request, id Identity) {
	enabled, err := h.svc.Status(r.Context(), id.UserID)
	if err != nil {
		h.renderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": enabled})
}

func (h *handlers) setup(w http.ResponseWriter, r *http.Request, id Identity) {
	res, err := h.svc.Setup(r.Context(), id.UserID, id.Email)
	if err != nil {
		h.renderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) verify(w http.ResponseWriter, r *http.Request, id Identity) {
	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	res, err := h.svc.VerifyAndEnable(r.Context(), id.UserID, req.Code)
	if err != nil {
		h.renderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) disable(w http.ResponseWriter, r *http.Request, id Identity) {
	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	disabled, err := h.svc.Disable(r.Context(), id.UserID, req.Code)
	if err != nil {
		h.renderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"disabled": disabled})
}

func (h *handlers) validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "Missing userId or code")
		return
	}
	userID, ok := h.claimedUser(w, r, req.UserID)
	if !ok {
		return
	}
	res, err := h.svc.ValidateLogin(r.Context(), userID, req.Code)
	if err != nil {
		h.renderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "Missing userId")
		return
	}
	userID, ok := h.claimedUser(w, r, req.UserID)
	if !ok {
		return
	}
	required, err := h.svc.RequiresTwoFA(r.Context(), userID)
	if err != nil {
		h.renderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requires2FA": required})
}

// claimedUser parses the asserted user ID and applies the pre-session rate
// limit. Throttling keys on the claimed identity, so an attacker cannot
// spread attempts against one account across connections.
func (h *handlers) claimedUser(w http.ResponseWriter, r *http.Request, raw string) (uuid.UUID, bool) {
	userID, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid userId")
		return uuid.Nil, false
	}
	if h.limiter != nil {
		res, err := h.limiter.Allow(r.Context(), "twofa:validate:"+userID.String())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return uuid.Nil, false
		}
		if !res.Allowed() {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(res.RetryAfter().Seconds())+1))
			writeError(w, http.StatusTooManyRequests, "Too many attempts")
			return uuid.Nil, false
		}
	}
	return userID, true
}

func (h *handlers) renderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotSetUp):
		writeError(w, http.StatusBadRequest, "2FA not set up")
	case errors.Is(err, ErrNotEnabled):
		writeError(w, http.StatusBadRequest, "2FA not enabled for this user")
	case errors.Is(err, ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Temporarily unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
