package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Handler exposes the auth flows under /api/users.
type Handler struct {
	svc    *Service
	tokens TokenParser
	logger *zap.SugaredLogger
	// dev adds error text to 500 responses
	dev bool
}

func NewHandler(svc *Service, tokens TokenParser, logger *zap.SugaredLogger, dev bool) *Handler {
	return &Handler{svc: svc, tokens: tokens, logger: logger, dev: dev}
}

// Routes mounts the auth endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/users/register", h.Register)
	mux.HandleFunc("POST /api/users/verify-otp", h.VerifyOTP)
	mux.HandleFunc("POST /api/users/resend-otp", h.ResendOTP)
	mux.HandleFunc("POST /api/users/login", h.Login)
	mux.HandleFunc("POST /api/users/login-otp", h.LoginOTP)
	mux.HandleFunc("POST /api/users/verify-login-otp", h.VerifyLoginOTP)
	mux.HandleFunc("POST /api/users/forgot-password", h.ForgotPassword)
	mux.HandleFunc("POST /api/users/reset-password", h.ResetPassword)
	mux.Handle("GET /api/users/profile", RequireUser(h.tokens, h.logger)(http.HandlerFunc(h.Profile)))
}

// codeValue accepts a code sent either as a JSON string or a JSON number.
type codeValue string

func (c *codeValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = codeValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = codeValue(n.String())
	return nil
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	// Action "request_otp" selects email verification.
	Action string `json:"action"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

type CodeRequest struct {
	Email string    `json:"email"`
	OTP   codeValue `json:"otp"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ResetPasswordRequest struct {
	Email       string    `json:"email"`
	OTP         codeValue `json:"otp"`
	NewPassword string    `json:"newPassword"`
}

type messageBody struct {
	Message string `json:"message"`
}

type sessionBody struct {
	Message string `json:"message"`
	*Session
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Register(r.Context(), RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		WantsCode: req.Action == "request_otp",
	})
	if err != nil {
		h.writeError(w, "register", err)
		return
	}
	if res.CodeSent {
		writeJSON(w, http.StatusOK, messageBody{Message: "OTP sent to email"})
		return
	}
	writeJSON(w, http.StatusCreated, sessionBody{Message: "User registered successfully", Session: res.Session})
}

func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := h.svc.VerifyRegistration(r.Context(), req.Email, string(req.OTP))
	if err != nil {
		h.writeError(w, "verify registration", err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionBody{Message: "User registered successfully", Session: sess})
}

func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.ResendCode(r.Context(), req.Email); err != nil {
		h.writeError(w, "resend code", err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "OTP resent to email"})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionBody{Message: "Login successful", Session: sess})
}

func (h *Handler) LoginOTP(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.RequestLoginCode(r.Context(), req.Email); err != nil {
		h.writeError(w, "request login code", err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "OTP sent to email"})
}

func (h *Handler) VerifyLoginOTP(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := h.svc.VerifyLoginCode(r.Context(), req.Email, string(req.OTP))
	if err != nil {
		h.writeError(w, "verify login code", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionBody{Message: "Login successful", Session: sess})
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		h.writeError(w, "forgot password", err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "OTP sent to email"})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Email, string(req.OTP), req.NewPassword); err != nil {
		h.writeError(w, "reset password", err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Password reset successful"})
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	sum, err := h.svc.Profile(r.Context(), userID)
	if err != nil {
		h.writeError(w, "profile", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": sum})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.Debugw("invalid payload", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid payload"})
		return false
	}
	return true
}

// StatusFor maps a flow error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidCode), errors.Is(err, ErrExpiredCode):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDeliveryUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status := StatusFor(err)
	if status != http.StatusInternalServerError {
		h.logger.Debugw(op+" rejected", "status", status, "err", err)
		writeJSON(w, status, errorBody{Error: err.Error()})
		return
	}
	h.logger.Errorw(op+" failed", "err", err)
	body := errorBody{Error: "internal server error"}
	if h.dev {
		body.Detail = err.Error()
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
