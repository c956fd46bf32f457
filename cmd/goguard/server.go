package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/activity"
	"github.com/MrEthical07/goGuard/metrics/export/prometheus"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/session"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 16

type routerOptions struct {
	AllowedOrigins    []string
	RequestsPerMinute int
}

type server struct {
	engine *goGuard.Engine
	logger zerolog.Logger
}

// router builds the JSON auth API. Everything under /me requires a valid
// session cookie.
func (s *server) router(opts routerOptions) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           int((10 * time.Minute).Seconds()),
		}))
	}

	metricsHandler, err := prometheus.Handler(s.engine)
	if err != nil {
		return nil, err
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)
	r.Get("/healthz", s.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		if opts.RequestsPerMinute > 0 {
			r.Use(httprate.LimitByIP(opts.RequestsPerMinute, time.Minute))
		}
		r.Post("/signup", s.handleSignup)
		r.Post("/login", s.handleLogin)
		r.Post("/password/strength", s.handlePasswordStrength)
		r.Post("/password/reset", s.handleRequestReset)
		r.Post("/password/reset/complete", s.handleCompleteReset)
	})

	r.Route("/me", func(r chi.Router) {
		r.Use(middleware.RequireSession(s.engine))
		r.Get("/", s.handleGetProfile)
		r.Patch("/", s.handleUpdateProfile)
		r.Post("/logout", s.handleLogout)
		r.Get("/sessions", s.handleListSessions)
		r.Post("/sessions/revoke-others", s.handleRevokeOthers)
		r.Post("/sessions/extend", s.handleExtend)
		r.Delete("/sessions/{sessionID}", s.handleRevokeSession)
		r.Post("/password", s.handleChangePassword)
		r.Post("/email/verification", s.handleResendVerification)
		r.Post("/mfa/sms/send", s.handleSendSMS)
		r.Post("/mfa/sms/verify", s.handleVerifySMS)
		r.Post("/mfa/disable", s.handleDisableMFA)
		r.Get("/activity", s.handleActivity)
	})

	r.With(middleware.Guard(s.engine)).Get("/api/whoami", s.handleWhoAmI)
	return r, nil
}

/*
====================================
PUBLIC ROUTES
====================================
*/

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.engine.Health(r.Context())
	status := http.StatusOK
	if !h.RedisAvailable {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"redis":     h.RedisAvailable,
		"latencyMs": h.RedisLatency.Milliseconds(),
	})
}

func (s *server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.engine.Signup(middleware.RequestContext(r), goGuard.SignupRequest{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newProfileView(p))
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		RememberMe bool   `json:"rememberMe"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.Login(middleware.RequestContext(r), goGuard.LoginRequest{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	if !res.SessionDegraded {
		middleware.SetSessionCookie(w, s.engine, res.Session)
	}
	body := map[string]any{
		"user":            newProfileView(res.Profile),
		"session":         res.Session,
		"sessionDegraded": res.SessionDegraded,
	}
	if res.AccessToken != "" {
		body["accessToken"] = res.AccessToken
		body["accessTokenExpiresAt"] = res.AccessTokenExpiresAt
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *server) handlePasswordStrength(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	st := password.Validate(req.Password, s.engine.Config().Password.Policy)
	writeJSON(w, http.StatusOK, map[string]any{
		"score":        st.Score,
		"strength":     st.Label,
		"percentage":   st.Percentage(),
		"feedback":     st.Feedback,
		"passesPolicy": st.PassesPolicy,
	})
}

func (s *server) handleRequestReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	vid, err := s.engine.RequestPasswordReset(middleware.RequestContext(r), req.Email)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"verificationId": vid})
}

func (s *server) handleCompleteReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email          string `json:"email"`
		VerificationID string `json:"verificationId"`
		Code           string `json:"code"`
		NewPassword    string `json:"newPassword"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	err := s.engine.CompletePasswordReset(middleware.RequestContext(r), goGuard.CompletePasswordResetRequest{
		Email:          req.Email,
		VerificationID: req.VerificationID,
		Code:           req.Code,
		NewPassword:    req.NewPassword,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/*
====================================
SESSION ROUTES
====================================
*/

func (s *server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	p, err := s.engine.GetProfile(r.Context(), sess.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(p))
}

func (s *server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName *string `json:"displayName"`
		PhotoURL    *string `json:"photoURL"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	sess := currentSession(r)
	p, err := s.engine.UpdateProfile(r.Context(), sess.UserID, goGuard.ProfileUpdate{
		DisplayName: req.DisplayName,
		PhotoURL:    req.PhotoURL,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(p))
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	if err := s.engine.Logout(r.Context(), sess.UserID, sess.SessionID); err != nil {
		s.writeError(w, err)
		return
	}
	middleware.ClearSessionCookie(w, s.engine)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	list, err := s.engine.ListSessions(r.Context(), sess.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"current":  sess.SessionID,
		"sessions": list,
	})
}

func (s *server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	target := chi.URLParam(r, "sessionID")
	if err := s.engine.RevokeSession(r.Context(), sess.UserID, target); err != nil {
		s.writeError(w, err)
		return
	}
	if target == sess.SessionID {
		middleware.ClearSessionCookie(w, s.engine)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleRevokeOthers(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	n, err := s.engine.RevokeAllSessions(r.Context(), sess.UserID, sess.SessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (s *server) handleExtend(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	expires, err := s.engine.ExtendSession(r.Context(), sess.UserID, sess.SessionID, 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	extended := *sess
	extended.ExpiresAt = expires
	middleware.SetSessionCookie(w, s.engine, &extended)
	writeJSON(w, http.StatusOK, map[string]time.Time{"expiresAt": expires})
}

func (s *server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	sess := currentSession(r)
	err := s.engine.ChangePassword(r.Context(), goGuard.ChangePasswordRequest{
		UserID:           sess.UserID,
		CurrentPassword:  req.CurrentPassword,
		NewPassword:      req.NewPassword,
		CurrentSessionID: sess.SessionID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	if err := s.engine.ResendEmailVerification(r.Context(), sess.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) handleSendSMS(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phoneNumber"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	sess := currentSession(r)
	vid, err := s.engine.SendSMSVerification(r.Context(), sess.UserID, req.PhoneNumber)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"verificationId": vid})
}

func (s *server) handleVerifySMS(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VerificationID string `json:"verificationId"`
		Code           string `json:"code"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	sess := currentSession(r)
	if err := s.engine.VerifySMSCode(r.Context(), sess.UserID, req.VerificationID, req.Code); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDisableMFA(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	sess := currentSession(r)
	if err := s.engine.DisableMFA(r.Context(), sess.UserID, req.Password); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleActivity serves ?security=true, ?action=<action> or the full log,
// each capped by ?limit.
func (s *server) handleActivity(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	var (
		entries []activity.Entry
		err     error
	)
	switch {
	case q.Get("security") == "true":
		entries, err = s.engine.SecurityActivity(r.Context(), sess.UserID, limit)
	case q.Get("action") != "":
		entries, err = s.engine.UserActivityByAction(r.Context(), sess.UserID, activity.Action(q.Get("action")), limit)
	default:
		entries, err = s.engine.UserActivity(r.Context(), sess.UserID, limit)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]activityView, 0, len(entries))
	for _, e := range entries {
		out = append(out, activityView{Entry: e, Label: activity.Label(e.Action)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	res, _ := middleware.AuthResultFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"uid":     res.UserID,
		"session": session.ShortID(res.SessionID),
		"mfa":     res.MFA,
	})
}

/*
====================================
HELPERS
====================================
*/

// profileView is the public shape of a profile; password history hashes
// are never serialized.
type profileView struct {
	UserID        string    `json:"uid"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	DisplayName   string    `json:"displayName,omitempty"`
	PhotoURL      string    `json:"photoURL,omitempty"`
	PhoneNumber   string    `json:"phoneNumber,omitempty"`
	MFAEnabled    bool      `json:"mfaEnabled"`
	MFAMethods    []string  `json:"mfaMethods"`
	AccountStatus string    `json:"accountStatus"`
	CreatedAt     time.Time `json:"createdAt"`
	LastLoginAt   time.Time `json:"lastLoginAt"`
}

func newProfileView(p *goGuard.UserProfile) profileView {
	if p == nil {
		return profileView{}
	}
	return profileView{
		UserID:        p.UserID,
		Email:         p.Email,
		EmailVerified: p.EmailVerified,
		DisplayName:   p.DisplayName,
		PhotoURL:      p.PhotoURL,
		PhoneNumber:   p.PhoneNumber,
		MFAEnabled:    p.MFAEnabled,
		MFAMethods:    p.MFAMethods,
		AccountStatus: string(p.AccountStatus),
		CreatedAt:     p.CreatedAt,
		LastLoginAt:   p.LastLoginAt,
	}
}

type activityView struct {
	activity.Entry
	Label string `json:"label"`
}

func currentSession(r *http.Request) *session.Session {
	sess, _ := middleware.SessionFromContext(r.Context())
	return sess
}

func (s *server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// writeError maps engine errors onto status codes. Unexpected errors are
// logged and reported without detail.
func (s *server) writeError(w http.ResponseWriter, err error) {
	var (
		policyErr *goGuard.PolicyError
		limitErr  *goGuard.RateLimitError
	)
	switch {
	case errors.As(err, &policyErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    goGuard.ErrPasswordPolicy.Error(),
			"feedback": policyErr.Feedback,
			"strength": policyErr.Strength.Label,
		})
		return
	case errors.As(err, &limitErr):
		w.Header().Set("Retry-After", strconv.Itoa(int(limitErr.ResetIn.Seconds())+1))
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": limitErr.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, goGuard.ErrAuthenticationFailed):
		status = http.StatusUnauthorized
	case errors.Is(err, goGuard.ErrAccountLocked), errors.Is(err, goGuard.ErrAccountSuspended):
		status = http.StatusForbidden
	case errors.Is(err, goGuard.ErrSessionNotFound), errors.Is(err, goGuard.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, goGuard.ErrAccountExists), errors.Is(err, goGuard.ErrEmailAlreadyVerified):
		status = http.StatusConflict
	case errors.Is(err, goGuard.ErrPasswordReuse):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, goGuard.ErrOTPInvalid), errors.Is(err, goGuard.ErrInvalidEmail),
		errors.Is(err, goGuard.ErrInvalidPhone), errors.Is(err, goGuard.ErrInvalidStatus):
		status = http.StatusBadRequest
	case errors.Is(err, goGuard.ErrResetUnsupported):
		status = http.StatusNotImplemented
	case errors.Is(err, goGuard.ErrStoreUnavailable), errors.Is(err, goGuard.ErrProviderUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
		writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
