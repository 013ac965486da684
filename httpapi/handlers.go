package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/middleware"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type userView struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Role          string    `json:"role,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	Username      string    `json:"username,omitempty"`
	Bio           string    `json:"bio,omitempty"`
	AvatarURL     string    `json:"avatarUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func viewOf(u *tokenauth.User) userView {
	return userView{
		ID:            u.ID,
		Email:         u.Email,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		Username:      u.Username,
		Bio:           u.Bio,
		AvatarURL:     u.AvatarURL,
		CreatedAt:     u.CreatedAt,
	}
}

type tokenResponse struct {
	Message string `json:"message"`
	tokenauth.TokenPair
}

type messageResponse struct {
	Message string `json:"message"`
}

/*
====================================
CREDENTIAL FLOWS
====================================
*/

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.Register(r.Context(), tokenauth.RegisterRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		tokenResponse
		User userView `json:"user"`
	}{
		tokenResponse: tokenResponse{Message: tokenauth.MsgRegistered, TokenPair: res.TokenPair},
		User:          viewOf(&res.User),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}
	pair, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Message: tokenauth.MsgLoggedIn, TokenPair: pair})
}

// refreshRequest carries a refresh token as "token"; "refreshToken" is
// accepted too.
type refreshRequest struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

func (r refreshRequest) token() string {
	if r.Token != "" {
		return r.Token
	}
	return r.RefreshToken
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decode(w, r, &req) {
		return
	}
	pair, err := s.engine.Refresh(r.Context(), req.token())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Message: tokenauth.MsgTokenRefreshed, TokenPair: pair})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.Logout(r.Context(), req.token()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: tokenauth.MsgLoggedOut})
}

/*
====================================
ACTION TOKEN FLOWS
====================================
*/

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.VerifyEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: tokenauth.MsgEmailVerified})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.ForgotPassword(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: tokenauth.MsgForgotPassword})
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.ResendVerification(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: tokenauth.MsgResendVerification})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Token == "" {
		req.Token = r.URL.Query().Get("token")
	}
	pair, err := s.engine.ResetPassword(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Message: tokenauth.MsgPasswordReset, TokenPair: pair})
}

/*
====================================
AUTHENTICATED
====================================
*/

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.AuthResultFromContext(r.Context())
	user, err := s.engine.Profile(r.Context(), caller.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sessions, err := s.engine.ActiveSessions(r.Context(), caller.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		User           userView `json:"user"`
		ActiveSessions int      `json:"activeSessions"`
	}{User: viewOf(user), ActiveSessions: sessions})
}

type profileRequest struct {
	Username  *string `json:"username"`
	Bio       *string `json:"bio"`
	AvatarURL *string `json:"avatarUrl"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, _ := middleware.AuthResultFromContext(r.Context())
	user, err := s.engine.UpdateProfile(r.Context(), caller.UserID, tokenauth.ProfileUpdate{
		Username:  req.Username,
		Bio:       req.Bio,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message string   `json:"message"`
		User    userView `json:"user"`
	}{Message: tokenauth.MsgProfileUpdated, User: viewOf(user)})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, _ := middleware.AuthResultFromContext(r.Context())
	pair, err := s.engine.ChangePassword(r.Context(), caller.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Message: tokenauth.MsgPasswordChanged, TokenPair: pair})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, lerr := queryInt(q.Get("limit"))
	offset, oerr := queryInt(q.Get("offset"))
	var details []tokenauth.FieldError
	if lerr != nil {
		details = append(details, tokenauth.FieldError{Field: "limit", Message: "Limit must be a non-negative integer"})
	}
	if oerr != nil {
		details = append(details, tokenauth.FieldError{Field: "offset", Message: "Offset must be a non-negative integer"})
	}
	if len(details) > 0 {
		s.writeError(w, r, tokenauth.ValidationError(details...))
		return
	}

	caller, _ := middleware.AuthResultFromContext(r.Context())
	users, err := s.engine.ListUsers(r.Context(), caller, limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]userView, 0, len(users))
	for i := range users {
		views = append(views, viewOf(&users[i]))
	}
	writeJSON(w, http.StatusOK, struct {
		Users  []userView `json:"users"`
		Limit  int        `json:"limit"`
		Offset int        `json:"offset"`
	}{Users: views, Limit: limit, Offset: offset})
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("negative")
	}
	return n, nil
}

/*
====================================
OPERATIONS
====================================
*/

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := map[string]string{"redis": "ok"}
	healthy := true
	if err := s.engine.Ping(ctx); err != nil {
		status["redis"] = "unavailable"
		healthy = false
		s.logger.WarnContext(ctx, "health check failed", "dependency", "redis", "error", err)
	}
	for name, check := range s.opts.Checks {
		if err := check(ctx); err != nil {
			status[name] = "unavailable"
			healthy = false
			s.logger.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
			continue
		}
		status[name] = "ok"
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

/*
====================================
JSON
====================================
*/

// decode reads a JSON body into dst. An empty body leaves dst zero so that
// the engine reports the missing fields.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.writeError(w, r, tokenauth.ValidationError(tokenauth.FieldError{Field: "body", Message: "Request body too large"}))
		return false
	}
	s.writeError(w, r, tokenauth.ValidationError(tokenauth.FieldError{Field: "body", Message: "Malformed JSON"}))
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
