package httpserver

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/tobiasfell/quill/auth"
	"github.com/tobiasfell/quill/middleware"
	"github.com/tobiasfell/quill/store"
)

type signInRequest struct {
	Email    string `json:"email" validate:"required,email,max=64"`
	Password string `json:"password" validate:"required,min=8,max=256"`
}

type signInResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	body, err := parseBody[signInRequest](s, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	token, err := s.auth.Authenticate(r.Context(), body.Email, body.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, signInResponse{Token: token})
}

type signUpRequest struct {
	Email    string `json:"email" validate:"required,email,max=64"`
	Username string `json:"username" validate:"required,max=24"`
	Password string `json:"password" validate:"required,min=8,max=256"`
}

// apiUser is the sendable projection of a stored user: no password
// hash.
type apiUser struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Username  string     `json:"username"`
	Role      store.Role `json:"role"`
	CreatedAt int64      `json:"created_at"`
	UpdatedAt int64      `json:"updated_at"`
}

func sendableUser(u *store.User) apiUser {
	return apiUser{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Role:      u.Role,
		CreatedAt: u.CreatedAt.Unix(),
		UpdatedAt: u.UpdatedAt.Unix(),
	}
}

type signUpResponse struct {
	Data    apiUser `json:"data"`
	Message string  `json:"message"`
	Token   string  `json:"token,omitempty"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	body, err := parseBody[signUpRequest](s, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	hash, err := s.auth.HashPassword(r.Context(), body.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	user := &store.User{
		Email:        body.Email,
		Username:     body.Username,
		PasswordHash: hash,
		Role:         store.RoleCommon,
	}
	if err := s.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrExists) {
			s.writeError(w, r, auth.ErrUserExists)
			return
		}
		s.log.Error("signup user create failed", zap.Error(err))
		s.writeError(w, r, auth.ErrInternal)
		return
	}

	// The user exists at this point no matter what happens to the
	// token, so a signing fault is reported as partial success rather
	// than rolling anything back.
	token, err := s.auth.IssueToken(r.Context(), user)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, signUpResponse{
			Data: sendableUser(user),
			Message: "user created successfully, but the auth token could not be " +
				"generated due to an unexpected error on our part, try signing in " +
				"manually. this incident has been logged",
		})
		return
	}

	s.writeJSON(w, http.StatusCreated, signUpResponse{
		Data:    sendableUser(user),
		Message: "user created successfully",
		Token:   token,
	})
}

func (s *Server) handleSelf(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, r, auth.ErrInternal)
		return
	}
	s.writeData(w, http.StatusOK, claims, "success")
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, r, auth.ErrInternal)
		return
	}

	if err := s.auth.RecordInvalidation(r.Context(), claims.Subject, auth.ReasonUserRequest); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, nil, "signed out everywhere")
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,min=8,max=256"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=256"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, r, auth.ErrInternal)
		return
	}

	body, err := parseBody[changePasswordRequest](s, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.users.FindByID(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, r, auth.ErrUserNotFound)
			return
		}
		s.log.Error("password change lookup failed", zap.Error(err))
		s.writeError(w, r, auth.ErrInternal)
		return
	}

	match, err := s.auth.VerifyPassword(r.Context(), body.CurrentPassword, user.PasswordHash)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !match {
		s.writeError(w, r, auth.ErrUnauthorized)
		return
	}

	hash, err := s.auth.HashPassword(r.Context(), body.NewPassword)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.users.UpdatePassword(r.Context(), user.ID, hash); err != nil {
		s.log.Error("password change update failed", zap.Error(err))
		s.writeError(w, r, auth.ErrInternal)
		return
	}

	// Every token issued before this point dies with the old
	// password, including the one that authorized this request.
	if err := s.auth.RecordInvalidation(r.Context(), user.ID, auth.ReasonPasswordChanged); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, nil, "password changed, sign in again")
}

func (s *Server) handleDeleteSelf(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, r, auth.ErrInternal)
		return
	}

	if err := s.users.Delete(r.Context(), claims.Subject); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, r, auth.ErrUserNotFound)
			return
		}
		s.log.Error("user delete failed", zap.Error(err))
		s.writeError(w, r, auth.ErrInternal)
		return
	}

	if err := s.auth.RecordInvalidation(r.Context(), claims.Subject, auth.ReasonUserDeleted); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, nil, "account deleted")
}
