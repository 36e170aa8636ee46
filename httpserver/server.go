// Package httpserver exposes the authentication service over HTTP: the
// auth routes themselves plus the middleware wiring that protects
// them.
package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tobiasfell/quill/auth"
	"github.com/tobiasfell/quill/middleware"
	"github.com/tobiasfell/quill/store"
)

// Server holds the HTTP-facing collaborators and the router. Password
// hashing goes through the auth service so all argon2 work stays under
// its crypto bound.
type Server struct {
	auth     *auth.Service
	users    store.UserStore
	log      *zap.Logger
	validate *validator.Validate
	router   chi.Router
}

// New wires the routes and returns a ready server.
func New(svc *auth.Service, users store.UserStore, log *zap.Logger) *Server {
	s := &Server{
		auth:     svc,
		users:    users,
		log:      log,
		validate: validator.New(),
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Post("/auth/signin", s.handleSignIn)
	r.Post("/auth/signup", s.handleSignUp)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(svc, s.writeError))

		r.Get("/auth/self", s.handleSelf)
		r.Post("/auth/signout", s.handleSignOut)
		r.Post("/auth/password", s.handleChangePassword)
		r.Delete("/auth/self", s.handleDeleteSelf)
	})

	r.Get("/healthz", s.handleHealth)

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, http.StatusOK, s.auth.Metrics(), "ok")
}
