package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/thechompapp/chompauth/auth"
)

var (
	devPort       int
	devSessionTTL time.Duration
	devUsers      []string
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a reference implementation of the remote auth contract",
	Long: `Runs an in-memory implementation of the remote authentication service
for local development: JWT access tokens, rotating refresh tokens, and a
permissive actions endpoint. State is lost on exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := newDevServer(devUsers, devSessionTTL)
		if err != nil {
			return err
		}

		httpServer := &http.Server{
			Addr:              fmt.Sprintf(":%d", devPort),
			Handler:           srv.router(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("devserver failed: %w", err)
				return
			}
			done <- nil
		}()

		fmt.Printf("chompauth devserver listening on port %d (%d user(s) seeded)\n", devPort, len(srv.users))

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(ctx)
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(devserverCmd)
	devserverCmd.Flags().IntVarP(&devPort, "port", "p", 8090, "Port to listen on")
	devserverCmd.Flags().DurationVar(&devSessionTTL, "session-ttl", time.Hour, "Access token lifetime")
	devserverCmd.Flags().StringArrayVar(&devUsers, "user", []string{"demo@chomp.local:password123"},
		"Seed user as email:password[:role,...]")
}

type devUser struct {
	id           string
	email        string
	displayName  string
	passwordHash []byte
	roles        []string
}

// devServer is an in-memory remote service for local development. Not a
// production backend: single signing key, no persistence.
type devServer struct {
	mu         sync.Mutex
	users      map[string]*devUser // keyed by normalized email
	refresh    map[string]string   // refresh token -> email
	signingKey []byte
	ttl        time.Duration
}

func newDevServer(seeds []string, ttl time.Duration) (*devServer, error) {
	s := &devServer{
		users:      make(map[string]*devUser),
		refresh:    make(map[string]string),
		signingKey: []byte(uuid.NewString()),
		ttl:        ttl,
	}
	for _, seed := range seeds {
		if err := s.seedUser(seed); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *devServer) seedUser(seed string) error {
	parts := strings.SplitN(seed, ":", 3)
	if len(parts) < 2 {
		return fmt.Errorf("invalid --user %q, want email:password[:role,...]", seed)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(parts[1]), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	email := auth.NormalizeEmail(parts[0])
	user := &devUser{
		id:           uuid.NewString(),
		email:        email,
		displayName:  strings.SplitN(email, "@", 2)[0],
		passwordHash: hash,
	}
	if len(parts) == 3 {
		user.roles = strings.Split(parts[2], ",")
	}
	s.users[email] = user
	return nil
}

func (s *devServer) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/api/auth/login", s.handleLogin)
	r.Post("/api/auth/register", s.handleRegister)
	r.Post("/api/auth/logout", s.handleLogout)
	r.Post("/api/auth/refresh", s.handleRefresh)
	r.Get("/api/auth/status", s.handleStatus)
	r.Get("/api/auth/permissions", s.handlePermissions)
	r.Post("/api/actions/{kind}", s.handleAction)
	return r
}

func (s *devServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDevError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	user, ok := s.users[auth.NormalizeEmail(req.Email)]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(user.passwordHash, []byte(req.Password)) != nil {
		writeDevError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	s.writeSession(w, http.StatusOK, user)
}

func (s *devServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDevError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	email := auth.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		writeDevError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[email]; exists {
		writeDevError(w, http.StatusConflict, "account already exists")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeDevError(w, http.StatusInternalServerError, "hashing failed")
		return
	}
	user := &devUser{
		id:           uuid.NewString(),
		email:        email,
		displayName:  req.DisplayName,
		passwordHash: hash,
	}
	s.users[email] = user
	s.writeSessionLocked(w, http.StatusCreated, user)
}

func (s *devServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Best-effort by contract; always succeeds.
	w.WriteHeader(http.StatusOK)
}

func (s *devServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDevError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.refresh[req.RefreshToken]
	if !ok {
		writeDevError(w, http.StatusUnauthorized, "unknown refresh token")
		return
	}
	user := s.users[email]
	delete(s.refresh, req.RefreshToken)

	accessToken, err := s.issueToken(user)
	if err != nil {
		writeDevError(w, http.StatusInternalServerError, "token issuance failed")
		return
	}
	refreshToken := uuid.NewString()
	s.refresh[refreshToken] = user.email

	writeDevJSON(w, http.StatusOK, map[string]any{
		"token":         accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int64(s.ttl.Seconds()),
	})
}

func (s *devServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFromRequest(r)
	if !ok {
		writeDevJSON(w, http.StatusOK, map[string]any{"is_authenticated": false})
		return
	}
	writeDevJSON(w, http.StatusOK, map[string]any{
		"is_authenticated": true,
		"identity":         identityJSON(user),
	})
}

func (s *devServer) handlePermissions(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFromRequest(r)
	if !ok {
		writeDevError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	grants := []string{"lists:read", "lists:write", "restaurants:submit"}
	for _, role := range user.roles {
		if role == auth.RoleSuperuser {
			grants = append(grants, "admin:manage")
		}
	}
	writeDevJSON(w, http.StatusOK, map[string]any{"grants": grants})
}

func (s *devServer) handleAction(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	fmt.Printf("action received: %s\n", kind)
	w.WriteHeader(http.StatusOK)
}

func (s *devServer) writeSession(w http.ResponseWriter, status int, user *devUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeSessionLocked(w, status, user)
}

func (s *devServer) writeSessionLocked(w http.ResponseWriter, status int, user *devUser) {
	accessToken, err := s.issueToken(user)
	if err != nil {
		writeDevError(w, http.StatusInternalServerError, "token issuance failed")
		return
	}
	refreshToken := uuid.NewString()
	s.refresh[refreshToken] = user.email

	writeDevJSON(w, status, map[string]any{
		"token":         accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int64(s.ttl.Seconds()),
		"identity":      identityJSON(user),
	})
}

func (s *devServer) issueToken(user *devUser) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   user.id,
		"email": user.email,
		"iat":   now.Unix(),
		"exp":   now.Add(s.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

func (s *devServer) userFromRequest(r *http.Request) (*devUser, bool) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, false
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, false
	}
	email, _ := claims["email"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	return user, ok
}

func identityJSON(user *devUser) map[string]any {
	return map[string]any{
		"id":           user.id,
		"email":        user.email,
		"display_name": user.displayName,
		"roles":        user.roles,
	}
}

func writeDevJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDevError(w http.ResponseWriter, status int, msg string) {
	writeDevJSON(w, status, map[string]string{"error": msg})
}
