// Command facegate-stub is a local development backend for the portal
// authentication and device-trust flow. It keeps everything in memory,
// seeds one demo account, and accepts any uploaded photo so the full
// enrollment and re-validation paths can be exercised offline.
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

type stubConfig struct {
	Addr     string        `env:"FACEGATE_ADDR" envDefault:":8477"`
	Secret   string        `env:"FACEGATE_SECRET" envDefault:"facegate-dev-secret"`
	TokenTTL time.Duration `env:"FACEGATE_TOKEN_TTL" envDefault:"1h"`
}

type account struct {
	Password string
	PersonID string
	UserID   string
	Name     string
	Email    string
	Manager  bool
}

// service holds the stub's mutable state. faces tracks which persons have
// an enrolled face; devices maps personID to the set of trusted device UUIDs.
type service struct {
	cfg stubConfig
	log zerolog.Logger

	mu      sync.Mutex
	users   map[string]account
	faces   map[string]bool
	devices map[string]map[string]bool
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	var cfg stubConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("parse environment")
	}

	svc := &service{
		cfg: cfg,
		log: log,
		users: map[string]account{
			"12345678900": {
				Password: "demo",
				PersonID: "42",
				UserID:   "7",
				Name:     "Demo Investor",
				Email:    "demo@example.com",
			},
		},
		faces:   map[string]bool{},
		devices: map[string]map[string]bool{},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(svc.requestLogger)

	r.Post("/auth/login", svc.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(svc.requireSession)
		r.Post("/device/validate", svc.handleValidateDevice)
		r.Post("/face/register", svc.handleRegisterFace)
		r.Post("/face/validate", svc.handleValidatePhoto)
		r.Post("/device/save", svc.handleSaveDevice)
	})

	log.Info().Str("addr", cfg.Addr).Msg("facegate stub listening")
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Fatal().Err(err).Msg("serve")
	}
}

func (s *service) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// requireSession rejects requests whose bearer token is missing, forged, or
// expired with the same 401 shape the production backend uses.
func (s *service) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || !s.tokenValid(token) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "session expired"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *service) tokenValid(token string) bool {
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (any, error) {
		return []byte(s.cfg.Secret), nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}))
	return err == nil && parsed.Valid
}

func (s *service) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		User     string `json:"user"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return
	}

	s.mu.Lock()
	acct, ok := s.users[req.User]
	s.mu.Unlock()
	if !ok || acct.Password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid credentials"})
		return
	}

	expires := time.Now().Add(s.cfg.TokenTTL).Unix()
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"userid":    acct.UserID,
		"username":  acct.Name,
		"usermail":  acct.Email,
		"user":      req.User,
		"pessoa_id": acct.PersonID,
		"is_gn":     acct.Manager,
		"expires":   expires,
	}).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "token signing failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "data": token})
}

func (s *service) handleValidateDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PersonID   string `json:"pessoa_id"`
		DeviceUUID string `json:"device_uuid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return
	}

	s.mu.Lock()
	valid := s.devices[req.PersonID][req.DeviceUUID]
	hasFace := s.faces[req.PersonID]
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"valid":     valid,
		"has_face":  hasFace,
		"device_id": req.DeviceUUID,
	})
}

func (s *service) handleRegisterFace(w http.ResponseWriter, r *http.Request) {
	personID, ok := s.photoPersonID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	s.faces[personID] = true
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"descriptor": []float64{0.12, 0.34, 0.56},
		"message":    "face registered",
	})
}

func (s *service) handleValidatePhoto(w http.ResponseWriter, r *http.Request) {
	personID, ok := s.photoPersonID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	enrolled := s.faces[personID]
	s.mu.Unlock()
	if !enrolled {
		writeJSON(w, http.StatusOK, map[string]any{"match": false, "distance": 1.0})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"match": true, "distance": 0.18})
}

func (s *service) handleSaveDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PersonID   string `json:"pessoa_id"`
		DeviceUUID string `json:"device_uuid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return
	}
	if req.PersonID == "" || req.DeviceUUID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "pessoa_id and device_uuid required"})
		return
	}

	s.mu.Lock()
	if s.devices[req.PersonID] == nil {
		s.devices[req.PersonID] = map[string]bool{}
	}
	s.devices[req.PersonID][req.DeviceUUID] = true
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"device":  map[string]string{"id": req.DeviceUUID},
	})
}

// photoPersonID extracts the pessoa_id field and checks that a photo part is
// attached; on failure it writes the error response and returns ok=false.
func (s *service) photoPersonID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid multipart body"})
		return "", false
	}
	personID := r.FormValue("pessoa_id")
	if personID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "pessoa_id required"})
		return "", false
	}
	photo, _, err := r.FormFile("photo")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "photo required"})
		return "", false
	}
	photo.Close()
	return personID, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
