package remote

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ichikitsu-lab/OrderingSystem/utils"
)

// Session memegang token akses terminal. Client tidak memverifikasi
// signature (itu urusan server); token hanya dibaca untuk tahu kapan
// kedaluwarsa supaya bisa diperingatkan sebelum request mulai ditolak.
type Session struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	warned    bool
}

func NewSession(token string) *Session {
	s := &Session{token: token}
	if token != "" {
		if exp, err := tokenExpiry(token); err == nil {
			s.expiresAt = exp
		} else {
			utils.ErrorLogger.Printf("Cannot read token expiry: %v", err)
		}
	}
	return s
}

// Attach menambahkan Authorization header bila ada token.
func (s *Session) Attach(req *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" {
		return
	}
	if !s.expiresAt.IsZero() && !s.warned && time.Until(s.expiresAt) < 10*time.Minute {
		utils.ErrorLogger.Printf("Remote token expires at %s, refresh needed", s.expiresAt.Format(time.RFC3339))
		s.warned = true
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
}

// Update mengganti token (mis. setelah refresh oleh shell UI).
func (s *Session) Update(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.warned = false
	s.expiresAt = time.Time{}
	if exp, err := tokenExpiry(token); err == nil {
		s.expiresAt = exp
	}
}

func tokenExpiry(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, errors.New("token has no exp claim")
	}
	return exp.Time, nil
}
