package api

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"nordctl/internal/settings"
)

// bcryptCost is the work factor used when hashing passwords.
var bcryptCost = bcrypt.DefaultCost

// SetPassword hashes plain and persists it as the API password.
// An empty password clears the requirement.
func SetPassword(manager *settings.Manager, plain string) error {
	current, err := manager.Get()
	if err != nil {
		return err
	}
	if plain == "" {
		current.APIPasswordHash = ""
		return manager.Save(current)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return err
	}
	current.APIPasswordHash = string(hash)
	return manager.Save(current)
}

// requirePassword enforces HTTP Basic credentials when an API password
// is configured. Without one the API is open.
func (s *Server) requirePassword(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current, err := s.settings.Get()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "settings unavailable"})
			return
		}
		if current.APIPasswordHash == "" {
			next.ServeHTTP(w, r)
			return
		}
		_, password, ok := r.BasicAuth()
		if !ok || bcrypt.CompareHashAndPassword([]byte(current.APIPasswordHash), []byte(password)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="nordctl"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
