package main

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// requireOperator guards the /admin surface. Tokens are HS256-signed
// with OPERATOR_TOKEN_SECRET and must carry role=operator; the operator
// console mints them out of band.
func requireOperator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret := strings.TrimSpace(os.Getenv("OPERATOR_TOKEN_SECRET"))
		if secret == "" {
			writeAuthError(w, http.StatusServiceUnavailable, "OPERATOR_AUTH_DISABLED")
			return
		}

		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED")
			return
		}
		tokenString := strings.TrimPrefix(authz, "Bearer ")

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED")
			return
		}
		if role, _ := claims["role"].(string); role != "operator" {
			writeAuthError(w, http.StatusForbidden, "FORBIDDEN")
			return
		}

		next(w, r)
	}
}

func writeAuthError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SimpleResponse{OK: false, Error: code})
}
