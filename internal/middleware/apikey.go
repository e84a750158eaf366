// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// mapKeyGetter looks up the master API key of an owner.
type mapKeyGetter interface {
	GetUserMapKey(ctx context.Context, owner string) (string, error)
}

// RequireAPIKey gates template administration behind the owner's API key,
// supplied as the api_key query parameter. A missing key is a 401, a wrong
// one is a 403. Lookup failures also deny with 403 so an unreachable
// metadata backend never opens the admin surface.
func RequireAPIKey(keys mapKeyGetter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.URL.Query().Get("api_key")
			if apiKey == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			owner := chi.URLParam(r, "owner")
			expected, err := keys.GetUserMapKey(r.Context(), owner)
			if err != nil || expected == "" {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(expected)) != 1 {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
