// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers exposes the named-maps JSON API: template CRUD for
// owners and template instantiation for map clients. Handlers stay thin —
// routing, status mapping, and cache headers — while the resolution logic
// lives in the namedmaps package.
package handlers

import (
	"log/slog"
	"net/http"

	json "github.com/goccy/go-json"
)

// respondJSON writes a JSON response body with the given status.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("encode response failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}

// respondError writes the API error shape: messages surfaced verbatim in
// an errors array.
func respondError(w http.ResponseWriter, status int, messages ...string) {
	respondJSON(w, status, map[string]any{"errors": messages})
}
