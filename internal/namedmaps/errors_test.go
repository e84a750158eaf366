// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package namedmaps

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotFoundf("missing"), http.StatusNotFound},
		{Forbiddenf("nope"), http.StatusForbidden},
		{BadRequestf("bad"), http.StatusBadRequest},
		{errors.New("db exploded"), http.StatusInternalServerError},
		{nil, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestIsKindThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("resolve: %w", NotFoundf("template 'x' of user 'y' not found"))

	if !IsKind(wrapped, KindNotFound) {
		t.Error("wrapped not-found error lost its kind")
	}
	if IsKind(wrapped, KindForbidden) {
		t.Error("wrapped error matched the wrong kind")
	}
	if got := HTTPStatus(wrapped); got != http.StatusNotFound {
		t.Errorf("HTTPStatus of wrapped error = %d, want 404", got)
	}
}

func TestErrorMessageSurfacedVerbatim(t *testing.T) {
	err := Forbiddenf("unauthorized template instantiation")
	if err.Error() != "unauthorized template instantiation" {
		t.Errorf("message = %q", err.Error())
	}
}
