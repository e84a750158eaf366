// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"tilery/internal/cache"
)

func TestParseScaleFactor(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"", 0},
		{"2", 2},
		{"1.5", 1.5},
		{"bogus", 0},
	}
	for _, tt := range tests {
		if got := parseScaleFactor(tt.raw); got != tt.want {
			t.Errorf("parseScaleFactor(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestWriteInstantiationHeaders(t *testing.T) {
	env := &cache.Envelope{
		Body:          []byte(`{"layergroupid":"deadbeef"}`),
		CacheChannel:  "geodb:public.pois,ref.categories",
		SurrogateKeys: []string{"t:abc1234567", "t:def7654321"},
	}

	rr := httptest.NewRecorder()
	writeInstantiation(rr, env)

	if rr.Code != 200 {
		t.Errorf("status = %d", rr.Code)
	}
	if got := rr.Header().Get("X-Cache-Channel"); got != env.CacheChannel {
		t.Errorf("X-Cache-Channel = %q", got)
	}
	if got := rr.Header().Get("Surrogate-Key"); got != "t:abc1234567 t:def7654321" {
		t.Errorf("Surrogate-Key = %q", got)
	}
	if !strings.Contains(rr.Header().Get("Content-Type"), "application/json") {
		t.Errorf("Content-Type = %q", rr.Header().Get("Content-Type"))
	}
	if rr.Body.String() != string(env.Body) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestWriteInstantiationOmitsEmptyHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	writeInstantiation(rr, &cache.Envelope{Body: []byte(`{}`)})

	if _, ok := rr.Header()["X-Cache-Channel"]; ok {
		t.Error("X-Cache-Channel set without affected tables")
	}
	if _, ok := rr.Header()["Surrogate-Key"]; ok {
		t.Error("Surrogate-Key set without affected tables")
	}
}

func TestRespondError(t *testing.T) {
	rr := httptest.NewRecorder()
	respondError(rr, 404, "template 'pois' of user 'alice' not found")

	if rr.Code != 404 {
		t.Errorf("status = %d", rr.Code)
	}

	var body struct {
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Errors) != 1 || body.Errors[0] != "template 'pois' of user 'alice' not found" {
		t.Errorf("errors = %v", body.Errors)
	}
}
