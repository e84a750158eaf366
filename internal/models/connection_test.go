// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import "testing"

func TestDatabaseParamsDSN(t *testing.T) {
	p := DatabaseParams{User: "geo", Pass: "pw", Host: "db.internal", Port: "5433", Name: "geodb"}
	want := "postgres://geo:pw@db.internal:5433/geodb?sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestDatabaseParamsIdentity(t *testing.T) {
	p := DatabaseParams{User: "geo", Pass: "pw", Host: "db.internal", Port: "5433", Name: "geodb"}
	if got := p.Identity(); got != "geo@db.internal:5433/geodb" {
		t.Errorf("Identity = %q", got)
	}

	// The password is not part of the identity: rotating it must not split
	// cache entries.
	rotated := p
	rotated.Pass = "new-pw"
	if p.Identity() != rotated.Identity() {
		t.Error("password change altered the database identity")
	}
}
