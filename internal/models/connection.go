// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import "fmt"

// DatabaseParams are the connection parameters for an owner's geospatial
// database, resolved from the metadata backend per request.
type DatabaseParams struct {
	User string `json:"dbuser"`
	Pass string `json:"dbpass"`
	Host string `json:"dbhost"`
	Port string `json:"dbport"`
	Name string `json:"dbname"`
}

// DSN returns the PostgreSQL connection string for these parameters.
func (p DatabaseParams) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		p.User, p.Pass, p.Host, p.Port, p.Name,
	)
}

// Identity returns a normalized database identity string. Caches keyed by
// database use this instead of an opaque params object so equivalent
// connection parameters share one entry.
func (p DatabaseParams) Identity() string {
	return fmt.Sprintf("%s@%s:%s/%s", p.User, p.Host, p.Port, p.Name)
}

// RenderLimits are per-owner rendering ceilings attached to every resolved
// map configuration. A zero value means "no limits configured".
type RenderLimits struct {
	Render         float64 `json:"render"`
	CacheOnTimeout bool    `json:"cacheOnTimeout"`
}
