// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package namedmaps

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"
)

// ConfigHash digests a caller-supplied template config into 8 hex
// characters. Nil, empty-string, and unmarshalable inputs all degrade to ""
// rather than erroring: the hash is one axis of a cache key, and the key
// also carries the un-hashed template identity, so a collision at 32 bits
// only shares a cache entry within the same template.
func ConfigHash(config any) string {
	if config == nil {
		return ""
	}
	if s, ok := config.(string); ok && s == "" {
		return ""
	}
	raw, err := json.Marshal(config)
	if err != nil {
		return ""
	}
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:])[:8]
}

// BaseKey derives the coarse cache key shared by every instantiation of a
// template: "dbname:owner:templateName". Callers that need keys stable
// across resolution pass an empty dbname, which is fine: keys are compared,
// never parsed.
func BaseKey(dbname, owner, templateName string) string {
	return fmt.Sprintf("%s:%s:%s", dbname, owner, templateName)
}

// FullKey derives the cache key for one fully parameterized instantiation.
// It extends BaseKey with ":authToken:configHash:format:layer:scaleFactor".
// A zero scale factor defaults to 1. Identical inputs always yield
// identical keys; there is no time-based component.
func FullKey(dbname, owner, templateName, authToken string, config any, format, layer string, scaleFactor float64) string {
	if scaleFactor == 0 {
		scaleFactor = 1
	}
	return fmt.Sprintf("%s:%s:%s:%s:%s:%s",
		BaseKey(dbname, owner, templateName),
		authToken,
		ConfigHash(config),
		format,
		layer,
		strconv.FormatFloat(scaleFactor, 'f', -1, 64),
	)
}
