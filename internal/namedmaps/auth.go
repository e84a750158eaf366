// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package namedmaps

import (
	"fmt"

	"tilery/internal/models"
)

// IsAuthorized reports whether authToken may instantiate tpl.
//
// The open method authorizes every caller, token or not. The token method
// authorizes only tokens listed in valid_tokens; a token-method template
// with zero valid tokens never authorizes — that shape is a template
// authoring error rejected at creation time, but legacy stored documents
// must still fail closed here.
func IsAuthorized(tpl *models.Template, authToken string) (bool, error) {
	switch tpl.Auth.Method {
	case models.AuthOpen:
		return true, nil
	case models.AuthToken:
		if authToken == "" {
			return false, nil
		}
		for _, valid := range tpl.Auth.ValidTokens {
			if authToken == valid {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported auth method %q", tpl.Auth.Method)
	}
}
