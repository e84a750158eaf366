// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package models holds the domain documents shared across the gateway:
// named-map templates, resolved map configurations, and the connection
// metadata describing an owner's database.
package models

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// AuthMethod is a template's instantiation policy.
type AuthMethod string

const (
	// AuthOpen allows anyone to instantiate the template.
	AuthOpen AuthMethod = "open"
	// AuthToken requires a token listed in valid_tokens.
	AuthToken AuthMethod = "token"
)

// TemplateAuth describes who may instantiate a template.
type TemplateAuth struct {
	Method      AuthMethod `json:"method" validate:"required,oneof=open token"`
	ValidTokens []string   `json:"valid_tokens,omitempty" validate:"dive,min=1"`
}

// PlaceholderType controls how a caller-supplied placeholder value is
// validated and escaped before substitution into the layergroup document.
type PlaceholderType string

const (
	PlaceholderSQLLiteral PlaceholderType = "sql_literal"
	PlaceholderSQLIdent   PlaceholderType = "sql_ident"
	PlaceholderNumber     PlaceholderType = "number"
	PlaceholderCSSColor   PlaceholderType = "css_color"
)

// Placeholder declares a substitutable parameter of a template.
type Placeholder struct {
	Type    PlaceholderType `json:"type" validate:"required,oneof=sql_literal sql_ident number css_color"`
	Default any             `json:"default"`
}

// Template is a stored, owner-scoped named-map document. The layergroup is
// kept as a raw JSON document since its layer options are free-form and only
// string fields participate in placeholder substitution.
type Template struct {
	ID           uuid.UUID              `json:"-"`
	Owner        string                 `json:"-"`
	Name         string                 `json:"name" validate:"required,tplname"`
	Version      string                 `json:"version,omitempty"`
	Auth         TemplateAuth           `json:"auth"`
	Placeholders map[string]Placeholder `json:"placeholders,omitempty" validate:"dive"`
	Layergroup   map[string]any         `json:"layergroup" validate:"required"`
	CreatedAt    time.Time              `json:"-"`
	UpdatedAt    time.Time              `json:"-"`
}

// Template names travel inside cache keys and URLs, so they are restricted
// to a colon-free identifier alphabet.
var templateNameRe = regexp.MustCompile(`^[a-zA-Z][0-9a-zA-Z_]{0,63}$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// templateValidator returns the shared validator instance with the custom
// template-name rule registered. validator caches struct metadata, so a
// singleton keeps repeated Validate calls cheap.
func templateValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterValidation("tplname", func(fl validator.FieldLevel) bool {
			return templateNameRe.MatchString(fl.Field().String())
		})
	})
	return validate
}

// Validate checks a template document for authoring errors. It is called at
// create/update time; violations map to a 400 in the HTTP layer, never to a
// per-request 403.
func (t *Template) Validate() error {
	if err := templateValidator().Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid template %q: field %s failed on %q", t.Name, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid template %q: %w", t.Name, err)
	}

	// Cross-field rules the tag language cannot express.
	if t.Auth.Method == AuthToken && len(t.Auth.ValidTokens) == 0 {
		return fmt.Errorf("template %q has invalid authentication: missing valid tokens", t.Name)
	}
	for name, ph := range t.Placeholders {
		if ph.Default == nil {
			return fmt.Errorf("template %q placeholder %q is missing a default", t.Name, name)
		}
		if _, err := PlaceholderValue(ph.Type, ph.Default); err != nil {
			return fmt.Errorf("template %q placeholder %q has an invalid default: %w", t.Name, name, err)
		}
	}
	return nil
}

var cssColorRe = regexp.MustCompile(`^(#[0-9a-fA-F]{3}|#[0-9a-fA-F]{6}|[a-zA-Z]+)$`)

// PlaceholderValue validates a placeholder value against its declared type
// and returns the escaped string to substitute. SQL values are escaped by
// quote doubling; numbers and colors are validated and passed through.
func PlaceholderValue(typ PlaceholderType, value any) (string, error) {
	switch typ {
	case PlaceholderNumber:
		switch v := value.(type) {
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(v), nil
		case string:
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return "", fmt.Errorf("invalid number value %q", v)
			}
			return v, nil
		default:
			return "", fmt.Errorf("invalid number value %v", value)
		}
	case PlaceholderCSSColor:
		s, ok := value.(string)
		if !ok || !cssColorRe.MatchString(s) {
			return "", fmt.Errorf("invalid css color value %v", value)
		}
		return s, nil
	case PlaceholderSQLLiteral:
		return strings.ReplaceAll(stringify(value), "'", "''"), nil
	case PlaceholderSQLIdent:
		return strings.ReplaceAll(stringify(value), `"`, `""`), nil
	default:
		return "", fmt.Errorf("unsupported placeholder type %q", typ)
	}
}

// stringify renders a scalar placeholder value the way it would appear in
// JSON, without quoting strings.
func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
