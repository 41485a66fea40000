package actions

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
)

// FieldType is the semantic type of an action input.
type FieldType string

const (
	TypeString      FieldType = "string"
	TypeAddress     FieldType = "address"
	TypeAddressList FieldType = "address[]"
	TypeBool        FieldType = "boolean"
	TypeCategory    FieldType = "category"

	// TypeAmount is a human decimal amount scaled by token decimals.
	TypeAmount FieldType = "amount"

	// TypeUint is an integer already in base units.
	TypeUint FieldType = "uint"
)

type Field struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Description string    `json:"description"`
	Required    bool      `json:"required"`
	Enum        []string  `json:"enum,omitempty"`
	Default     any       `json:"default,omitempty"`
}

// Schema is the declared input of an action.
type Schema []Field

// Args are decoded inputs. Scalars are strings or bools; lists are []string.
type Args map[string]any

func (a Args) String(name string) string {
	v, _ := a[name].(string)
	return v
}

func (a Args) Bool(name string) bool {
	v, _ := a[name].(bool)
	return v
}

func (a Args) Strings(name string) []string {
	v, _ := a[name].([]string)
	return v
}

func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Decode validates input against s. Unknown fields are dropped, defaults
// are applied and values are coerced to their declared type. Address and
// amount contents are validated by the handler so that malformed values
// become user-facing messages.
func (s Schema) Decode(input map[string]any) (Args, error) {
	out := make(Args, len(s))
	for _, f := range s {
		raw, present := input[f.Name]
		if !present || raw == nil {
			if f.Default != nil {
				out[f.Name] = f.Default
				continue
			}
			if f.Required {
				return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("missing required field %s", f.Name))
			}
			continue
		}
		v, err := coerce(f, raw)
		if err != nil {
			return nil, err
		}
		if f.Type != TypeCategory && len(f.Enum) > 0 && !containsString(f.Enum, v.(string)) {
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("field %s must be one of %s", f.Name, strings.Join(f.Enum, ", ")))
		}
		out[f.Name] = v
	}
	return out, nil
}

func coerce(f Field, raw any) (any, error) {
	switch f.Type {
	case TypeBool:
		switch t := raw.(type) {
		case bool:
			return t, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(t))
			if err == nil {
				return b, nil
			}
		}
		return nil, typeError(f, raw)
	case TypeAddressList:
		items, ok := raw.([]any)
		if !ok {
			if list, ok := raw.([]string); ok && len(list) > 0 {
				return list, nil
			}
			return nil, typeError(f, raw)
		}
		list := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, typeError(f, raw)
			}
			list = append(list, strings.TrimSpace(s))
		}
		if len(list) == 0 {
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("field %s must list at least one address", f.Name))
		}
		return list, nil
	case TypeAmount, TypeUint:
		switch t := raw.(type) {
		case string:
			return strings.TrimSpace(t), nil
		case json.Number:
			return t.String(), nil
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(t), nil
		case int64:
			return strconv.FormatInt(t, 10), nil
		}
		return nil, typeError(f, raw)
	default:
		s, ok := raw.(string)
		if !ok {
			return nil, typeError(f, raw)
		}
		return strings.TrimSpace(s), nil
	}
}

func typeError(f Field, raw any) error {
	return clierr.New(clierr.CodeUsage, fmt.Sprintf("field %s must be %s, got %T", f.Name, f.Type, raw))
}

// JSONSchema renders s as a JSON-schema object for agent runtimes.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s))
	required := make([]string, 0)
	for _, f := range s {
		prop := map[string]any{"description": f.Description}
		switch f.Type {
		case TypeBool:
			prop["type"] = "boolean"
		case TypeAddressList:
			prop["type"] = "array"
			prop["items"] = map[string]any{"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"}
			prop["minItems"] = 1
		case TypeAddress:
			prop["type"] = "string"
			prop["pattern"] = "^0x[0-9a-fA-F]{40}$"
		case TypeAmount:
			prop["type"] = []string{"string", "number"}
		case TypeUint:
			prop["type"] = []string{"string", "integer"}
		default:
			prop["type"] = "string"
		}
		if len(f.Enum) > 0 {
			prop["enum"] = f.Enum
		}
		if f.Default != nil {
			prop["default"] = f.Default
		}
		props[f.Name] = prop
		if f.Required {
			required = append(required, f.Name)
		}
	}
	sort.Strings(required)
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
