package actions

import (
	"encoding/json"
	"testing"

	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
)

func TestSchemaDecodeStripsUnknownAndAppliesDefaults(t *testing.T) {
	s := Schema{
		{Name: "category", Type: TypeCategory, Required: true},
		{Name: "amount", Type: TypeAmount, Required: true},
		{Name: "useAsCollateral", Type: TypeBool, Default: false},
	}
	args, err := s.Decode(map[string]any{
		"category": " eth-defi ",
		"amount":   json.Number("1.5"),
		"extra":    "ignored",
	})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if args.Has("extra") {
		t.Fatal("expected unknown field to be stripped")
	}
	if args.String("category") != "eth-defi" || args.String("amount") != "1.5" {
		t.Fatalf("unexpected args %+v", args)
	}
	if !args.Has("useAsCollateral") || args.Bool("useAsCollateral") {
		t.Fatalf("expected default false, got %+v", args)
	}
}

func TestSchemaDecodeRejectsMissingAndMistyped(t *testing.T) {
	s := Schema{
		{Name: "path", Type: TypeAddressList, Required: true},
		{Name: "flag", Type: TypeBool},
	}
	if _, err := s.Decode(map[string]any{}); !clierr.IsCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for missing field, got %v", err)
	}
	if _, err := s.Decode(map[string]any{"path": "0xabc"}); !clierr.IsCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for scalar path, got %v", err)
	}
	args, err := s.Decode(map[string]any{"path": []any{"0x1", "0x2"}, "flag": "true"})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(args.Strings("path")) != 2 || !args.Bool("flag") {
		t.Fatalf("unexpected args %+v", args)
	}
}

func TestJSONSchemaListsRequiredFields(t *testing.T) {
	s := Schema{
		{Name: "b", Type: TypeAddress, Required: true},
		{Name: "a", Type: TypeUint, Required: true},
		{Name: "c", Type: TypeString},
	}
	out := s.JSONSchema()
	required := out["required"].([]string)
	if len(required) != 2 || required[0] != "a" || required[1] != "b" {
		t.Fatalf("unexpected required list %v", required)
	}
	if out["additionalProperties"] != false {
		t.Fatal("expected closed object schema")
	}
}
