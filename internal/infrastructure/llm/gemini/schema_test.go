package gemini

import (
	"reflect"
	"testing"
)

func TestSimplifySchemaStripsAdditionalProperties(t *testing.T) {
	in := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"nested": map[string]any{
				"type":                 "object",
				"additionalProperties": true,
			},
		},
	}
	out := SimplifySchema(in)

	if _, ok := out["additionalProperties"]; ok {
		t.Error("additionalProperties must be stripped")
	}
	nested := out["properties"].(map[string]any)["nested"].(map[string]any)
	if _, ok := nested["additionalProperties"]; ok {
		t.Error("nested additionalProperties must be stripped")
	}
}

func TestSimplifySchemaCollapsesNullableType(t *testing.T) {
	in := map[string]any{"type": []any{"string", "null"}}
	out := SimplifySchema(in)
	if out["type"] != "string" {
		t.Errorf("type = %v, want string", out["type"])
	}
}

func TestSimplifySchemaStringFormats(t *testing.T) {
	tests := []struct {
		format string
		keep   bool
		want   string
	}{
		{"date-time", true, "date-time"},
		{"enum", true, "enum"},
		{"uri", false, ""},
		{"email", false, ""},
		{"uuid", false, ""},
		{"uint64", true, "int64"},
		{"int64", true, "int64"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			out := SimplifySchema(map[string]any{"type": "string", "format": tt.format})
			got, ok := out["format"]
			if ok != tt.keep {
				t.Fatalf("format kept = %v, want %v", ok, tt.keep)
			}
			if tt.keep && got != tt.want {
				t.Errorf("format = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSimplifySchemaRecursesIntoItems(t *testing.T) {
	in := map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":                 []any{"integer", "null"},
			"format":               "uint64",
			"additionalProperties": false,
		},
	}
	out := SimplifySchema(in)
	items := out["items"].(map[string]any)

	want := map[string]any{"type": "integer", "format": "int64"}
	if !reflect.DeepEqual(items, want) {
		t.Errorf("items = %v, want %v", items, want)
	}
}

func TestSimplifySchemaDoesNotMutateInput(t *testing.T) {
	in := map[string]any{"type": "object", "additionalProperties": false}
	_ = SimplifySchema(in)
	if _, ok := in["additionalProperties"]; !ok {
		t.Error("input schema must not be mutated")
	}
}
