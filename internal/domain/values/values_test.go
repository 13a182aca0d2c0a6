package values

import (
	"encoding/json"
	"strings"
	"testing"

	"tessera/internal/core/apperror"
)

func TestIsForbiddenKey(t *testing.T) {
	for _, key := range []string{"__proto__", "constructor", "prototype"} {
		if !IsForbiddenKey(key) {
			t.Errorf("%q should be forbidden", key)
		}
	}
	if IsForbiddenKey("name") {
		t.Error("ordinary key flagged as forbidden")
	}
}

func TestFieldValues_ScanPreservesNumberPrecision(t *testing.T) {
	var fv FieldValues
	if err := fv.Scan([]byte(`{"price": 10.500000000000001, "count": 3}`)); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	n, ok := fv["price"].(json.Number)
	if !ok {
		t.Fatalf("price = %T, want json.Number", fv["price"])
	}
	if n.String() != "10.500000000000001" {
		t.Errorf("price = %s, precision lost", n)
	}
}

func TestFieldValues_IsMissing(t *testing.T) {
	fv := FieldValues{"a": "x", "b": nil, "c": ""}

	tests := []struct {
		key  string
		want bool
	}{
		{"a", false},
		{"b", true},  // explicit null
		{"c", false}, // empty string is a present value
		{"d", true},  // absent
	}
	for _, tt := range tests {
		if got := fv.IsMissing(tt.key); got != tt.want {
			t.Errorf("IsMissing(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestFieldValues_StripForbidden(t *testing.T) {
	fv := FieldValues{"name": "x", "__proto__": "evil"}

	if !fv.StripForbidden() {
		t.Error("expected StripForbidden to report a change")
	}
	if fv.Has("__proto__") {
		t.Error("forbidden key survived")
	}
	if fv.StripForbidden() {
		t.Error("second pass should report no change")
	}
}

func TestFieldValues_CloneIsIndependent(t *testing.T) {
	fv := FieldValues{"a": "x"}
	clone := fv.Clone()
	clone.Set("a", "y")

	if fv.GetString("a") != "x" {
		t.Error("mutating clone changed original")
	}
}

func TestSanitizeMetadata(t *testing.T) {
	t.Run("nil in nil out", func(t *testing.T) {
		m, err := SanitizeMetadata(nil)
		if err != nil || m != nil {
			t.Fatalf("got %v, %v", m, err)
		}
	})

	t.Run("strips forbidden keys recursively", func(t *testing.T) {
		m, err := SanitizeMetadata(map[string]any{
			"ok":        "value",
			"__proto__": "evil",
			"nested": map[string]any{
				"constructor": "evil",
				"keep":        true,
			},
			"list": []any{
				map[string]any{"prototype": 1, "keep": 2},
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := m["__proto__"]; ok {
			t.Error("top-level forbidden key survived")
		}
		nested := m["nested"].(map[string]any)
		if _, ok := nested["constructor"]; ok {
			t.Error("nested forbidden key survived")
		}
		inList := m["list"].([]any)[0].(map[string]any)
		if _, ok := inList["prototype"]; ok {
			t.Error("forbidden key inside array element survived")
		}
	})

	t.Run("size cap", func(t *testing.T) {
		_, err := SanitizeMetadata(map[string]any{
			"blob": strings.Repeat("x", MaxMetadataBytes),
		})
		appErr, ok := apperror.AsAppError(err)
		if !ok || appErr.Code != apperror.CodeMetadataInvalid {
			t.Fatalf("err = %v, want %s", err, apperror.CodeMetadataInvalid)
		}
	})

	t.Run("depth cap", func(t *testing.T) {
		leaf := map[string]any{"v": 1}
		for i := 0; i < 40; i++ {
			leaf = map[string]any{"next": leaf}
		}
		if _, err := SanitizeMetadata(leaf); err == nil {
			t.Fatal("expected depth error")
		}
	})
}
