package util

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeJSONMap(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"object", `{"status":"pulling"}`, false},
		{"trailing content", `{"a":1}{"b":2}`, true},
		{"truncated", `{"status":`, true},
		{"null", `null`, true},
		{"array", `[1,2]`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJSONMap([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeJSONMap(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}

func TestInt64FieldKeepsPrecision(t *testing.T) {
	m, err := DecodeJSONMap([]byte(`{"total":9007199254740993,"frac":12.9,"exp":1e3,"s":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := Int64Field(m, "total"); !ok || v != 9007199254740993 {
		t.Errorf("total = %d, %v", v, ok)
	}
	if v, ok := Int64Field(m, "frac"); !ok || v != 12 {
		t.Errorf("frac = %d, %v", v, ok)
	}
	if v, ok := Int64Field(m, "exp"); !ok || v != 1000 {
		t.Errorf("exp = %d, %v", v, ok)
	}
	if _, ok := Int64Field(m, "s"); ok {
		t.Error("string field must not coerce")
	}
	if _, ok := Int64Field(m, "missing"); ok {
		t.Error("missing field must report !ok")
	}
}

func TestToInt64(t *testing.T) {
	tests := []struct {
		in   any
		want int64
		ok   bool
	}{
		{int(3), 3, true},
		{int64(4), 4, true},
		{float64(5.7), 5, true},
		{json.Number("6"), 6, true},
		{json.Number("abc"), 0, false},
		{"7", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := ToInt64(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ToInt64(%#v) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPrettyJSON(t *testing.T) {
	got := PrettyJSON(map[string]any{"family": "llama"})
	if !strings.Contains(got, "\n  \"family\": \"llama\"") {
		t.Errorf("PrettyJSON = %q", got)
	}
	if got := PrettyJSON(map[string]string{"stop": "<|eot_id|>"}); !strings.Contains(got, `"<|eot_id|>"`) || strings.HasSuffix(got, "\n") {
		t.Errorf("PrettyJSON = %q", got)
	}
}
