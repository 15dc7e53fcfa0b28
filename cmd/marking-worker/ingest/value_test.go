package ingest

import (
	"strings"
	"testing"
)

func TestParseValue(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		gtin    string
		serial  string
		wantErr bool
	}{
		{
			name:   "plain gtin and serial",
			raw:    "0104600000000017" + "21abc123",
			gtin:   "04600000000017",
			serial: "abc123",
		},
		{
			name:   "crypto tail after group separator",
			raw:    "010460000000001721xyz/9=\x1d93dGVz\x1d92dGVzdA==",
			gtin:   "04600000000017",
			serial: "xyz/9=",
		},
		{
			name:   "serial at max length",
			raw:    "010460000000001721" + strings.Repeat("s", 20),
			gtin:   "04600000000017",
			serial: strings.Repeat("s", 20),
		},
		{name: "missing AI 01 prefix", raw: "04600000000017" + "21abc123", wantErr: true},
		{name: "short product item number", raw: "01046021abc123", wantErr: true},
		{name: "letters inside product item number", raw: "0104600A0000001721abc123", wantErr: true},
		{name: "missing serial group", raw: "0104600000000017", wantErr: true},
		{name: "serial too short", raw: "010460000000001721abcd", wantErr: true},
		{name: "serial too long", raw: "010460000000001721" + strings.Repeat("s", 21), wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			value, err := ParseValue(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if value.GTIN != tc.gtin {
				t.Errorf("gtin = %q, want %q", value.GTIN, tc.gtin)
			}
			if value.Serial != tc.serial {
				t.Errorf("serial = %q, want %q", value.Serial, tc.serial)
			}
			if value.Raw != tc.raw {
				t.Errorf("raw = %q, want %q", value.Raw, tc.raw)
			}
		})
	}
}

func TestPlaceholderValueNeverParses(t *testing.T) {
	placeholder := PlaceholderValue()
	if _, err := ParseValue(placeholder); err == nil {
		t.Fatalf("placeholder %q must not parse as a real value", placeholder)
	}
	if placeholder == PlaceholderValue() {
		t.Fatal("placeholders must be unique")
	}
}
