package ingest

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	gtinLength      = 14
	minSerialLength = 5
	maxSerialLength = 20
	groupSeparator  = "\x1d"
)

// CodeValue is a structurally valid decoded marking symbol. The value is a
// GS1 element string: AI 01 (product item number) followed by AI 21
// (serial), optionally followed by separator-delimited crypto tail groups.
type CodeValue struct {
	Raw    string
	GTIN   string
	Serial string
}

// ParseValue validates the decoded symbol text and extracts its product
// item number and serial
func ParseValue(raw string) (*CodeValue, error) {
	rest, ok := strings.CutPrefix(raw, "01")
	if !ok {
		return nil, fmt.Errorf("value does not start with AI 01")
	}

	if len(rest) < gtinLength {
		return nil, fmt.Errorf("value too short for a product item number")
	}
	gtin := rest[:gtinLength]
	for _, r := range gtin {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("product item number contains non-digits")
		}
	}

	rest, ok = strings.CutPrefix(rest[gtinLength:], "21")
	if !ok {
		return nil, fmt.Errorf("value has no AI 21 serial group")
	}

	serial := rest
	if idx := strings.Index(rest, groupSeparator); idx >= 0 {
		serial = rest[:idx]
	}
	if len(serial) < minSerialLength || len(serial) > maxSerialLength {
		return nil, fmt.Errorf("serial length %d outside accepted range", len(serial))
	}

	return &CodeValue{Raw: raw, GTIN: gtin, Serial: serial}, nil
}

// PlaceholderValue synthesizes a unique stand-in for a page whose symbol
// could not be decoded, so the physical code is still accounted for
func PlaceholderValue() string {
	return "INVALID-" + uuid.New().String()
}
