package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDocumentPath(t *testing.T) {
	cases := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"valid pdf", "/uploads/scans/part-42.pdf", false},
		{"uppercase extension", "/uploads/scans/PART.PDF", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"relative", "scans/part.pdf", true},
		{"parent traversal", "/uploads/../etc/passwd.pdf", true},
		{"null byte", "/uploads/part\x00.pdf", true},
		{"wrong extension", "/uploads/part.zip", true},
		{"no extension", "/uploads/part", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDocumentPath(tc.path)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
