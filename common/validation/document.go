package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// allowed source document extensions
var allowedExtensions = map[string]bool{
	".pdf": true,
}

// ValidateDocumentPath rejects source paths that could escape the upload
// area or point at something other than a scanned document
func ValidateDocumentPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("document path is empty")
	}

	if !filepath.IsAbs(path) {
		return fmt.Errorf("document path must be absolute: %s", path)
	}

	if strings.Contains(path, "..") {
		return fmt.Errorf("document path must not contain parent references: %s", path)
	}

	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("document path contains a null byte")
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !allowedExtensions[ext] {
		return fmt.Errorf("unsupported document extension %q", ext)
	}

	return nil
}
