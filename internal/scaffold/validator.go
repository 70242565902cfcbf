package scaffold

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/usi-verification-and-security/ptplib/internal/config"
)

// CheckExisting returns an error if dir already holds a ptp.yml.
func CheckExisting(dir string) error {
	if _, err := os.Stat(filepath.Join(dir, config.DefaultFile)); err == nil {
		return fmt.Errorf("project already initialized\n\nFound existing: %s\n\nUse 'ptp init --force' to overwrite it", config.DefaultFile)
	}
	return nil
}
