package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/usi-verification-and-security/ptplib/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize writes a commented ptp.yml with every default spelled out into
// dir. If force is true an existing ptp.yml is replaced.
func Initialize(dir string, force bool) error {
	if !force {
		if err := CheckExisting(dir); err != nil {
			return err
		}
	}

	files, err := getTemplateFiles(dir)
	if err != nil {
		return err
	}

	if err := writeFiles(files); err != nil {
		return err
	}

	return validateCreatedFiles(dir)
}

// getTemplateFiles reads the embedded templates
func getTemplateFiles(dir string) ([]FileInfo, error) {
	content, err := templatesFS.ReadFile("templates/ptp.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read %s template: %w", config.DefaultFile, err)
	}
	return []FileInfo{{
		Path:        filepath.Join(dir, config.DefaultFile),
		Content:     content,
		Permissions: 0644,
	}}, nil
}

// writeFiles writes all template files to disk
func writeFiles(files []FileInfo) error {
	for _, file := range files {
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}
	return nil
}

// validateCreatedFiles checks that the written configuration loads
func validateCreatedFiles(dir string) error {
	if _, err := config.Load(filepath.Join(dir, config.DefaultFile)); err != nil {
		return fmt.Errorf("created %s is invalid: %w", config.DefaultFile, err)
	}
	return nil
}

// PrintSuccess prints the created file and the next steps
func PrintSuccess(printf func(format string, a ...any)) {
	printf("\nCreated:\n")
	printf("  ✓ %s\n", config.DefaultFile)
	printf("\nNext steps:\n")
	printf("  1. Set redis.url to share clauses between solvers\n")
	printf("  2. Run 'ptp run' for a local demo or 'ptp serve' to take commands from Redis\n")
}
