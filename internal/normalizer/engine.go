package normalizer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Engine converts one legacy spreadsheet into a modern workbook.
type Engine interface {
	Convert(ctx context.Context, src, dst string) error
}

// OfficeEngine drives a headless office suite (soffice) to convert binary
// .xls files.
type OfficeEngine struct {
	Path    string
	Timeout time.Duration
}

// Convert runs "<Path> --headless --convert-to xlsx --outdir <dir> <src>" and
// moves the result to dst when the suite picked a different name.
func (e *OfficeEngine) Convert(ctx context.Context, src, dst string) error {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	outDir := filepath.Dir(dst)
	cmd := exec.CommandContext(ctx, e.Path, "--headless", "--convert-to", "xlsx", "--outdir", outDir, src)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed on %s: %w: %s", filepath.Base(e.Path), filepath.Base(src), err, strings.TrimSpace(stderr.String()))
	}

	produced := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))+".xlsx")
	if produced != dst {
		if err := os.Rename(produced, dst); err != nil {
			return fmt.Errorf("failed to move converted file: %w", err)
		}
	}
	if _, err := os.Stat(dst); err != nil {
		return fmt.Errorf("converter produced no output for %s: %w", filepath.Base(src), err)
	}
	return nil
}
