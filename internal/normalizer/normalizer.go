// Package normalizer turns the portal's legacy .xls exports into .xlsx
// workbooks and merges them into the taxpayer's consolidated report.
package normalizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/config"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/infrastructure"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/workbook"
)

// ErrNoInputs is returned when a taxpayer has no files to convert or merge.
// Callers log it as an expected outcome.
var ErrNoInputs = errors.New("no input files")

// Format is the detected body of a legacy export.
type Format int

const (
	FormatUnknown Format = iota
	FormatHTML
	FormatBIFF
	FormatOOXML
)

func (f Format) String() string {
	switch f {
	case FormatHTML:
		return "html"
	case FormatBIFF:
		return "biff"
	case FormatOOXML:
		return "ooxml"
	default:
		return "unknown"
	}
}

var (
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	zipMagic = []byte("PK\x03\x04")
)

// DetectFormat sniffs the first bytes of an export. The portal's "Excel"
// download is usually an HTML grid saved with an .xls name.
func DetectFormat(head []byte) Format {
	switch {
	case bytes.HasPrefix(head, oleMagic):
		return FormatBIFF
	case bytes.HasPrefix(head, zipMagic):
		return FormatOOXML
	}
	text := strings.ToLower(string(bytes.TrimLeft(bytes.TrimPrefix(head, []byte("\xEF\xBB\xBF")), " \t\r\n")))
	if strings.HasPrefix(text, "<") || strings.Contains(text, "<table") {
		return FormatHTML
	}
	return FormatUnknown
}

// ConvertSummary counts the outcome of one ConvertLegacy call.
type ConvertSummary struct {
	Converted int
	Skipped   int
	Failed    int
}

// Normalizer converts and merges a taxpayer's exports.
type Normalizer struct {
	engine  Engine
	logger  *slog.Logger
	metrics *infrastructure.PipelineMetrics
}

// New returns a Normalizer. engine handles binary files; it may be nil when
// only HTML exports are expected.
func New(engine Engine, logger *slog.Logger, metrics *infrastructure.PipelineMetrics) *Normalizer {
	return &Normalizer{
		engine:  engine,
		logger:  infrastructure.WithComponent(logger, "normalizer"),
		metrics: metrics,
	}
}

// ConvertLegacy writes a sibling .xlsx for every In_/Out_ .xls export of the
// taxpayer. Targets newer than their source are left alone. A file that
// fails is logged and skipped.
func (n *Normalizer) ConvertLegacy(ctx context.Context, paths config.TaxpayerPaths) (ConvertSummary, error) {
	var summary ConvertSummary

	files, err := paths.Exports(".xls")
	if err != nil {
		return summary, err
	}
	if len(files) == 0 {
		n.logger.InfoContext(ctx, "No .xls files found for conversion", "dir", paths.Dir)
		return summary, ErrNoInputs
	}

	n.logger.InfoContext(ctx, "Starting .xls to .xlsx conversion", "files", len(files))
	for _, src := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		dst := src + "x"
		if upToDate(src, dst) {
			summary.Skipped++
			n.metrics.RecordConversion(ctx, "skipped")
			continue
		}

		n.logger.InfoContext(ctx, "Converting file", "file", filepath.Base(src))
		if err := n.convert(ctx, src, dst); err != nil {
			summary.Failed++
			n.metrics.RecordConversion(ctx, "failed")
			n.logger.ErrorContext(ctx, "Error during .xls to .xlsx conversion",
				"file", filepath.Base(src), "error", err)
			continue
		}
		summary.Converted++
		n.metrics.RecordConversion(ctx, "converted")
	}

	n.logger.InfoContext(ctx, ".xls to .xlsx conversion finished",
		"converted", summary.Converted, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

func (n *Normalizer) convert(ctx context.Context, src, dst string) error {
	head, err := readHead(src, 4096)
	if err != nil {
		return err
	}

	switch format := DetectFormat(head); format {
	case FormatHTML:
		return convertHTML(src, dst)
	case FormatOOXML:
		return copyFile(src, dst)
	default:
		if n.engine == nil {
			return fmt.Errorf("no conversion engine configured for %s file %s", format, filepath.Base(src))
		}
		return n.engine.Convert(ctx, src, dst)
	}
}

func convertHTML(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	tables, err := workbook.ParseHTMLTables(f)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(src), err)
	}

	// The grid is the table with the most rows; layout tables around it are noise.
	best := tables[0]
	for _, t := range tables[1:] {
		if t.Len() > best.Len() {
			best = t
		}
	}
	return workbook.WriteTable(dst, "Sheet1", best)
}

// Merge concatenates every In_/Out_ .xlsx export of the taxpayer under the
// union of their headers and writes the consolidated report. It returns the
// number of rows written.
func (n *Normalizer) Merge(ctx context.Context, paths config.TaxpayerPaths) (int, error) {
	files, err := paths.Exports(".xlsx")
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		n.logger.InfoContext(ctx, "No .xlsx files found for merging", "dir", paths.Dir)
		return 0, ErrNoInputs
	}

	var tables []*workbook.Table
	for _, file := range files {
		n.logger.InfoContext(ctx, "Merging file", "file", filepath.Base(file))
		t, err := workbook.ReadTable(file, "")
		if err != nil {
			n.logger.ErrorContext(ctx, "Error reading export", "file", filepath.Base(file), "error", err)
			continue
		}
		if t.Len() == 0 {
			continue
		}
		tables = append(tables, t)
	}

	if len(tables) == 0 {
		n.logger.InfoContext(ctx, "No valid Excel files to merge")
		return 0, ErrNoInputs
	}

	merged := workbook.Concat(tables...)
	if err := workbook.WriteTable(paths.MergedReport(), "Sheet1", merged); err != nil {
		return 0, err
	}

	n.logger.InfoContext(ctx, "EWB In & Out files merge was successful", "rows", merged.Len())
	return merged.Len(), nil
}

func upToDate(src, dst string) bool {
	si, err := os.Stat(src)
	if err != nil {
		return false
	}
	di, err := os.Stat(dst)
	if err != nil {
		return false
	}
	return !di.ModTime().Before(si.ModTime())
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}
