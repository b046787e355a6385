package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/pkg/contracts/domain"
)

// Checkpoint suffixes for per-bill files. The primary detail checkpoint has none.
const (
	SuffixPrimary     = ""
	SuffixAlternate   = "_irn"
	SuffixPlaceholder = "_dist"
	SuffixToll        = "_toll"
)

// Sheet names appended by the toll merge.
const (
	SheetTollData = "TollData"
	SheetTollUniq = "TollUniq"
)

// TaxpayerPaths is the single source of truth for every file the worker
// reads or writes for one GSTIN.
type TaxpayerPaths struct {
	GSTIN string
	Dir   string
}

// TaxpayerPaths returns the absolute per-taxpayer output directory layout.
func (c *Config) TaxpayerPaths(gstin string) (TaxpayerPaths, error) {
	root, err := filepath.Abs(c.Output.RootDir)
	if err != nil {
		return TaxpayerPaths{}, fmt.Errorf("failed to resolve output root %s: %w", c.Output.RootDir, err)
	}
	return NewTaxpayerPaths(root, gstin), nil
}

// NewTaxpayerPaths builds the layout under root without touching the filesystem.
func NewTaxpayerPaths(root, gstin string) TaxpayerPaths {
	return TaxpayerPaths{GSTIN: gstin, Dir: filepath.Join(root, gstin)}
}

// Ensure creates the taxpayer directory.
func (p TaxpayerPaths) Ensure() error {
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", p.Dir, err)
	}
	return nil
}

// RawExportName is <dir>_<gstin>_<year>_<month>_<group>.xls, unique per tuple.
func (p TaxpayerPaths) RawExportName(dir domain.Direction, period domain.Period, group domain.StateGroup) string {
	return fmt.Sprintf("%s_%s_%d_%s_%s.xls", dir.Prefix(), p.GSTIN, period.Year, period.MonthName(), group.Name)
}

// RawExport is the full path of RawExportName.
func (p TaxpayerPaths) RawExport(dir domain.Direction, period domain.Period, group domain.StateGroup) string {
	return filepath.Join(p.Dir, p.RawExportName(dir, period, group))
}

// Exports lists this taxpayer's exports with the given extension (".xls" or
// ".xlsx") for both directions, inward first, each sorted by name.
func (p TaxpayerPaths) Exports(ext string) ([]string, error) {
	var files []string
	for _, dir := range domain.Directions {
		pattern := filepath.Join(p.Dir, fmt.Sprintf("%s_%s*%s", dir.Prefix(), p.GSTIN, ext))
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid export pattern %s: %w", pattern, err)
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}
	return files, nil
}

// MergedReport is the consolidated export workbook.
func (p TaxpayerPaths) MergedReport() string {
	return filepath.Join(p.Dir, fmt.Sprintf("Merged_%s.xlsx", p.GSTIN))
}

// Statement is the per-group stock statement workbook.
func (p TaxpayerPaths) Statement() string {
	return filepath.Join(p.Dir, fmt.Sprintf("Merged_%s_stockstmnt.xlsx", p.GSTIN))
}

// StatementAll is the flattened, de-duplicated statement workbook.
func (p TaxpayerPaths) StatementAll() string {
	return filepath.Join(p.Dir, fmt.Sprintf("Merged_%s_stockstmntall.xlsx", p.GSTIN))
}

// DetailCheckpoint is the checkpoint file for a bill's detail of the given shape.
func (p TaxpayerPaths) DetailCheckpoint(bill string, shape domain.DetailShape) string {
	return filepath.Join(p.Dir, bill+ShapeSuffix(shape)+".xlsx")
}

// TollCheckpoint is the checkpoint file for a bill's toll table.
func (p TaxpayerPaths) TollCheckpoint(bill string) string {
	return filepath.Join(p.Dir, bill+SuffixToll+".xlsx")
}

// ShapeSuffix maps a detail shape to its checkpoint suffix.
func ShapeSuffix(shape domain.DetailShape) string {
	switch shape {
	case domain.ShapeAlternate:
		return SuffixAlternate
	case domain.ShapePlaceholder:
		return SuffixPlaceholder
	default:
		return SuffixPrimary
	}
}

var checkpointPattern = regexp.MustCompile(`^([0-9]+)(_irn|_dist|_toll)?\.xlsx$`)

// Checkpoint is a per-bill file found on disk.
type Checkpoint struct {
	Path   string
	BillNo string
	Suffix string
}

// DetailCheckpoints lists detail checkpoints of every shape, sorted by path.
func (p TaxpayerPaths) DetailCheckpoints() ([]Checkpoint, error) {
	all, err := p.checkpoints()
	if err != nil {
		return nil, err
	}
	var out []Checkpoint
	for _, c := range all {
		if c.Suffix != SuffixToll {
			out = append(out, c)
		}
	}
	return out, nil
}

// TollCheckpoints lists toll checkpoints, sorted by path.
func (p TaxpayerPaths) TollCheckpoints() ([]Checkpoint, error) {
	all, err := p.checkpoints()
	if err != nil {
		return nil, err
	}
	var out []Checkpoint
	for _, c := range all {
		if c.Suffix == SuffixToll {
			out = append(out, c)
		}
	}
	return out, nil
}

func (p TaxpayerPaths) checkpoints() ([]Checkpoint, error) {
	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", p.Dir, err)
	}

	var out []Checkpoint
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := checkpointPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		out = append(out, Checkpoint{Path: filepath.Join(p.Dir, e.Name()), BillNo: m[1], Suffix: m[2]})
	}
	return out, nil
}

// ShapeForSuffix is the inverse of ShapeSuffix for detail checkpoints.
func ShapeForSuffix(suffix string) domain.DetailShape {
	switch suffix {
	case SuffixAlternate:
		return domain.ShapeAlternate
	case SuffixPlaceholder:
		return domain.ShapePlaceholder
	default:
		return domain.ShapePrimary
	}
}
