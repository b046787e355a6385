package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/pkg/contracts/domain"
)

// JobDescription is the job file written by the configuration dashboard.
// It is read once at start and never modified.
type JobDescription struct {
	URL       string   `json:"url,omitempty" validate:"omitempty,url"`
	Username  string   `json:"username" validate:"required"`
	Password  string   `json:"password" validate:"required"`
	GSTINs    []string `json:"gstins" validate:"required,min=1,dive,gstin"`
	StartDate string   `json:"start_date,omitempty"`
	EndDate   string   `json:"end_date,omitempty"`

	StartMonth string `json:"start_month" validate:"required,monthname"`
	EndMonth   string `json:"end_month" validate:"required,monthname"`
	StartYear  int    `json:"start_year" validate:"required,min=2017,max=2100"`
	EndYear    int    `json:"end_year" validate:"required,min=2017,max=2100"`

	ExtractEWBData        bool `json:"extract_ewb_data_flag"`
	PrepareStockStatement bool `json:"prepare_stock_statement_flag"`
	CheckTollData         bool `json:"check_toll_data_flag"`
}

// ErrInvalidJob wraps every job description validation failure.
var ErrInvalidJob = errors.New("invalid job description")

var gstinPattern = regexp.MustCompile(`^[0-9]{2}[A-Z0-9]{13}$`)

var jobValidator = newJobValidator()

func newJobValidator() *validator.Validate {
	v := validator.New()

	v.RegisterValidation("gstin", func(fl validator.FieldLevel) bool {
		return gstinPattern.MatchString(fl.Field().String())
	})
	v.RegisterValidation("monthname", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseMonth(fl.Field().String())
		return err == nil
	})

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// LoadJob reads, normalises and validates a job description file.
func LoadJob(path string) (*JobDescription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file %s: %w", path, err)
	}
	return ParseJob(data)
}

// ParseJob decodes a job description from JSON. GSTINs are trimmed,
// upper-cased and de-duplicated in first-seen order before validation.
func ParseJob(data []byte) (*JobDescription, error) {
	var job JobDescription
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}

	job.GSTINs = normalizeGSTINs(job.GSTINs)

	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

// Validate checks field rules and that the month range is not reversed.
func (j *JobDescription) Validate() error {
	if err := jobValidator.Struct(j); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidJob, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}

	start, end := j.StartPeriod(), j.EndPeriod()
	if end.Before(start) {
		return fmt.Errorf("%w: end period %s is before start period %s", ErrInvalidJob, end, start)
	}
	return nil
}

// StartPeriod returns the first reporting month. Call only on a validated job.
func (j *JobDescription) StartPeriod() domain.Period {
	m, _ := domain.ParseMonth(j.StartMonth)
	return domain.Period{Month: m, Year: j.StartYear}
}

// EndPeriod returns the last reporting month. Call only on a validated job.
func (j *JobDescription) EndPeriod() domain.Period {
	m, _ := domain.ParseMonth(j.EndMonth)
	return domain.Period{Month: m, Year: j.EndYear}
}

// Periods returns every reporting month of the job, both ends included.
func (j *JobDescription) Periods() []domain.Period {
	return domain.MonthRange(j.StartPeriod(), j.EndPeriod())
}

// Redacted returns a copy safe to log.
func (j JobDescription) Redacted() JobDescription {
	if j.Password != "" {
		j.Password = "****"
	}
	j.GSTINs = append([]string(nil), j.GSTINs...)
	return j
}

func normalizeGSTINs(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, g := range in {
		g = strings.ToUpper(strings.TrimSpace(g))
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	return out
}
