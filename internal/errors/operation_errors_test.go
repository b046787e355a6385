package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/pkg/contracts/domain"
)

const gstinA = "27AAPFU0939F1ZV"

func TestOperationErrorFormatting(t *testing.T) {
	cause := errors.New("timeout waiting for table")

	tests := []struct {
		name string
		err  *OperationError
		want string
	}{
		{"fatal", NewFatalError("login failed", cause), "[fatal] login failed: timeout waiting for table"},
		{"taxpayer", NewTaxpayerError(domain.StageToll, gstinA, "extract toll data", cause),
			"[taxpayer] toll " + gstinA + ": extract toll data: timeout waiting for table"},
		{"item", NewItemError(domain.StageStockStatement, gstinA, "331000000001", cause),
			"[item] stock_statement " + gstinA + ": 331000000001: timeout waiting for table"},
		{"expected empty", NewExpectedEmptyError(domain.StageExtract, gstinA, "no exports"),
			"[expected_empty] extract " + gstinA + ": no exports"},
		{"validation", NewValidationError("job", "invalid job description", nil),
			"[validation] job: invalid job description"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}

	var nilErr *OperationError
	assert.Equal(t, "unknown operation error", nilErr.Error())
	assert.NoError(t, nilErr.Unwrap())
}

func TestErrorClassification(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name  string
		err   error
		typ   ErrorType
		fatal bool
	}{
		{"nil", nil, "", false},
		{"plain", cause, ErrorTypeTaxpayer, false},
		{"canceled", fmt.Errorf("fetch: %w", context.Canceled), ErrorTypeCancellation, true},
		{"wrapped fatal", fmt.Errorf("run: %w", NewFatalError("session", cause)), ErrorTypeFatal, true},
		{"item", NewItemError(domain.StageExtract, gstinA, "state 1", cause), ErrorTypeItem, false},
		{"expected empty", NewExpectedEmptyError(domain.StageExtract, gstinA, "none"), ErrorTypeExpectedEmpty, false},
		{"validation", NewValidationError("job", "bad", cause), ErrorTypeValidation, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, GetErrorType(tt.err))
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
		})
	}

	assert.ErrorIs(t, NewTaxpayerError(domain.StageExtract, gstinA, "merge", cause), cause)
}
