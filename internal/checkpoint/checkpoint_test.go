package checkpoint

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/config"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/shared/testutil"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/pkg/contracts/domain"
)

var header = domain.BillHeader{
	Distance:      "412",
	TransportType: "Regular",
	FromAddress:   "PUNE MAHARASHTRA",
	ToAddress:     "JAIPUR RAJASTHAN",
}

func newPaths(t *testing.T) config.TaxpayerPaths {
	t.Helper()
	p := config.NewTaxpayerPaths(t.TempDir(), "27AAPFU0939F1ZV")
	require.NoError(t, p.Ensure())
	return p
}

func TestDetailRoundTripPerShape(t *testing.T) {
	tests := []struct {
		name   string
		result domain.DetailResult
	}{
		{
			name: "primary",
			result: domain.Primary("331000000001", header, []domain.DetailItem{
				{HSN: "8471", Quantity: "150 KG", TaxableAmount: "12500.5"},
				{HSN: "0401", Quantity: "20 NOS", TaxableAmount: "300"},
			}),
		},
		{
			name: "alternate",
			result: domain.Alternate("331000000002", header, []domain.DetailItem{
				{HSN: "7208", Quantity: "2.5", Unit: "MTS", TaxableAmount: "98000"},
			}),
		},
		{
			name:   "placeholder",
			result: domain.Placeholder("331000000003", header),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paths := newPaths(t)
			path, err := WriteDetail(paths, tt.result)
			require.NoError(t, err)
			assert.Equal(t, paths.DetailCheckpoint(tt.result.BillNo, tt.result.Shape), path)
			assert.True(t, HasDetail(paths, tt.result.BillNo))

			logger, _ := testutil.NewTestLogger(t)
			results, loaded, err := LoadDetails(paths, logger)
			require.NoError(t, err)
			require.Len(t, results, 1)
			require.Len(t, loaded, 1)
			assert.Equal(t, tt.result, results[0])
		})
	}
}

func TestWriteDetailRejectsEmpty(t *testing.T) {
	paths := newPaths(t)
	_, err := WriteDetail(paths, domain.Empty("331000000004", header))
	assert.ErrorIs(t, err, ErrEmptyResult)
	assert.False(t, HasDetail(paths, "331000000004"))
}

func TestTollRoundTrip(t *testing.T) {
	paths := newPaths(t)
	table := domain.TollTable{
		BillNo:  "331000000001",
		Headers: []string{"Toll Plaza", "State", "Date"},
		Rows: [][]string{
			{"Khed Shivapur", "Maharashtra", "05/01/2024"},
			{"Shahjahanpur", "Rajasthan", "06/01/2024"},
		},
	}
	_, err := WriteToll(paths, table)
	require.NoError(t, err)
	assert.True(t, HasToll(paths, "331000000001"))
	assert.False(t, HasDetail(paths, "331000000001"))

	logger, _ := testutil.NewTestLogger(t)
	tables, err := LoadTolls(paths, logger)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, table, tables[0])

	_, err = WriteToll(paths, domain.TollTable{BillNo: "331000000002"})
	assert.ErrorIs(t, err, ErrEmptyResult)
}

func TestUnreadableCheckpointIsLoggedAndSkipped(t *testing.T) {
	paths := newPaths(t)
	require.NoError(t, os.WriteFile(paths.DetailCheckpoint("331000000009", domain.ShapePrimary), []byte("junk"), 0644))
	_, err := WriteDetail(paths, domain.Placeholder("331000000003", header))
	require.NoError(t, err)

	logger, handler := testutil.NewTestLogger(t)
	results, loaded, err := LoadDetails(paths, logger)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Len(t, loaded, 1)
	assert.True(t, handler.ContainsMessage("Error reading detail checkpoint"))
}

func TestRemove(t *testing.T) {
	paths := newPaths(t)
	_, err := WriteDetail(paths, domain.Placeholder("331000000003", header))
	require.NoError(t, err)
	found, err := paths.DetailCheckpoints()
	require.NoError(t, err)

	missing := config.Checkpoint{Path: paths.DetailCheckpoint("331000000005", domain.ShapePrimary)}
	logger, handler := testutil.NewTestLogger(t)
	assert.Equal(t, 1, Remove(append(found, missing), logger))
	assert.False(t, HasDetail(paths, "331000000003"))
	assert.True(t, handler.ContainsMessage("Error removing checkpoint"))
}
