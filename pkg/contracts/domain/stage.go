package domain

// Stage identifiers, in execution order.
const (
	StageExtract        = "extract"
	StageStockStatement = "stock_statement"
	StageToll           = "toll"
)
