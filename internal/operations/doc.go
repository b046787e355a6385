// Package operations drives a job through its stages.
//
// A Runner establishes the portal session once, then runs each enabled
// stage (extract, stock_statement, toll) for every taxpayer in job order.
// Each (stage, taxpayer) pair has a StepState; failures are classified by
// the internal/errors taxonomy: fatal errors stop the run, taxpayer errors end one
// step and let the siblings continue, expected-empty outcomes are skips.
package operations
