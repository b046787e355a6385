// Package config loads the worker's runtime configuration and the job
// description handed over by the configuration dashboard.
//
// Runtime settings come from Default(), then an optional config.yaml, then
// EWB_* environment variables, in increasing precedence:
//
//	EWB_BROWSER_HEADLESS=true
//	EWB_BROWSER_DEFAULTTIMEOUT=3m
//	EWB_OUTPUT_ROOTDIR=/data/output
//	EWB_RECONCILE_SCALETHRESHOLD=100
//
// The job description is a JSON file written by the dashboard (see LoadJob).
// TaxpayerPaths is the single source of truth for every per-GSTIN file name.
package config
