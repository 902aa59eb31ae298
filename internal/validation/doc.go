// Package validation checks the shape of wire payloads and query parameters
// with go-playground/validator struct tags before they reach the pipeline.
//
// It validates structure only (required fields, ranges, allowed values).
// Behavioral checks over derived features live in the validator package.
package validation
