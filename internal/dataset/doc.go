// Package dataset loads demand history from CSV files, validates the
// schema, imputes missing periods, resamples between frequencies, and
// summarizes dataset health and demand classification.
package dataset
