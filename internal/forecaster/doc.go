// Package forecaster implements the statistical model zoo and the
// cross-validated model selection that picks a winner per series.
package forecaster
