// Package master implements the coordinating node of the forecast
// engine: worker registration, batch scheduling, result aggregation
// and the job lifecycle.
package master
