package rest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"sfs/forecast-engine/internal/config"
	"sfs/forecast-engine/internal/dataset"
	"sfs/forecast-engine/internal/report"
	"sfs/forecast-engine/internal/store"
	"sfs/forecast-engine/pkg/types"
)

// healthCheck handles GET /health
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// readyCheck handles GET /ready
func (s *Server) readyCheck(c *fiber.Ctx) error {
	ready := s.master != nil
	status := "ready"
	if !ready {
		status = "not_ready"
	}

	return c.JSON(ReadyResponse{
		Ready:     ready,
		Status:    status,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// ============================================================================
// Dataset handlers
// ============================================================================

// uploadDataset handles POST /api/v1/datasets
func (s *Server) uploadDataset(c *fiber.Ctx) error {
	ctx := context.Background()

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Multipart field 'file' is required: " + err.Error(),
		})
	}

	freq, err := types.ParseFrequency(c.FormValue("freq"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: fmt.Sprintf("Field 'freq' must be one of %v", types.Frequencies),
		})
	}

	name := c.FormValue("name")
	if name == "" {
		name = file.Filename
	}

	ext := ".csv"
	if strings.HasSuffix(file.Filename, ".csv.gz") {
		ext = ".csv.gz"
	}

	id := uuid.New().String()
	if err := os.MkdirAll(s.config.DataDir, 0o755); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "upload_failed",
			Message: "Failed to create data directory: " + err.Error(),
		})
	}
	path := filepath.Join(s.config.DataDir, id+ext)

	if err := c.SaveFile(file, path); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "upload_failed",
			Message: "Failed to store dataset: " + err.Error(),
		})
	}

	result, err := dataset.ValidateFile(path)
	if err != nil {
		os.Remove(path)
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_dataset",
			Message: "Failed to read dataset: " + err.Error(),
		})
	}
	if !result.OK() {
		os.Remove(path)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{
			Error:   "invalid_dataset",
			Message: strings.Join(result.Errors, "; "),
		})
	}

	frame, err := dataset.NewLoader(freq).Load(path)
	if err != nil {
		os.Remove(path)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{
			Error:   "invalid_dataset",
			Message: "Failed to load dataset: " + err.Error(),
		})
	}

	record := &store.Dataset{
		ID:         id,
		Name:       name,
		Path:       path,
		Freq:       string(freq),
		Rows:       frame.NumPoints(),
		Series:     frame.NumSeries(),
		SizeBytes:  file.Size,
		UploadedAt: time.Now(),
	}

	if err := s.saveDatasetRecord(ctx, record); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "upload_failed",
			Message: "Failed to catalog dataset: " + err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(toDatasetResponse(record))
}

// listDatasets handles GET /api/v1/datasets
func (s *Server) listDatasets(c *fiber.Ctx) error {
	ctx := context.Background()

	records, err := s.listDatasetRecords(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "list_failed",
			Message: "Failed to list datasets: " + err.Error(),
		})
	}

	datasets := make([]*DatasetResponse, len(records))
	for i, record := range records {
		datasets[i] = toDatasetResponse(record)
	}

	return c.JSON(DatasetListResponse{
		Datasets: datasets,
		Total:    len(datasets),
	})
}

// getDataset handles GET /api/v1/datasets/:id
func (s *Server) getDataset(c *fiber.Ctx) error {
	ctx := context.Background()
	datasetID := c.Params("id")

	record, err := s.getDatasetRecord(ctx, datasetID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Dataset not found: " + err.Error(),
		})
	}

	return c.JSON(toDatasetResponse(record))
}

// getDatasetHealth handles GET /api/v1/datasets/:id/health
func (s *Server) getDatasetHealth(c *fiber.Ctx) error {
	ctx := context.Background()
	datasetID := c.Params("id")

	record, err := s.getDatasetRecord(ctx, datasetID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Dataset not found: " + err.Error(),
		})
	}

	frame, err := dataset.NewLoader(types.Frequency(record.Freq)).Load(record.Path)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "health_failed",
			Message: "Failed to load dataset: " + err.Error(),
		})
	}

	return c.JSON(DatasetHealthResponse{
		DatasetID:      record.ID,
		Health:         dataset.ComputeHealth(frame),
		Classification: dataset.Classify(frame),
	})
}

// deleteDataset handles DELETE /api/v1/datasets/:id
func (s *Server) deleteDataset(c *fiber.Ctx) error {
	ctx := context.Background()
	datasetID := c.Params("id")

	record, err := s.getDatasetRecord(ctx, datasetID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Dataset not found: " + err.Error(),
		})
	}

	if err := s.deleteDatasetRecord(ctx, datasetID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "delete_failed",
			Message: "Failed to delete dataset: " + err.Error(),
		})
	}
	os.Remove(record.Path)

	return c.JSON(SuccessResponse{
		Success: true,
		Message: "Dataset deleted successfully",
	})
}

// ============================================================================
// Job handlers
// ============================================================================

// submitJob handles POST /api/v1/jobs
func (s *Server) submitJob(c *fiber.Ctx) error {
	ctx := context.Background()

	var req JobSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Failed to parse request body: " + err.Error(),
		})
	}

	var spec *types.JobSpec

	// A YAML document goes through the strict job file parser, so
	// unknown fields and bad frequencies fail here, not mid-job.
	if req.YAML != "" {
		jf, err := config.ParseJobFile([]byte(req.YAML))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "invalid_spec",
				Message: "Failed to parse job YAML: " + err.Error(),
			})
		}
		// A catalogued dataset carries its frequency; fill it in before
		// conversion so the daily default does not mask it.
		if jf.DatasetID != "" && jf.FreqIn == "" {
			if record, rerr := s.getDatasetRecord(ctx, jf.DatasetID); rerr == nil {
				jf.FreqIn = record.Freq
			}
		}
		parsed, err := jf.ToSpec()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "invalid_spec",
				Message: "Invalid job spec: " + err.Error(),
			})
		}
		spec = &parsed
	} else if req.Spec != nil {
		spec = req.Spec
	} else {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Either 'spec' or 'yaml' must be provided",
		})
	}

	// Resolve a catalogued dataset to its file before submission.
	if spec.DatasetID != "" {
		record, err := s.getDatasetRecord(ctx, spec.DatasetID)
		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Error:   "not_found",
				Message: "Dataset not found: " + err.Error(),
			})
		}
		spec.DatasetPath = record.Path
		if spec.FreqIn == "" {
			spec.FreqIn = types.Frequency(record.Freq)
		}
		if spec.Name == "" {
			spec.Name = record.Name
		}
	}

	jobID, err := s.master.Submit(ctx, spec)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "submission_failed",
			Message: "Failed to submit job: " + err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(JobSubmitResponse{
		JobID:  jobID,
		Status: "submitted",
	})
}

// listJobs handles GET /api/v1/jobs
func (s *Server) listJobs(c *fiber.Ctx) error {
	ctx := context.Background()

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	states, err := s.master.ListJobs(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "list_failed",
			Message: "Failed to list jobs: " + err.Error(),
		})
	}

	jobs := make([]*JobResponse, 0, len(states))
	seen := make(map[string]bool, len(states))
	for _, state := range states {
		jobs = append(jobs, toJobResponse(state))
		seen[state.ID] = true
	}

	// Fold in finished jobs from persistent history.
	if s.store != nil {
		records, err := s.store.ListJobs(ctx, limit)
		if err == nil {
			for _, record := range records {
				if seen[record.ID] {
					continue
				}
				jobs = append(jobs, toJobResponseFromRecord(record))
			}
		}
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].SubmitTime > jobs[j].SubmitTime })
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}

	return c.JSON(JobListResponse{
		Jobs:  jobs,
		Total: len(jobs),
	})
}

// getJob handles GET /api/v1/jobs/:id
func (s *Server) getJob(c *fiber.Ctx) error {
	ctx := context.Background()
	jobID := c.Params("id")

	state, err := s.master.GetJob(ctx, jobID)
	if err == nil {
		return c.JSON(toJobResponse(state))
	}

	if s.store != nil {
		if record, serr := s.store.GetJob(ctx, jobID); serr == nil {
			return c.JSON(toJobResponseFromRecord(record))
		}
	}

	return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
		Error:   "not_found",
		Message: "Job not found: " + err.Error(),
	})
}

// cancelJob handles DELETE /api/v1/jobs/:id
func (s *Server) cancelJob(c *fiber.Ctx) error {
	ctx := context.Background()
	jobID := c.Params("id")

	if err := s.master.Cancel(ctx, jobID); err != nil {
		return jobActionError(c, "cancel_failed", err)
	}

	return c.JSON(SuccessResponse{
		Success: true,
		Message: "Job cancelled successfully",
	})
}

// pauseJob handles POST /api/v1/jobs/:id/pause
func (s *Server) pauseJob(c *fiber.Ctx) error {
	ctx := context.Background()
	jobID := c.Params("id")

	if err := s.master.Pause(ctx, jobID); err != nil {
		return jobActionError(c, "pause_failed", err)
	}

	return c.JSON(SuccessResponse{
		Success: true,
		Message: "Job paused successfully",
	})
}

// resumeJob handles POST /api/v1/jobs/:id/resume
func (s *Server) resumeJob(c *fiber.Ctx) error {
	ctx := context.Background()
	jobID := c.Params("id")

	if err := s.master.Resume(ctx, jobID); err != nil {
		return jobActionError(c, "resume_failed", err)
	}

	return c.JSON(SuccessResponse{
		Success: true,
		Message: "Job resumed successfully",
	})
}

// jobActionError maps a master error to a REST response.
func jobActionError(c *fiber.Ctx, code string, err error) error {
	status := fiber.StatusConflict
	if strings.Contains(err.Error(), "not found") {
		status = fiber.StatusNotFound
		code = "not_found"
	}
	return c.Status(status).JSON(ErrorResponse{
		Error:   code,
		Message: err.Error(),
	})
}

// ============================================================================
// Report handlers
// ============================================================================

// fetchReport resolves a job report from the master or the cache.
func (s *Server) fetchReport(ctx context.Context, jobID string) (*types.JobReport, error) {
	rep, err := s.master.GetReport(ctx, jobID)
	if err == nil {
		return rep, nil
	}

	if s.cache != nil {
		if cached, cerr := s.cache.GetReport(ctx, jobID); cerr == nil && cached != nil {
			return cached, nil
		}
	}

	return nil, err
}

// getReport handles GET /api/v1/jobs/:id/report
func (s *Server) getReport(c *fiber.Ctx) error {
	ctx := context.Background()
	jobID := c.Params("id")

	rep, err := s.fetchReport(ctx, jobID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Report not available: " + err.Error(),
		})
	}

	// An optional JSONPath expression selects a fragment of the report.
	if path := c.Query("path"); path != "" {
		result, err := report.Query(rep, path)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "invalid_query",
				Message: err.Error(),
			})
		}
		return c.JSON(ReportQueryResponse{
			Path:   path,
			Result: result,
		})
	}

	return c.JSON(rep)
}

// getForecastCSV handles GET /api/v1/jobs/:id/forecast.csv
func (s *Server) getForecastCSV(c *fiber.Ctx) error {
	ctx := context.Background()
	jobID := c.Params("id")

	rep, err := s.fetchReport(ctx, jobID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Report not available: " + err.Error(),
		})
	}

	var buf bytes.Buffer
	if err := report.WriteForecastCSV(&buf, rep); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "export_failed",
			Message: "Failed to render forecast CSV: " + err.Error(),
		})
	}

	name := report.BaseName(&rep.Spec) + "_fcast.csv"
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Send(buf.Bytes())
}

// getResultsCSV handles GET /api/v1/jobs/:id/results.csv
func (s *Server) getResultsCSV(c *fiber.Ctx) error {
	ctx := context.Background()
	jobID := c.Params("id")

	rep, err := s.fetchReport(ctx, jobID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Report not available: " + err.Error(),
		})
	}

	var buf bytes.Buffer
	if err := report.WriteResultsCSV(&buf, rep); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "export_failed",
			Message: "Failed to render results CSV: " + err.Error(),
		})
	}

	name := report.BaseName(&rep.Spec) + "_results.csv"
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Send(buf.Bytes())
}

// ============================================================================
// Dataset catalog
// ============================================================================

func (s *Server) saveDatasetRecord(ctx context.Context, record *store.Dataset) error {
	if s.store != nil {
		return s.store.SaveDataset(ctx, record)
	}
	s.datasetsMu.Lock()
	defer s.datasetsMu.Unlock()
	s.datasets[record.ID] = record
	return nil
}

func (s *Server) getDatasetRecord(ctx context.Context, id string) (*store.Dataset, error) {
	if s.store != nil {
		return s.store.GetDataset(ctx, id)
	}
	s.datasetsMu.RLock()
	defer s.datasetsMu.RUnlock()
	record, ok := s.datasets[id]
	if !ok {
		return nil, fmt.Errorf("dataset not found: %s", id)
	}
	return record, nil
}

func (s *Server) listDatasetRecords(ctx context.Context) ([]*store.Dataset, error) {
	if s.store != nil {
		return s.store.ListDatasets(ctx)
	}
	s.datasetsMu.RLock()
	defer s.datasetsMu.RUnlock()
	records := make([]*store.Dataset, 0, len(s.datasets))
	for _, record := range s.datasets {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].UploadedAt.After(records[j].UploadedAt)
	})
	return records, nil
}

func (s *Server) deleteDatasetRecord(ctx context.Context, id string) error {
	if s.store != nil {
		return s.store.DeleteDataset(ctx, id)
	}
	s.datasetsMu.Lock()
	defer s.datasetsMu.Unlock()
	delete(s.datasets, id)
	return nil
}
