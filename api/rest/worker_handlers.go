package rest

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"sfs/forecast-engine/pkg/types"
)

// ============================================================================
// Worker control plane
// ============================================================================

// listWorkers handles GET /api/v1/workers
func (s *Server) listWorkers(c *fiber.Ctx) error {
	ctx := context.Background()

	if s.registry == nil {
		return c.JSON(WorkerListResponse{
			Workers: []*WorkerResponse{},
			Total:   0,
		})
	}

	workers, err := s.registry.ListWorkers(ctx, nil)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "list_failed",
			Message: "Failed to list workers: " + err.Error(),
		})
	}

	responses := make([]*WorkerResponse, len(workers))
	for i, worker := range workers {
		status, _ := s.registry.GetWorkerStatus(ctx, worker.ID)
		responses[i] = toWorkerResponse(worker, status)
	}

	return c.JSON(WorkerListResponse{
		Workers: responses,
		Total:   len(responses),
	})
}

// getWorker handles GET /api/v1/workers/:id
func (s *Server) getWorker(c *fiber.Ctx) error {
	ctx := context.Background()
	workerID := c.Params("id")

	if workerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Worker ID is required",
		})
	}

	if s.registry == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Worker not found",
		})
	}

	worker, err := s.registry.GetWorker(ctx, workerID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Worker not found: " + err.Error(),
		})
	}

	status, _ := s.registry.GetWorkerStatus(ctx, workerID)
	return c.JSON(toWorkerResponse(worker, status))
}

// drainWorker handles POST /api/v1/workers/:id/drain
func (s *Server) drainWorker(c *fiber.Ctx) error {
	ctx := context.Background()
	workerID := c.Params("id")

	if workerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Worker ID is required",
		})
	}

	if s.registry == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Worker not found",
		})
	}

	if err := s.registry.Drain(ctx, workerID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "drain_failed",
			Message: "Failed to drain worker: " + err.Error(),
		})
	}

	// Tell the worker itself on its next heartbeat.
	s.enqueueCommand(workerID, &ControlCommand{Type: CommandDrain})

	return c.JSON(SuccessResponse{
		Success: true,
		Message: "Worker drain initiated successfully",
	})
}

// ============================================================================
// Worker communication plane
// ============================================================================

// registerWorker handles POST /api/v1/workers/register
func (s *Server) registerWorker(c *fiber.Ctx) error {
	ctx := context.Background()

	var req WorkerRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Failed to parse request body: " + err.Error(),
		})
	}

	if s.registry == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(WorkerRegisterResponse{
			Accepted: false,
			Error:    "registry unavailable",
		})
	}

	workerID := req.WorkerID
	if workerID == "" {
		workerID = uuid.New().String()
	}
	if req.Slots <= 0 {
		req.Slots = 1
	}

	info := &types.WorkerInfo{
		ID:       workerID,
		Address:  req.Address,
		Slots:    req.Slots,
		Labels:   req.Labels,
		Version:  req.Version,
		JoinTime: time.Now(),
	}

	if err := s.registry.Register(ctx, info); err != nil {
		return c.Status(fiber.StatusConflict).JSON(WorkerRegisterResponse{
			Accepted: false,
			Error:    err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(WorkerRegisterResponse{
		Accepted:            true,
		AssignedID:          workerID,
		HeartbeatIntervalMS: s.config.HeartbeatInterval.Milliseconds(),
		MasterID:            s.nodeID,
	})
}

// workerHeartbeat handles POST /api/v1/workers/:id/heartbeat
func (s *Server) workerHeartbeat(c *fiber.Ctx) error {
	ctx := context.Background()
	workerID := c.Params("id")

	var req WorkerHeartbeatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Failed to parse request body: " + err.Error(),
		})
	}

	if s.registry == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:   "unavailable",
			Message: "Registry unavailable",
		})
	}

	if err := s.registry.UpdateHeartbeat(ctx, workerID, req.Metrics); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Worker not registered: " + err.Error(),
		})
	}

	return c.JSON(WorkerHeartbeatResponse{
		Commands:  s.takeCommands(workerID),
		Timestamp: time.Now().UnixMilli(),
	})
}

// leaseTasks handles GET /api/v1/workers/:id/tasks
func (s *Server) leaseTasks(c *fiber.Ctx) error {
	ctx := context.Background()
	workerID := c.Params("id")

	max := 1
	if v := c.Query("max"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			max = n
		}
	}

	batches, err := s.master.LeaseBatches(ctx, workerID, max)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "lease_failed",
			Message: "Failed to lease tasks: " + err.Error(),
		})
	}

	if batches == nil {
		batches = []*types.TaskBatch{}
	}
	return c.JSON(BatchLeaseResponse{Batches: batches})
}

// receiveTaskResult handles POST /api/v1/tasks/:id/result
func (s *Server) receiveTaskResult(c *fiber.Ctx) error {
	ctx := context.Background()
	batchID := c.Params("id")

	var result types.BatchResult
	if err := c.BodyParser(&result); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Failed to parse request body: " + err.Error(),
		})
	}
	if result.BatchID == "" {
		result.BatchID = batchID
	}

	if err := s.master.SubmitBatchResult(ctx, &result); err != nil {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Error:   "result_rejected",
			Message: "Failed to record batch result: " + err.Error(),
		})
	}

	return c.JSON(SuccessResponse{
		Success: true,
		Message: "Batch result recorded",
	})
}

// unregisterWorker handles POST /api/v1/workers/:id/unregister
func (s *Server) unregisterWorker(c *fiber.Ctx) error {
	ctx := context.Background()
	workerID := c.Params("id")

	if s.registry == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:   "unavailable",
			Message: "Registry unavailable",
		})
	}

	if err := s.registry.Unregister(ctx, workerID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Worker not registered: " + err.Error(),
		})
	}

	return c.JSON(SuccessResponse{
		Success: true,
		Message: "Worker unregistered successfully",
	})
}
