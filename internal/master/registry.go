package master

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sfs/forecast-engine/pkg/types"
)

// InMemoryWorkerRegistry implements WorkerRegistry with map storage.
type InMemoryWorkerRegistry struct {
	workers map[string]*types.WorkerInfo
	status  map[string]*types.WorkerStatus

	subscribers []chan *types.WorkerEvent
	subMu       sync.RWMutex

	mu sync.RWMutex
}

// NewInMemoryWorkerRegistry creates an empty registry.
func NewInMemoryWorkerRegistry() *InMemoryWorkerRegistry {
	return &InMemoryWorkerRegistry{
		workers:     make(map[string]*types.WorkerInfo),
		status:      make(map[string]*types.WorkerStatus),
		subscribers: make([]chan *types.WorkerEvent, 0),
	}
}

// Register registers a new worker.
func (r *InMemoryWorkerRegistry) Register(ctx context.Context, worker *types.WorkerInfo) error {
	if worker == nil {
		return fmt.Errorf("worker cannot be nil")
	}
	if worker.ID == "" {
		return fmt.Errorf("worker ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[worker.ID]; exists {
		return fmt.Errorf("worker already registered: %s", worker.ID)
	}

	if worker.JoinTime.IsZero() {
		worker.JoinTime = time.Now()
	}
	r.workers[worker.ID] = worker
	r.status[worker.ID] = &types.WorkerStatus{
		State:    types.WorkerOnline,
		LastSeen: time.Now(),
	}

	r.notifyEvent(&types.WorkerEvent{
		Type:     types.WorkerEventRegistered,
		WorkerID: worker.ID,
		Worker:   worker,
	})

	return nil
}

// Unregister removes a worker.
func (r *InMemoryWorkerRegistry) Unregister(ctx context.Context, workerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	worker, exists := r.workers[workerID]
	if !exists {
		return fmt.Errorf("worker not found: %s", workerID)
	}

	delete(r.workers, workerID)
	delete(r.status, workerID)

	r.notifyEvent(&types.WorkerEvent{
		Type:     types.WorkerEventUnregistered,
		WorkerID: workerID,
		Worker:   worker,
	})

	return nil
}

// UpdateHeartbeat refreshes the last-seen time and load metrics line,
// and revives offline workers.
func (r *InMemoryWorkerRegistry) UpdateHeartbeat(ctx context.Context, workerID string, metrics *types.WorkerMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, exists := r.status[workerID]
	if !exists {
		return fmt.Errorf("worker not found: %s", workerID)
	}

	status.LastSeen = time.Now()
	if metrics != nil {
		status.Metrics = metrics
		status.Load = metrics.CPUUsage
	}

	if status.State == types.WorkerOffline {
		status.State = types.WorkerOnline
		r.notifyEvent(&types.WorkerEvent{
			Type:     types.WorkerEventOnline,
			WorkerID: workerID,
			Worker:   r.workers[workerID],
		})
	}

	return nil
}

// GetWorker returns a single worker's registration.
func (r *InMemoryWorkerRegistry) GetWorker(ctx context.Context, workerID string) (*types.WorkerInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	worker, exists := r.workers[workerID]
	if !exists {
		return nil, fmt.Errorf("worker not found: %s", workerID)
	}
	return worker, nil
}

// GetWorkerStatus returns a worker's current status.
func (r *InMemoryWorkerRegistry) GetWorkerStatus(ctx context.Context, workerID string) (*types.WorkerStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, exists := r.status[workerID]
	if !exists {
		return nil, fmt.Errorf("worker not found: %s", workerID)
	}
	return status, nil
}

// ListWorkers lists workers matching the filter.
func (r *InMemoryWorkerRegistry) ListWorkers(ctx context.Context, filter *WorkerFilter) ([]*types.WorkerInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*types.WorkerInfo, 0, len(r.workers))
	for id, worker := range r.workers {
		if filter != nil && !r.matchesFilter(id, worker, filter) {
			continue
		}
		result = append(result, worker)
	}
	return result, nil
}

func (r *InMemoryWorkerRegistry) matchesFilter(workerID string, worker *types.WorkerInfo, filter *WorkerFilter) bool {
	if len(filter.States) > 0 {
		status := r.status[workerID]
		if status == nil {
			return false
		}
		found := false
		for _, s := range filter.States {
			if status.State == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(filter.Labels) > 0 {
		for key, value := range filter.Labels {
			if worker.Labels == nil {
				return false
			}
			if got, ok := worker.Labels[key]; !ok || got != value {
				return false
			}
		}
	}

	return true
}

// GetOnlineWorkers returns all online workers.
func (r *InMemoryWorkerRegistry) GetOnlineWorkers(ctx context.Context) ([]*types.WorkerInfo, error) {
	return r.ListWorkers(ctx, &WorkerFilter{
		States: []types.WorkerState{types.WorkerOnline},
	})
}

// WatchWorkers subscribes to worker events until the context is done.
func (r *InMemoryWorkerRegistry) WatchWorkers(ctx context.Context) (<-chan *types.WorkerEvent, error) {
	ch := make(chan *types.WorkerEvent, 100)

	r.subMu.Lock()
	r.subscribers = append(r.subscribers, ch)
	r.subMu.Unlock()

	go func() {
		<-ctx.Done()
		r.removeSubscriber(ch)
		close(ch)
	}()

	return ch, nil
}

// notifyEvent sends an event to all subscribers without blocking.
func (r *InMemoryWorkerRegistry) notifyEvent(event *types.WorkerEvent) {
	r.subMu.RLock()
	defer r.subMu.RUnlock()

	for _, ch := range r.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, drop the event.
		}
	}
}

func (r *InMemoryWorkerRegistry) removeSubscriber(ch chan *types.WorkerEvent) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	for i, sub := range r.subscribers {
		if sub == ch {
			r.subscribers = append(r.subscribers[:i], r.subscribers[i+1:]...)
			break
		}
	}
}

// MarkOffline marks a worker offline.
func (r *InMemoryWorkerRegistry) MarkOffline(ctx context.Context, workerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, exists := r.status[workerID]
	if !exists {
		return fmt.Errorf("worker not found: %s", workerID)
	}

	if status.State != types.WorkerOffline {
		status.State = types.WorkerOffline
		r.notifyEvent(&types.WorkerEvent{
			Type:     types.WorkerEventOffline,
			WorkerID: workerID,
			Worker:   r.workers[workerID],
		})
	}

	return nil
}

// Drain stops leasing new batches to a worker.
func (r *InMemoryWorkerRegistry) Drain(ctx context.Context, workerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, exists := r.status[workerID]
	if !exists {
		return fmt.Errorf("worker not found: %s", workerID)
	}

	status.State = types.WorkerDraining
	r.notifyEvent(&types.WorkerEvent{
		Type:     types.WorkerEventUpdated,
		WorkerID: workerID,
		Worker:   r.workers[workerID],
	})

	return nil
}

// Count returns the number of registered workers.
func (r *InMemoryWorkerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// CountOnline returns the number of online workers.
func (r *InMemoryWorkerRegistry) CountOnline() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for id := range r.workers {
		if status, ok := r.status[id]; ok && status.State == types.WorkerOnline {
			count++
		}
	}
	return count
}

// StaleWorkers returns the IDs of online workers whose last heartbeat
// is older than the timeout.
func (r *InMemoryWorkerRegistry) StaleWorkers(timeout time.Duration) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	var stale []string
	for id, status := range r.status {
		if status.State == types.WorkerOnline && now.Sub(status.LastSeen) > timeout {
			stale = append(stale, id)
		}
	}
	return stale
}
