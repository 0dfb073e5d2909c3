package server

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petal-labs/flowstep"
)

// ErrScheduleNotFound is returned by the schedule store for unknown IDs.
var ErrScheduleNotFound = errors.New("schedule not found")

// Schedule runs a stored graph on a recurring cron expression (standard
// 5-field, UTC). Each firing starts a fresh run with a copy of InitialState.
type Schedule struct {
	ID           string         `json:"schedule_id"`
	GraphID      string         `json:"graph_id"`
	Cron         string         `json:"cron"`
	InitialState flowstep.State `json:"initial_state,omitempty"`
	NextRun      time.Time      `json:"next_run"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ScheduleStore is an in-memory schedule table. Like graphs and runs,
// schedules do not survive a process restart.
type ScheduleStore struct {
	mu    sync.RWMutex
	items map[string]Schedule
}

// NewScheduleStore creates an empty schedule store.
func NewScheduleStore() *ScheduleStore {
	return &ScheduleStore{items: make(map[string]Schedule)}
}

// List returns all schedules ordered by creation time.
func (s *ScheduleStore) List() []Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Schedule, 0, len(s.items))
	for _, sched := range s.items {
		out = append(out, sched)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Get returns one schedule by ID.
func (s *ScheduleStore) Get(id string) (Schedule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.items[id]
	return sched, ok
}

// Put inserts or updates one schedule.
func (s *ScheduleStore) Put(sched Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[sched.ID] = sched
}

// Delete removes one schedule by ID.
func (s *ScheduleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("%w: %q", ErrScheduleNotFound, id)
	}
	delete(s.items, id)
	return nil
}

// due returns schedules whose NextRun is at or before now.
func (s *ScheduleStore) due(now time.Time) []Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Schedule, 0)
	for _, sched := range s.items {
		if !sched.NextRun.After(now) {
			out = append(out, sched)
		}
	}
	return out
}

// --- HTTP handlers ---

// CreateScheduleRequest is the body of POST /schedules.
type CreateScheduleRequest struct {
	GraphID      string         `json:"graph_id"`
	Cron         string         `json:"cron"`
	InitialState flowstep.State `json:"initial_state"`
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	if _, err := s.engine.Graph(req.GraphID); err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}

	now := time.Now().UTC()
	next, err := nextCronRunUTC(req.Cron, now)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_CRON", err.Error())
		return
	}

	sched := Schedule{
		ID:           uuid.New().String(),
		GraphID:      req.GraphID,
		Cron:         req.Cron,
		InitialState: req.InitialState.Clone(),
		NextRun:      next,
		CreatedAt:    now,
	}
	s.schedules.Put(sched)

	s.logger.Info("schedule created", "schedule_id", sched.ID, "graph_id", sched.GraphID, "next_run", sched.NextRun)
	writeJSON(w, http.StatusCreated, sched)
}

func (s *Server) handleListSchedules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]Schedule{"schedules": s.schedules.List()})
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.schedules.Delete(id); err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
