package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/state-hub/state-hub/internal/application/definition"
	"github.com/state-hub/state-hub/internal/application/interpreter"
	"github.com/state-hub/state-hub/internal/application/orchestrator"
	"github.com/state-hub/state-hub/internal/domain/machine"
)

type createMachineRequest struct {
	ID         string          `json:"id"`
	Definition json.RawMessage `json:"definition"`
}

func (s *Server) createMachine(w http.ResponseWriter, r *http.Request) {
	var req createMachineRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if len(req.Definition) == 0 {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "definition is required")
		return
	}

	def, err := definition.Parse(req.Definition, s.registry)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_DEFINITION", err.Error())
		return
	}
	seed, err := definition.InitialContext(req.Definition)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_DEFINITION", err.Error())
		return
	}

	id := req.ID
	if id == "" {
		id = def.MachineID
	}

	inst := interpreter.New(def, id, s.logger,
		interpreter.WithSink(s.orch),
		interpreter.WithReporter(s.orch),
		interpreter.WithInitialContext(seed),
	)
	if err := s.orch.Register(inst); err != nil {
		if errors.Is(err, orchestrator.ErrAlreadyRegistered) {
			respondError(w, http.StatusConflict, "ALREADY_EXISTS", "machine id is already registered")
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{"machineId": id})
}

func (s *Server) listMachines(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"machines": s.orch.ListMachines()})
}

func (s *Server) getMachine(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "machineId")
	st, err := s.orch.MachineStatus(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "machine not found")
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) deleteMachine(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "machineId")
	if err := s.orch.Unregister(r.Context(), id); err != nil {
		if errors.Is(err, orchestrator.ErrMachineNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "machine not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) startMachine(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "machineId")
	cfg, err := s.orch.StartMachine(r.Context(), id)
	if err != nil {
		s.respondOrchestratorError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"machineId":     id,
		"configuration": cfg.Leaves(),
	})
}

func (s *Server) stopMachine(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "machineId")
	if err := s.orch.StopMachine(r.Context(), id); err != nil {
		s.respondOrchestratorError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"machineId": id, "running": false})
}

type sendEventRequest struct {
	Name      string `json:"name"`
	Payload   any    `json:"payload,omitempty"`
	Mode      string `json:"mode,omitempty"`      // "sync" (default) or "async"
	TimeoutMs int64  `json:"timeoutMs,omitempty"` // sync mode only
}

func (s *Server) sendEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "machineId")
	var req sendEventRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "event name is required")
		return
	}

	event := machine.Event{Name: req.Name, Payload: req.Payload}

	if req.Mode == "async" {
		if err := s.orch.SendEventFireAndForget(r.Context(), id, event); err != nil {
			s.respondOrchestratorError(w, err)
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]interface{}{"machineId": id, "accepted": true})
		return
	}

	cfg, err := s.orch.SendEvent(r.Context(), id, event, time.Duration(req.TimeoutMs)*time.Millisecond)
	if err != nil {
		s.respondOrchestratorError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"machineId":     id,
		"configuration": cfg.Leaves(),
	})
}

func (s *Server) getMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.orch.GetMetrics())
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	health := s.orch.GetHealthStatus()
	status := http.StatusOK
	if health.Level == orchestrator.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, health)
}

// respondOrchestratorError maps orchestrator and machine errors to HTTP codes.
func (s *Server) respondOrchestratorError(w http.ResponseWriter, err error) {
	var cfgErr *machine.ConfigurationError
	switch {
	case errors.Is(err, orchestrator.ErrMachineNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "machine not found")
	case errors.Is(err, machine.ErrNotRunning):
		respondError(w, http.StatusConflict, "NOT_RUNNING", "machine is not running")
	case errors.Is(err, orchestrator.ErrQueueFull):
		respondError(w, http.StatusTooManyRequests, "QUEUE_FULL", "lane queue is full")
	case errors.Is(err, orchestrator.ErrCircuitOpen):
		respondError(w, http.StatusServiceUnavailable, "CIRCUIT_OPEN", "circuit breaker is open")
	case errors.Is(err, orchestrator.ErrTimeout):
		respondError(w, http.StatusGatewayTimeout, "TIMEOUT", "timed out waiting for event result")
	case errors.Is(err, orchestrator.ErrClosed):
		respondError(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "orchestrator is closed")
	case errors.As(err, &cfgErr):
		respondError(w, http.StatusUnprocessableEntity, "CONFIGURATION_ERROR", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}
