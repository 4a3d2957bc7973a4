package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/jobrunner/envextract/internal/application"
	"github.com/jobrunner/envextract/internal/domain"
)

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status":     boolToStatus(details.Healthy),
		"ready":      details.Ready,
		"products":   details.Products,
		"components": details.Components,
	})
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness returns readiness status.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// handleListProducts returns the catalogue.
func (s *Server) handleListProducts(w http.ResponseWriter, _ *http.Request) {
	products := s.extractor.Products()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"products": products,
		"count":    len(products),
	})
}

// handleGetProduct returns one catalogue entry.
func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	info, err := s.extractor.Product(mux.Vars(r)["name"])
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

// handleExtract submits a request, or only plans it when dry_run is set.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	req, err := s.decodeRequest(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	dryRun, err := parseBool(r.URL.Query().Get("dry_run"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid dry_run parameter")
		return
	}

	if dryRun {
		planned, err := s.extractor.Plan(r.Context(), req)
		if err != nil {
			s.handleError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"product": req.Product,
			"exports": planned,
			"count":   len(planned),
		})
		return
	}

	result, err := s.extractor.Extract(r.Context(), req)
	if err != nil {
		// tasks submitted before the failure are still running remotely
		if result != nil && len(result.Tasks) > 0 {
			status, message := s.errorStatus(err)
			s.writeJSON(w, status, map[string]interface{}{
				"error":   http.StatusText(status),
				"message": message,
				"tasks":   result.Tasks,
			})
			return
		}
		s.handleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, result)
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (domain.ExtractionRequest, error) {
	var req domain.ExtractionRequest

	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return req, errors.New("invalid request body: trailing data")
	}
	return req, nil
}

// handleListTasks returns ledger records filtered by query parameters.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTaskFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tasks, err := s.tasks.ListTasks(r.Context(), filter)
	if err != nil {
		s.handleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// handleGetTask returns one ledger record.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.GetTask(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

// handleListResults returns the keys of the exported tables.
func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	keys, err := s.results.ListResults(r.Context())
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": keys,
		"count":   len(keys),
	})
}

// handleGetResult returns a parsed exported table.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	table, err := s.results.ReadResult(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, table)
}

// handleAspect returns the circular mean aspect, in radians, of a geometry suffix.
func (s *Server) handleAspect(w http.ResponseWriter, r *http.Request) {
	table, err := s.results.ReadAspect(r.Context(), mux.Vars(r)["suffix"])
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, table)
}

// handleInboxScan handles the inbox scan trigger endpoint.
func (s *Server) handleInboxScan(w http.ResponseWriter, r *http.Request) {
	result, err := s.opts.Inbox.TriggerScan(r.Context())
	if err != nil {
		if errors.Is(err, application.ErrRateLimited) {
			w.Header().Set("Retry-After", "30")
			s.writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Try again in 30 seconds.")
			return
		}
		s.handleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleOpenAPI returns the OpenAPI specification.
func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	spec, err := getOpenAPIJSON()
	if err != nil {
		s.logger.Error("failed to get OpenAPI spec", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load OpenAPI specification")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(spec)
}

// parseTaskFilter parses the task listing query parameters.
func parseTaskFilter(r *http.Request) (domain.TaskFilter, error) {
	q := r.URL.Query()
	filter := domain.TaskFilter{
		Product: strings.ToLower(strings.TrimSpace(q.Get("product"))),
		State:   domain.TaskState(q.Get("state")),
	}

	switch filter.State {
	case "", domain.TaskSubmitted, domain.TaskFailed:
	default:
		return filter, fmt.Errorf("invalid state parameter: %s", filter.State)
	}

	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return filter, errors.New("invalid since parameter: use RFC 3339")
		}
		filter.Since = t
	}

	if limit := q.Get("limit"); limit != "" {
		v, err := strconv.Atoi(limit)
		if err != nil || v < 1 {
			return filter, errors.New("invalid limit parameter")
		}
		filter.Limit = v
	}

	return filter, nil
}

func parseBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

// errorStatus maps an error to an HTTP status and a client message.
func (s *Server) errorStatus(err error) (int, string) {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Message
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrRemoteService):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "Request failed"
	}
}

// handleError writes err with its mapped status.
func (s *Server) handleError(w http.ResponseWriter, err error) {
	status, message := s.errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeError(w, status, message)
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}
