package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ehrlich-b/angelshark"
	"github.com/ehrlich-b/angelshark/internal/audit"
)

// runRequest names the jobs and inputs for a POST /ossi/run or
// POST /ossi/manual call. JobNames must already be registered with the
// server's runner template; Inputs are OSSI commands to run against every
// job, in order.
type runRequest struct {
	JobNames []string `json:"job_names"`
	Inputs   []string `json:"commands"`
	Cached   bool     `json:"cached"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.JobNames) == 0 {
		writeError(w, http.StatusBadRequest, "job_names is required")
		return
	}
	if len(req.Inputs) == 0 {
		writeError(w, http.StatusBadRequest, "commands is required")
		return
	}

	runner := s.runnerTpl().Clone()
	for _, cmd := range req.Inputs {
		msg := angelshark.NewMessage(cmd)
		for _, name := range req.JobNames {
			runner.QueueInput(name, msg)
		}
	}

	kind := "run"
	var results <-chan angelshark.RunResult
	started := time.Now()
	if req.Cached {
		kind = "run_cached"
		results = runner.RunCached()
	} else {
		results = runner.Run()
	}

	type runResponse struct {
		Name     string               `json:"name"`
		Messages []angelshark.Message `json:"messages,omitempty"`
		Error    string               `json:"error,omitempty"`
	}
	out := make(map[string]runResponse)
	for res := range results {
		rr := runResponse{Name: res.Name, Messages: res.Messages}
		success := res.Err == nil
		if res.Err != nil {
			rr.Error = res.Err.Error()
		}
		out[res.Name] = rr
		s.record(r, audit.Execution{
			JobName:    res.Name,
			Kind:       kind,
			InputCount: len(req.Inputs),
			Success:    success,
			Error:      rr.Error,
			Duration:   time.Since(started),
			StartedAt:  started,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleManual(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.JobNames) == 0 {
		writeError(w, http.StatusBadRequest, "job_names is required")
		return
	}
	if len(req.Inputs) == 0 {
		writeError(w, http.StatusBadRequest, "commands is required")
		return
	}

	runner := s.runnerTpl().Clone()
	for _, cmd := range req.Inputs {
		msg := angelshark.NewMessage(cmd)
		for _, name := range req.JobNames {
			runner.QueueInput(name, msg)
		}
	}

	started := time.Now()
	type manualResponse struct {
		Name   string `json:"name"`
		Output string `json:"output,omitempty"`
		Error  string `json:"error,omitempty"`
	}
	out := make(map[string]manualResponse)
	for res := range runner.Manuals() {
		mr := manualResponse{Name: res.Name, Output: res.Output}
		success := res.Err == nil
		if res.Err != nil {
			mr.Error = res.Err.Error()
		}
		out[res.Name] = mr
		s.record(r, audit.Execution{
			JobName:    res.Name,
			Kind:       "manual",
			InputCount: len(req.Inputs),
			Success:    success,
			Error:      mr.Error,
			Duration:   time.Since(started),
			StartedAt:  started,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	needles := r.URL.Query()["q"]
	if len(needles) == 0 {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	matches, err := s.haystack.Search(needles)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}

	resp := map[string]any{"matches": matches, "count": len(matches)}
	if t, ok := s.haystack.LastRefreshed(); ok {
		resp["last_refreshed"] = t.UTC().Format(time.RFC3339)
		resp["last_refreshed_human"] = humanize.Time(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSearchRefresh kicks off a Haystack refresh on a background
// goroutine and returns immediately, so a slow refresh against many ACMs
// never ties up the request that triggered it.
func (s *Server) handleSearchRefresh(w http.ResponseWriter, r *http.Request) {
	go func() {
		started := time.Now()
		err := s.haystack.Refresh()
		success := err == nil
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
			logRequestError(r.Context(), "haystack refresh failed", err)
		}
		s.record(r, audit.Execution{
			JobName:   "*",
			Kind:      "refresh",
			Success:   success,
			Error:     errMsg,
			Duration:  time.Since(started),
			StartedAt: started,
		})
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh started"})
}

func (s *Server) record(r *http.Request, e audit.Execution) {
	if s.auditLog == nil {
		return
	}
	e.RequestID = requestID(r.Context())
	if err := s.auditLog.Record(e); err != nil {
		logRequestError(r.Context(), "audit record failed", err)
	}
}
