// Package api serves stored verification runs as JSON.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/banshee-data/mkverify/internal/db"
	"github.com/banshee-data/mkverify/internal/httputil"
)

// RunReader is the part of db.RunStore the API needs.
type RunReader interface {
	Get(runID string) (*db.Run, error)
	List(limit int) ([]*db.Run, error)
	Cells(runID, region string) ([]int, error)
}

type Server struct {
	runs RunReader
}

func NewServer(runs RunReader) *Server {
	return &Server{runs: runs}
}

// RunDetail is a run with its stored cell sets.
type RunDetail struct {
	*db.Run
	Start     []int `json:"start"`
	Invariant []int `json:"invariant"`
}

// ServeMux returns the API routes, relative to the mount point.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /runs", s.listRuns)
	mux.HandleFunc("GET /runs/{id}", s.getRun)
	return mux
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := s.runs.List(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if runs == nil {
		runs = []*db.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.runs.Get(id)
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	detail := RunDetail{Run: run, Start: []int{}, Invariant: []int{}}
	for region, dst := range map[string]*[]int{db.RegionStart: &detail.Start, db.RegionInvariant: &detail.Invariant} {
		ids, err := s.runs.Cells(id, region)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		if ids != nil {
			*dst = ids
		}
	}
	httputil.WriteJSONOK(w, detail)
}
