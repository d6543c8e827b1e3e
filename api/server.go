// Package api exposes the Allocator API named in spec §6
// (drainByDaaScore, fallbackSnapshot) plus a read-only per-miner and
// config surface, grounded on the teacher's gorilla/mux api.Server.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"

	"github.com/kaspa-pool/stratum-core/config"
	"github.com/kaspa-pool/stratum-core/coordinator"
	"github.com/kaspa-pool/stratum-core/sharewindow"
)

var log = logging.Logger("api")

// Server is the Allocator-facing HTTP surface.
type Server struct {
	*mux.Router

	apiConf *config.APIOptions
	rootOpts *config.Options
	window  *sharewindow.Window
	coord   *coordinator.Coordinator

	availablePaths []string
}

// NewAPIServer wires the Allocator API's routes.
func NewAPIServer(options *config.Options, window *sharewindow.Window, coord *coordinator.Coordinator) *Server {
	s := &Server{
		Router:         mux.NewRouter(),
		apiConf:        options.API,
		rootOpts:       options,
		window:         window,
		coord:          coord,
		availablePaths: make([]string, 0),
	}

	s.RegisterFunc("/", s.indexFunc)
	s.RegisterFunc("/config", s.configFunc)
	s.RegisterFunc("/miner/{address}", s.minerFunc)
	s.RegisterFunc("/contributions/drain", s.drainFunc)
	s.RegisterFunc("/contributions/fallback", s.fallbackFunc)

	s.Use(mux.CORSMethodMiddleware(s.Router))

	return s
}

func (s *Server) RegisterFunc(path string, fn func(http.ResponseWriter, *http.Request)) {
	s.HandleFunc(path, fn)
	s.availablePaths = append(s.availablePaths, path)
}

// Serve listens on the configured API address. Intended to run in its own
// goroutine; returns only on listener failure.
func (s *Server) Serve() error {
	addr := s.apiConf.Addr()
	log.Warn("Allocator API listening on ", addr)
	return http.ListenAndServe(addr, s)
}

func (s *Server) indexFunc(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.availablePaths)
}

// configFunc implements the CLI/config surface named in spec §6: initial
// difficulty, range, target rate, clampPow2, varDiff, extranonce size, and
// the per-port list.
func (s *Server) configFunc(w http.ResponseWriter, _ *http.Request) {
	so := s.rootOpts.Stratum
	writeJSON(w, map[string]interface{}{
		"minDiff":               so.MinDiff,
		"maxDiff":               so.MaxDiff,
		"defaultDiff":           so.DefaultDiff,
		"targetSharesPerMinute": so.TargetSharesPerMinute,
		"clampPow2":             so.ClampPow2,
		"varDiff":               so.VarDiffEnabled,
		"extranonceSize":        so.ExtranonceSize,
		"ports":                 so.Ports,
	})
}

// minerFunc returns the live WorkerSummary list for one payout address.
func (s *Server) minerFunc(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	summary := s.coord.MinerSummary(address, time.Now())
	if summary == nil {
		http.Error(w, "unknown miner", http.StatusNotFound)
		return
	}
	writeJSON(w, summary)
}

// drainFunc implements the Allocator API's drainByDaaScore(cutoff).
func (s *Server) drainFunc(w http.ResponseWriter, r *http.Request) {
	cutoffStr := r.URL.Query().Get("cutoff")
	cutoff, err := strconv.ParseUint(cutoffStr, 10, 64)
	if err != nil {
		http.Error(w, "cutoff must be a daa score", http.StatusBadRequest)
		return
	}

	drained := s.window.DrainUpTo(cutoff)
	log.Info("allocator drained ", len(drained), " contributions up to daaScore=", cutoff)
	writeJSON(w, drained)
}

// fallbackFunc implements the Allocator API's fallbackSnapshot().
func (s *Server) fallbackFunc(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	inputs := s.coord.FallbackSnapshotInputs(now)
	snapshot := sharewindow.SnapshotByScaledDifficulty(inputs, now.Unix())
	writeJSON(w, snapshot)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("writeJSON: ", err)
	}
}
