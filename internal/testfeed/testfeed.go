// Package testfeed implements the small HTTP harness used to drive a
// TestSource deterministically in integration tests and in the standalone
// cmd/test-feed-server binary: a queue of responses served one at a time on
// GET /rate, refillable via POST /add, with a PUT /reset and a PUT
// /update-resort/{value} to change what's served once the queue drains.
// The route shape is the Go rendering of the original's
// test_exchange/src/main.rs.
package testfeed

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
)

// Server queues scalar price responses and serves them one at a time, in
// FIFO order, on GET /rate. Once the queue is empty it serves ResortValue
// instead of erroring, so a driver can poll past a seeded burst.
type Server struct {
	mu          sync.Mutex
	queue       []float64
	resortValue float64
	handler     http.Handler
}

// New constructs a Server with an empty queue and the given resort value.
func New(resortValue float64) *Server {
	s := &Server{resortValue: resortValue}
	router := mux.NewRouter()
	router.HandleFunc("/rate", s.serveRate).Methods(http.MethodGet)
	router.HandleFunc("/add", s.addRates).Methods(http.MethodPost)
	router.HandleFunc("/reset", s.reset).Methods(http.MethodPut)
	router.HandleFunc("/update-resort/{value}", s.updateResort).Methods(http.MethodPut)
	s.handler = router
	return s
}

// Enqueue appends one scalar response to the queue.
func (s *Server) Enqueue(price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, price)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) serveRate(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	var price float64
	if len(s.queue) > 0 {
		price = s.queue[0]
		s.queue = s.queue[1:]
	} else {
		price = s.resortValue
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode([]float64{price})
}

func (s *Server) addRates(w http.ResponseWriter, r *http.Request) {
	var rates []float64
	if err := json.NewDecoder(r.Body).Decode(&rates); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, rates...)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.queue = nil
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) updateResort(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["value"]
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.resortValue = v
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}
