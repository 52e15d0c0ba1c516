package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/attendance/attendload/internal/scenario"
)

const dateLayout = "2006-01-02"

type serverOptions struct {
	latency     time.Duration
	failureRate float64
	rnd         *rand.Rand
}

func main() {
	port := flag.Int("port", 8081, "Listening port")
	latency := flag.Duration("latency", 0, "Artificial delay added to every response")
	failureRate := flag.Float64("failure-rate", 0, "Fraction of POSTs answered with 500 (0.0-1.0)")
	team := flag.String("team", "Test-09", "Team id every employee belongs to")
	flag.Parse()

	if *port <= 0 {
		log.Fatalf("port must be > 0")
	}
	if *failureRate < 0 || *failureRate > 1 {
		log.Fatalf("failure-rate must be between 0 and 1")
	}

	opts := serverOptions{
		latency:     *latency,
		failureRate: *failureRate,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	addr := fmt.Sprintf(":%d", *port)
	log.Printf("attendance API listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, newRouter(newStore(*team), opts)))
}

type store struct {
	mu      sync.Mutex
	team    string
	records []scenario.AttendanceRecord
}

// newStore files every employee under team, like the single seeded
// employee of the real service.
func newStore(team string) *store {
	return &store{team: team}
}

func (s *store) add(rec scenario.AttendanceRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return len(s.records)
}

// trendsResponse matches the body of GET /api/attendance/trends.
type trendsResponse struct {
	TotalEntries int            `json:"total_entries"`
	PresentCount int            `json:"present_count"`
	WFHTrend     map[string]int `json:"wfh_trend"`
}

// trends summarizes records dated within [start, end]. WFH entries are
// counted per team.
func (s *store) trends(start, end time.Time) trendsResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := trendsResponse{WFHTrend: make(map[string]int)}
	for _, rec := range s.records {
		d, err := time.Parse(dateLayout, rec.Date)
		if err != nil || d.Before(start) || d.After(end) {
			continue
		}
		out.TotalEntries++
		switch rec.Status {
		case scenario.StatusPresent:
			out.PresentCount++
		case scenario.StatusWFH:
			out.WFHTrend[s.team]++
		}
	}
	return out
}

func newRouter(s *store, opts serverOptions) http.Handler {
	var rndMu sync.Mutex
	fail := func() bool {
		if opts.failureRate <= 0 || opts.rnd == nil {
			return false
		}
		rndMu.Lock()
		defer rndMu.Unlock()
		return opts.rnd.Float64() < opts.failureRate
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/attendance/trends", func(w http.ResponseWriter, req *http.Request) {
		start, errStart := time.Parse(dateLayout, req.URL.Query().Get("start"))
		end, errEnd := time.Parse(dateLayout, req.URL.Query().Get("end"))
		if errStart != nil || errEnd != nil || end.Before(start) {
			respondJSON(w, http.StatusBadRequest, map[string]any{"error": "start and end must be YYYY-MM-DD with start <= end"})
			return
		}
		respondJSON(w, http.StatusOK, s.trends(start, end))
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/attendance", func(w http.ResponseWriter, req *http.Request) {
		if fail() {
			respondJSON(w, http.StatusInternalServerError, map[string]any{"error": "injected failure"})
			return
		}
		var rec scenario.AttendanceRecord
		if err := json.NewDecoder(req.Body).Decode(&rec); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		if err := rec.Validate(); err != nil {
			respondJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
			return
		}
		id := s.add(rec)
		respondJSON(w, http.StatusCreated, map[string]any{
			"id":         id,
			"employeeId": rec.EmployeeID,
			"date":       rec.Date,
			"status":     rec.Status,
		})
	}).Methods(http.MethodPost).Headers("Content-Type", "application/json")

	if opts.latency > 0 {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				time.Sleep(opts.latency)
				next.ServeHTTP(w, req)
			})
		})
	}
	return r
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
