package main

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"usd/internal/models"

	json "github.com/goccy/go-json"
	"github.com/spf13/pflag"
)

// Fake ingest endpoint for end-to-end runs against a local daemon:
//
//	go run ./tests/ingestsink --addr 127.0.0.1:18090 --key secret --fail-every 3
//
// then point the daemon at http://127.0.0.1:18090 with the same key.

type sink struct {
	key       string
	header    string
	failEvery int64

	requests atomic.Int64
	mu       sync.Mutex
	seen     map[string]map[string]struct{}
	records  map[string]int
}

func main() {
	addr := pflag.String("addr", "127.0.0.1:18090", "listen address")
	path := pflag.String("path", "/api/ingest", "ingest path")
	key := pflag.String("key", "secret", "expected API key, empty accepts any")
	header := pflag.String("header", "X-API-Key", "API key header")
	failEvery := pflag.Int64("fail-every", 0, "answer every Nth request with 503")
	pflag.Parse()

	s := &sink{
		key:       *key,
		header:    *header,
		failEvery: *failEvery,
		seen:      make(map[string]map[string]struct{}),
		records:   make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(*path, s.ingest)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go s.report(10 * time.Second)

	fmt.Printf("=== Ingest sink on %s%s ===\n", *addr, *path)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		fmt.Println("FAILED:", err)
	}
}

func (s *sink) ingest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	n := s.requests.Add(1)
	if s.key != "" && r.Header.Get(s.header) != s.key {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
		return
	}
	if s.failEvery > 0 && n%s.failEvery == 0 {
		http.Error(w, "injected failure", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	var req models.IngestRequest
	if err = json.Unmarshal(body, &req); err != nil || req.DeviceID == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	ok := true
	resp := models.IngestResponse{Ok: &ok}

	s.mu.Lock()
	seen, found := s.seen[req.DeviceID]
	if !found {
		seen = make(map[string]struct{})
		s.seen[req.DeviceID] = seen
	}
	for _, sample := range req.Samples {
		if _, dup := seen[sample.SampleID]; dup {
			resp.Duplicates++
			continue
		}
		seen[sample.SampleID] = struct{}{}
		resp.InsertedSamples++
		resp.InsertedRecords += len(sample.Records)
		s.records[req.DeviceID] += len(sample.Records)
	}
	s.mu.Unlock()

	fmt.Printf("%s %-32s samples=%d inserted=%d duplicates=%d\n",
		time.Now().Format(time.TimeOnly), req.DeviceID, len(req.Samples), resp.InsertedSamples, resp.Duplicates)

	gson, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(gson)
}

func (s *sink) report(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		devices := make([]string, 0, len(s.seen))
		for d := range s.seen {
			devices = append(devices, d)
		}
		sort.Strings(devices)
		fmt.Printf("\n  %-32s %8s %8s\n", "Device", "Samples", "Records")
		for _, d := range devices {
			fmt.Printf("  %-32s %8d %8d\n", d, len(s.seen[d]), s.records[d])
		}
		fmt.Printf("  Requests: %d\n\n", s.requests.Load())
		s.mu.Unlock()
	}
}
