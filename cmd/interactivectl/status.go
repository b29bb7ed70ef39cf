package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/danmuck/interactivectl/internal/interactive"
	"github.com/danmuck/interactivectl/internal/observability"
	"github.com/rs/zerolog/log"
)

var startedAt = time.Now()

type healthResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	State       string `json:"state"`
	Attempts    int    `json:"attempts"`
	ConnID      string `json:"conn_id,omitempty"`
	Cardinality *int   `json:"cardinality,omitempty"`
	LastState   string `json:"last_state,omitempty"`
}

func newStatusServer(addr string, client *interactive.Client) *http.Server {
	observability.RegisterMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, client)
	})
	return &http.Server{
		Addr:              addr,
		Handler:           observability.RequestLogger(log.Logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func writeHealth(w http.ResponseWriter, client *interactive.Client) {
	resp := healthResponse{
		Status:   "ok",
		Uptime:   time.Since(startedAt).String(),
		State:    client.State().String(),
		Attempts: client.Attempts(),
	}
	if client.State() == interactive.StateConnected {
		resp.ConnID = client.ConnID().String()
	}
	if n, ok := client.Cardinality(); ok {
		resp.Cardinality = &n
	}
	if s, ok := client.LastState(); ok {
		resp.LastState = s
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
