package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"insurance-checkout/internal/checkout/finalize"
	"insurance-checkout/internal/common/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

type openLister interface {
	Open(ctx context.Context, limit int) ([]finalize.Reconciliation, error)
}

type probes struct {
	zeebe    healthChecker
	postgres pinger
	redis    pinger
	ledger   openLister
}

const defaultReconciliationLimit = 100

func newServer(addr string, p *probes, log logger.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]string{}
		status := http.StatusOK
		record := func(name string, err error) {
			if err != nil {
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
				return
			}
			checks[name] = "ok"
		}
		record("zeebe", p.zeebe.HealthCheck(ctx))
		record("postgres", p.postgres.Ping(ctx))
		record("redis", p.redis.Ping(ctx))

		state := "ready"
		if status != http.StatusOK {
			state = "not_ready"
		}
		writeJSON(w, status, map[string]interface{}{"status": state, "checks": checks})
	})

	// Payments received whose application could not be submitted.
	mux.HandleFunc("/reconciliations", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		limit := defaultReconciliationLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}
		open, err := p.ledger.Open(r.Context(), limit)
		if err != nil {
			log.Error("listing reconciliations failed", map[string]interface{}{"error": err})
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "reconciliation ledger unavailable"})
			return
		}
		if open == nil {
			open = []finalize.Reconciliation{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(open), "items": open})
	})

	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
