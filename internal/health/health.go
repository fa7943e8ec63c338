// Package health reports the state of the service's backing stores.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const (
	StateConnected     = "connected"
	StateDisconnected  = "disconnected"
	StateNotConfigured = "not configured"

	checkTimeout = 2 * time.Second
)

type Status struct {
	Service     string `json:"service"`
	Database    string `json:"database"`
	Redis       string `json:"redis"`
	NATS        string `json:"nats"`
	Connections int    `json:"connections"`
}

// Healthy reports whether every configured dependency is reachable.
func (s *Status) Healthy() bool {
	for _, state := range []string{s.Database, s.Redis, s.NATS} {
		if state == StateDisconnected {
			return false
		}
	}
	return true
}

// Pinger is satisfied by pgxpool.Pool and the sqlite DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ConnectionCounter interface {
	Count() int
}

type Checker struct {
	service     string
	db          Pinger
	redisClient *redis.Client
	nc          *nats.Conn
	connCounter ConnectionCounter
}

// NewChecker builds a checker. Nil dependencies are reported as not configured.
func NewChecker(service string, db Pinger, redisClient *redis.Client, nc *nats.Conn, connCounter ConnectionCounter) *Checker {
	return &Checker{
		service:     service,
		db:          db,
		redisClient: redisClient,
		nc:          nc,
		connCounter: connCounter,
	}
}

func (h *Checker) Check(ctx context.Context) *Status {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	status := &Status{
		Service:  h.service,
		Database: StateNotConfigured,
		Redis:    StateNotConfigured,
		NATS:     StateNotConfigured,
	}

	if h.db != nil {
		status.Database = state(h.db.Ping(ctx) == nil)
	}
	if h.redisClient != nil {
		status.Redis = state(h.redisClient.Ping(ctx).Err() == nil)
	}
	if h.nc != nil {
		status.NATS = state(h.nc.IsConnected())
	}
	if h.connCounter != nil {
		status.Connections = h.connCounter.Count()
	}
	return status
}

func state(ok bool) string {
	if ok {
		return StateConnected
	}
	return StateDisconnected
}

func (h *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status.Healthy() {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}
