package gateway

import (
	"context"
	"log/slog"
	"time"
)

// HeartbeatChecker closes connections that have been silent longer than timeout.
type HeartbeatChecker struct {
	manager       *Manager
	timeout       time.Duration
	checkInterval time.Duration
	logger        *slog.Logger
}

func NewHeartbeatChecker(manager *Manager, timeout, checkInterval time.Duration, logger *slog.Logger) *HeartbeatChecker {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if checkInterval <= 0 {
		checkInterval = 30 * time.Second
	}

	return &HeartbeatChecker{
		manager:       manager,
		timeout:       timeout,
		checkInterval: checkInterval,
		logger:        logger,
	}
}

// Start blocks until ctx is done.
func (h *HeartbeatChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.checkInterval)
	defer ticker.Stop()

	h.logger.Info("Heartbeat checker started",
		"timeout", h.timeout,
		"check_interval", h.checkInterval)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Heartbeat checker stopped")
			return
		case <-ticker.C:
			h.check(ctx, time.Now())
		}
	}
}

func (h *HeartbeatChecker) check(ctx context.Context, now time.Time) int {
	conns := h.manager.Connections()
	expired := 0

	for _, conn := range conns {
		lastActive := conn.LastActiveTime()
		if now.Sub(lastActive) <= h.timeout {
			if err := h.manager.presence.Refresh(ctx, conn.UserID(), conn.ID()); err != nil {
				h.logger.Debug("Presence refresh failed", "user_id", conn.UserID(), "error", err)
			}
			continue
		}

		expired++
		h.logger.Debug("Connection heartbeat timeout",
			"conn_id", conn.ID(),
			"user_id", conn.UserID(),
			"last_active", lastActive,
			"connected_for", now.Sub(conn.CreateTime()).Round(time.Second),
			"timeout", h.timeout)

		conn.Close(CloseGoingAway, "heartbeat timeout")
		h.manager.Leave(ctx, conn)
	}

	if expired > 0 {
		h.logger.Info("Heartbeat check completed",
			"total", len(conns),
			"timeout", expired)
	}
	return expired
}
