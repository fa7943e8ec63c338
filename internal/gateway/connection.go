package gateway

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var ErrConnectionClosed = errors.New("connection closed")

// Close codes shared by both transports.
const (
	CloseNormal     = 1000
	CloseGoingAway  = 1001
	CloseSlowClient = 4008
)

const pingPeriod = 30 * time.Second

// Transport is the wire under a Connection.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(payload []byte) error
	// Ping sends a liveness probe where the transport has one.
	Ping() error
	Close(code int, reason string) error
	Kind() string
}

// Connection is one authenticated client socket. Writes go through a buffered
// channel drained by a single goroutine.
type Connection struct {
	id         string
	userID     int64
	transport  Transport
	send       chan []byte
	closeChan  chan struct{}
	closeOnce  sync.Once
	lastActive atomic.Int64
	createTime time.Time
	logger     *slog.Logger
}

func NewConnection(userID int64, transport Transport, sendBuffer int, logger *slog.Logger) *Connection {
	if sendBuffer <= 0 {
		sendBuffer = 128
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		id:         uuid.NewString(),
		userID:     userID,
		transport:  transport,
		send:       make(chan []byte, sendBuffer),
		closeChan:  make(chan struct{}),
		createTime: time.Now(),
	}
	c.logger = logger.With("conn_id", c.id, "user_id", userID, "transport", transport.Kind())
	c.Touch()
	return c
}

func (c *Connection) ID() string             { return c.id }
func (c *Connection) UserID() int64          { return c.userID }
func (c *Connection) CreateTime() time.Time  { return c.createTime }
func (c *Connection) Done() <-chan struct{}  { return c.closeChan }
func (c *Connection) Transport() Transport   { return c.transport }

// Touch records inbound activity for the heartbeat checker.
func (c *Connection) Touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

func (c *Connection) LastActiveTime() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// Start launches the write loop. Call it once.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send queues payload. A client too slow to drain its buffer is disconnected.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.closeChan:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.closeChan:
		return ErrConnectionClosed
	default:
		c.logger.Warn("Send buffer full, closing connection")
		c.Close(CloseSlowClient, "send buffer full")
		return ErrConnectionClosed
	}
}

func (c *Connection) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		if err := c.transport.Close(code, reason); err != nil {
			c.logger.Debug("Transport close failed", "error", err)
		}
	})
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeChan:
			return
		case payload := <-c.send:
			if err := c.transport.WriteFrame(payload); err != nil {
				c.logger.Debug("Write failed", "error", err)
				c.Close(CloseGoingAway, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.transport.Ping(); err != nil {
				c.Close(CloseGoingAway, "ping failed")
				return
			}
		}
	}
}
