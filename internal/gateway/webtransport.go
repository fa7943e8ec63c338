package gateway

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/config"
)

// frameHeaderSize is the 4-byte big-endian length prefix of each frame on a WebTransport stream.
const frameHeaderSize = 4

var ErrFrameTooLarge = errors.New("frame too large")

// wtTransport carries length-prefixed JSON frames over one bidirectional stream.
type wtTransport struct {
	session      *webtransport.Session
	stream       io.ReadWriteCloser
	maxFrameSize int64
	writeMu      sync.Mutex
}

func (t *wtTransport) Kind() string { return "webtransport" }

func (t *wtTransport) ReadFrame() ([]byte, error) {
	return readFrame(t.stream, t.maxFrameSize)
}

func (t *wtTransport) WriteFrame(payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return writeFrame(t.stream, payload)
}

// Ping is a no-op: QUIC keep-alives cover liveness.
func (t *wtTransport) Ping() error { return nil }

func (t *wtTransport) Close(code int, reason string) error {
	_ = t.stream.Close()
	return t.session.CloseWithError(webtransport.SessionErrorCode(code), reason)
}

func readFrame(r io.Reader, maxFrameSize int64) ([]byte, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header)
	if maxFrameSize > 0 && int64(length) > maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

func writeFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[frameHeaderSize:], payload)
	_, err := w.Write(buf)
	return err
}

// WebTransportServer serves the gateway over HTTP/3. The client opens one
// bidirectional stream after the session is established and uses it for all frames.
type WebTransportServer struct {
	cfg      config.WebTransportConfig
	gateway  *Gateway
	wtServer *webtransport.Server
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func NewWebTransportServer(cfg config.WebTransportConfig, gateway *Gateway, logger *slog.Logger) *WebTransportServer {
	return &WebTransportServer{
		cfg:     cfg,
		gateway: gateway,
		logger:  logger,
	}
}

// Start blocks serving until Shutdown.
func (s *WebTransportServer) Start(ctx context.Context) error {
	tlsConfig, err := s.loadTLSConfig()
	if err != nil {
		return err
	}

	s.wtServer = &webtransport.Server{
		H3: http3.Server{
			Addr:      s.cfg.Addr,
			TLSConfig: tlsConfig,
			QUICConfig: &quic.Config{
				MaxIdleTimeout:  s.cfg.MaxIdleTimeout,
				KeepAlivePeriod: s.cfg.KeepAlivePeriod,
				EnableDatagrams: true,
			},
		},
		CheckOrigin: s.gateway.checkOrigin,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webtransport", func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.gateway.authenticate(tokenFromRequest(r))
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		session, err := s.wtServer.Upgrade(w, r)
		if err != nil {
			s.logger.Error("WebTransport upgrade failed", "error", err)
			return
		}
		s.wg.Add(1)
		go s.handleSession(ctx, session, userID)
	})
	s.wtServer.H3.Handler = mux

	s.logger.Info("WebTransport server starting", "addr", s.cfg.Addr)
	return s.wtServer.ListenAndServe()
}

func (s *WebTransportServer) handleSession(ctx context.Context, session *webtransport.Session, userID int64) {
	defer s.wg.Done()

	stream, err := session.AcceptStream(ctx)
	if err != nil {
		return
	}

	transport := &wtTransport{
		session:      session,
		stream:       stream,
		maxFrameSize: s.gateway.cfg.MaxFrameSize,
	}
	conn := NewConnection(userID, transport, s.gateway.cfg.SendBuffer, s.logger)
	s.gateway.Serve(ctx, conn)
}

func (s *WebTransportServer) loadTLSConfig() (*tls.Config, error) {
	if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.cfg.CertFile, s.cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		s.logger.Info("Loaded TLS certificate",
			"cert_file", s.cfg.CertFile,
			"key_file", s.cfg.KeyFile)
		return newTLSConfig(cert), nil
	}

	s.logger.Warn("No TLS certificate configured, using self-signed certificate")
	cert, hash, err := selfSignedCertificate()
	if err != nil {
		return nil, err
	}
	s.logger.Info("Self-signed certificate ready", "sha256", hash)
	return newTLSConfig(cert), nil
}

func (s *WebTransportServer) Shutdown() {
	if s.wtServer != nil {
		s.wtServer.Close()
	}
	s.wg.Wait()
}
