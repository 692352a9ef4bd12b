// Package node implements the blockchain node RPC surface: block-summary
// fetch, signed transaction submission, and finalization polling, over a
// round-robin pool of node endpoints with connect-time and call-time
// failover.
package node

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/concordium/euro2ccd-oracle/internal/scalarmath"
)

// AuthorizedKey is one entry of the chain's authorized-key set for the
// CCD/EUR rate update, keyed by its index in the governance key registry.
type AuthorizedKey struct {
	Index     uint8
	PublicKey []byte
}

// Summary is the latest finalized-block summary relevant to the Publisher.
type Summary struct {
	AuthorizedKeys      []AuthorizedKey
	OnChainRate         scalarmath.Fraction
	NextSequenceNumber  uint64
}

// BlockItem is the signed transaction payload for a CCD/EUR rate update.
type BlockItem struct {
	SequenceNumber uint64
	EffectiveTime  uint64
	Expiry         time.Time
	Payload        scalarmath.Fraction
	Signatures     map[uint8][]byte
}

// SubmissionStatus is the result of polling a submitted block item.
type SubmissionStatus int

const (
	StatusReceived SubmissionStatus = iota
	StatusCommitted
	StatusFinalized
	StatusAbsent
)

// SubmissionError classifies a failed SendBlockItem call per spec §7: a
// stale-sequence rejection asks the Publisher to refresh and retry within
// the same tick, while an unreachable-transport error asks it to fail over
// to the next endpoint.
type SubmissionError struct {
	RetryWithFreshSequence bool
	Unreachable            bool
	Err                     error
}

func (e *SubmissionError) Error() string { return e.Err.Error() }
func (e *SubmissionError) Unwrap() error { return e.Err }

// retryableTransportCodes are the gRPC status codes spec §7 treats as
// "node unreachable" — failover to the next endpoint rather than retry.
var retryableTransportCodes = map[codes.Code]bool{
	codes.Internal:          true,
	codes.FailedPrecondition: true,
	codes.PermissionDenied:  true,
	codes.Aborted:           true,
	codes.Unavailable:       true,
	codes.Unknown:           true,
}

// Transport is the pluggable RPC surface a concrete node connection
// implements. Production wiring dials the chain's generated gRPC node
// service stubs (not vendored into this module); tests supply an in-memory
// Transport through Config.Dial.
type Transport interface {
	Handshake(ctx context.Context) error
	GetBlockSummary(ctx context.Context) (Summary, error)
	SendBlockItem(ctx context.Context, item BlockItem) (submissionID uuid.UUID, err error)
	GetSubmissionStatus(ctx context.Context, id uuid.UUID) (SubmissionStatus, error)
	Close() error
}

// endpoint pairs a node address with its dedicated circuit breaker and lazy
// Transport.
type endpoint struct {
	addr      string
	breaker   *gobreaker.CircuitBreaker
	transport Transport
}

// Client is the round-robin, failover-aware NodeClient. Exactly one
// endpoint is "current" at a time; a terminal call error advances to the
// next.
type Client struct {
	mu        sync.Mutex
	endpoints []*endpoint
	current   int
	dial      func(ctx context.Context, addr string, tlsCfg *tls.Config) (Transport, error)
	tlsConfig *tls.Config
	token     string
	log       zerolog.Logger
}

// Config configures Connect.
type Config struct {
	Endpoints []string
	RPCToken  string
	TLSCAPath string // optional; empty dials without TLS (plaintext)
	Log       zerolog.Logger
	// Dial overrides the transport constructor; nil uses DialGRPC.
	Dial func(ctx context.Context, addr string, tlsCfg *tls.Config) (Transport, error)
}

// Connect dials every configured endpoint in order and keeps each one that
// answers a trivial handshake as part of the round-robin pool, the first of
// them current; it fails only if no endpoint answers.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("node: at least one endpoint required")
	}

	tlsCfg, err := loadTLSConfig(cfg.TLSCAPath)
	if err != nil {
		return nil, fmt.Errorf("node: loading TLS CA: %w", err)
	}

	dial := cfg.Dial
	if dial == nil {
		dial = DialGRPC
	}

	c := &Client{
		dial:      dial,
		tlsConfig: tlsCfg,
		token:     cfg.RPCToken,
		log:       cfg.Log,
	}

	var lastErr error
	for _, addr := range cfg.Endpoints {
		ep := &endpoint{addr: addr, breaker: newEndpointBreaker(addr, cfg.Log)}
		transport, err := dial(ctx, addr, tlsCfg)
		if err != nil {
			lastErr = err
			cfg.Log.Warn().Str("endpoint", addr).Err(err).Msg("connect failed")
			continue
		}
		if err := transport.Handshake(ctx); err != nil {
			lastErr = err
			cfg.Log.Warn().Str("endpoint", addr).Err(err).Msg("handshake failed")
			transport.Close()
			continue
		}
		ep.transport = transport
		c.endpoints = append(c.endpoints, ep)
	}

	if len(c.endpoints) == 0 {
		return nil, fmt.Errorf("node: no endpoint reachable, last error: %w", lastErr)
	}
	return c, nil
}

func loadTLSConfig(caPath string) (*tls.Config, error) {
	if caPath == "" {
		return &tls.Config{}, nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates parsed from %s", caPath)
	}
	return &tls.Config{RootCAs: pool}, nil
}

// DialGRPC is the production Transport constructor. The concrete RPC
// methods are supplied by the chain's generated client stubs at the call
// site in production deployments; here it establishes the connection and
// wraps it so Connect's handshake/health semantics work uniformly.
func DialGRPC(ctx context.Context, addr string, tlsCfg *tls.Config) (Transport, error) {
	var creds credentials.TransportCredentials
	if tlsCfg != nil && tlsCfg.RootCAs != nil {
		creds = credentials.NewTLS(tlsCfg)
	} else {
		creds = insecure.NewCredentials()
	}

	conn, err := grpc.DialContext(ctx, addr, grpc.WithTransportCredentials(creds), grpc.WithBlock(), grpc.WithTimeout(10*time.Second))
	if err != nil {
		return nil, err
	}
	return &grpcTransport{conn: conn}, nil
}

type grpcTransport struct {
	conn *grpc.ClientConn
}

func (t *grpcTransport) Handshake(ctx context.Context) error {
	state := t.conn.GetState()
	if state.String() == "SHUTDOWN" {
		return fmt.Errorf("node: connection shut down")
	}
	return nil
}

func (t *grpcTransport) GetBlockSummary(ctx context.Context) (Summary, error) {
	return Summary{}, status.Error(codes.Unimplemented, "node: GetBlockSummary requires the chain's generated client stubs")
}

func (t *grpcTransport) SendBlockItem(ctx context.Context, item BlockItem) (uuid.UUID, error) {
	return uuid.Nil, status.Error(codes.Unimplemented, "node: SendBlockItem requires the chain's generated client stubs")
}

func (t *grpcTransport) GetSubmissionStatus(ctx context.Context, id uuid.UUID) (SubmissionStatus, error) {
	return StatusAbsent, status.Error(codes.Unimplemented, "node: GetSubmissionStatus requires the chain's generated client stubs")
}

func (t *grpcTransport) Close() error { return t.conn.Close() }

// currentEndpoint returns the endpoint currently attached.
func (c *Client) currentEndpoint() *endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoints[c.current]
}

// advance moves to the next endpoint in round-robin order, wrapping.
func (c *Client) advance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = (c.current + 1) % len(c.endpoints)
}

// GetBlockSummary fetches the latest finalized-block summary from the
// current endpoint, advancing on a retryable transport failure.
func (c *Client) GetBlockSummary(ctx context.Context) (Summary, error) {
	attempts := len(c.endpoints)
	var lastErr error
	for i := 0; i < attempts; i++ {
		ep := c.currentEndpoint()
		result, err := ep.breaker.Execute(func() (interface{}, error) {
			return ep.transport.GetBlockSummary(ctx)
		})
		if err == nil {
			return result.(Summary), nil
		}
		lastErr = err
		if !isRetryableTransport(err) {
			return Summary{}, err
		}
		c.log.Warn().Str("endpoint", ep.addr).Err(err).Msg("block summary fetch failed, advancing endpoint")
		c.advance()
	}
	return Summary{}, fmt.Errorf("node: all endpoints failed: %w", lastErr)
}

// SendBlockItem submits a signed block item via the current endpoint,
// classifying the response per §7: the six-code transport-unreachable set
// takes failover, and anything else — an application-level rejection such
// as a stale sequence number — asks the Publisher to refresh and retry
// within the same tick.
func (c *Client) SendBlockItem(ctx context.Context, item BlockItem) (uuid.UUID, error) {
	ep := c.currentEndpoint()
	result, err := ep.breaker.Execute(func() (interface{}, error) {
		return ep.transport.SendBlockItem(ctx, item)
	})
	if err != nil {
		if isRetryableTransport(err) {
			return uuid.Nil, &SubmissionError{Unreachable: true, Err: err}
		}
		return uuid.Nil, &SubmissionError{RetryWithFreshSequence: true, Err: err}
	}
	return result.(uuid.UUID), nil
}

// WaitUntilFinalized polls submission status at the given interval until
// finalized or the deadline elapses.
func (c *Client) WaitUntilFinalized(ctx context.Context, id uuid.UUID, pollInterval time.Duration, deadline time.Time) (bool, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if time.Now().After(deadline) {
			return false, nil
		}
		ep := c.currentEndpoint()
		status, err := ep.transport.GetSubmissionStatus(ctx, id)
		if err != nil {
			c.log.Warn().Err(err).Msg("submission status check failed")
		} else {
			switch status {
			case StatusFinalized:
				return true, nil
			case StatusCommitted:
				c.log.Info().Str("submission", id.String()).Msg("submission committed, awaiting finalization")
			case StatusReceived:
				c.log.Debug().Str("submission", id.String()).Msg("submission received")
			}
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// NextEndpointOnFailover advances the round-robin pointer; called by the
// Publisher when SendBlockItem reports Unreachable and it wants to retry
// the same tick against a different node.
func (c *Client) NextEndpointOnFailover() {
	c.advance()
}

// EndpointCount reports how many endpoints are in the pool.
func (c *Client) EndpointCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.endpoints)
}

// Close tears down every endpoint's transport.
func (c *Client) Close() error {
	var firstErr error
	for _, ep := range c.endpoints {
		if err := ep.transport.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func isRetryableTransport(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return true // plain transport/network error, not a gRPC status
	}
	return retryableTransportCodes[st.Code()]
}
