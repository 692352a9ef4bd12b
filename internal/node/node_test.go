package node

import (
	"context"
	"crypto/tls"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeTransport struct {
	handshakeErr error
	summary      Summary
	sendErr      error
	statusSeq    []SubmissionStatus
	statusIdx    int
	closed       bool
}

func (f *fakeTransport) Handshake(ctx context.Context) error { return f.handshakeErr }
func (f *fakeTransport) GetBlockSummary(ctx context.Context) (Summary, error) {
	return f.summary, nil
}
func (f *fakeTransport) SendBlockItem(ctx context.Context, item BlockItem) (uuid.UUID, error) {
	if f.sendErr != nil {
		return uuid.Nil, f.sendErr
	}
	return uuid.New(), nil
}
func (f *fakeTransport) GetSubmissionStatus(ctx context.Context, id uuid.UUID) (SubmissionStatus, error) {
	if f.statusIdx >= len(f.statusSeq) {
		return StatusAbsent, nil
	}
	s := f.statusSeq[f.statusIdx]
	f.statusIdx++
	return s, nil
}
func (f *fakeTransport) Close() error { f.closed = true; return nil }

func connectFake(t *testing.T, transports map[string]*fakeTransport) *Client {
	t.Helper()
	addrs := make([]string, 0, len(transports))
	for a := range transports {
		addrs = append(addrs, a)
	}
	cfg := Config{
		Endpoints: addrs,
		Log:       zerolog.Nop(),
		Dial: func(ctx context.Context, addr string, tlsCfg *tls.Config) (Transport, error) {
			return transports[addr], nil
		},
	}
	c, err := Connect(context.Background(), cfg)
	require.NoError(t, err)
	return c
}

func TestConnectFailoverSkipsUnreachable(t *testing.T) {
	addrs := map[string]*fakeTransport{
		"bad":  {handshakeErr: assertErr("down")},
		"good": {},
	}
	c := connectFake(t, addrs)
	assert.Equal(t, 1, c.EndpointCount())
}

func TestWaitUntilFinalizedSucceeds(t *testing.T) {
	tr := &fakeTransport{statusSeq: []SubmissionStatus{StatusReceived, StatusCommitted, StatusFinalized}}
	c := connectFake(t, map[string]*fakeTransport{"n": tr})

	ok, err := c.WaitUntilFinalized(context.Background(), uuid.New(), 10*time.Millisecond, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWaitUntilFinalizedTimesOut(t *testing.T) {
	tr := &fakeTransport{statusSeq: []SubmissionStatus{StatusReceived}}
	c := connectFake(t, map[string]*fakeTransport{"n": tr})

	ok, err := c.WaitUntilFinalized(context.Background(), uuid.New(), 5*time.Millisecond, time.Now().Add(20*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSendBlockItemClassifiesStaleSequence(t *testing.T) {
	tr := &fakeTransport{sendErr: status.Error(codes.InvalidArgument, "stale sequence number")}
	c := connectFake(t, map[string]*fakeTransport{"n": tr})

	_, err := c.SendBlockItem(context.Background(), BlockItem{})
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.True(t, subErr.RetryWithFreshSequence)
}

func TestSendBlockItemClassifiesUnreachable(t *testing.T) {
	tr := &fakeTransport{sendErr: status.Error(codes.Unavailable, "no route")}
	c := connectFake(t, map[string]*fakeTransport{"n": tr})

	_, err := c.SendBlockItem(context.Background(), BlockItem{})
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.True(t, subErr.Unreachable)
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }
