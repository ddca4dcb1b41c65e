package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"rudpcore/internal/connstate"
	"rudpcore/internal/telemetry"
	"rudpcore/internal/wire"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(discard{})
	return l
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestHandshakeAdmitsConnectionAndRepliesConnectAck(t *testing.T) {
	ep, err := Listen("127.0.0.1:0", Config{MaxConnections: 10}, connstate.NewConfig(), telemetry.New(), quietLogger(), Handlers{})
	require.NoError(t, err)
	defer ep.conn.Close()

	client, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ep.Run(ctx)

	connectPkt := wire.Encode(wire.Packet{Header: wire.Header{Kind: wire.KindConnect}})
	_, err = client.WriteToUDP(connectPkt, ep.conn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, _, err := client.ReadFromUDP(buf)
	require.NoError(t, err)

	resp, err := wire.Decode(buf[:n])
	require.NoError(t, err)
	require.Equal(t, wire.KindConnectAck, resp.Header.Kind)
	require.Equal(t, 1, ep.ConnectionCount())
}

func TestServerFullRejectsNewConnections(t *testing.T) {
	ep, err := Listen("127.0.0.1:0", Config{MaxConnections: 1}, connstate.NewConfig(), telemetry.New(), quietLogger(), Handlers{})
	require.NoError(t, err)
	defer ep.conn.Close()

	a1 := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 40001}
	a2 := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 40002}

	ep.handleConnect(connstate.ID(a1.String()), a1, wire.Packet{})
	require.Equal(t, 1, ep.ConnectionCount())

	ep.handleConnect(connstate.ID(a2.String()), a2, wire.Packet{})
	require.Equal(t, 1, ep.ConnectionCount(), "second connect should have been refused at capacity")
}

func TestConnectRateLimiterThrottlesBurstConnects(t *testing.T) {
	ep, err := Listen("127.0.0.1:0", Config{
		MaxConnections:   1000,
		ConnectRateLimit: 1,
		ConnectBurst:     1,
	}, connstate.NewConfig(), telemetry.New(), quietLogger(), Handlers{})
	require.NoError(t, err)
	defer ep.conn.Close()

	a1 := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 41001}
	a2 := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 41002}

	ep.handleConnect(connstate.ID(a1.String()), a1, wire.Packet{})
	require.Equal(t, 1, ep.ConnectionCount())

	ep.handleConnect(connstate.ID(a2.String()), a2, wire.Packet{})
	require.Equal(t, 1, ep.ConnectionCount(), "second connect should have been throttled by the connect rate limiter")
}
