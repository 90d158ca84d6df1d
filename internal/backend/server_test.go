package backend

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatroom/backend/internal/config"
	"github.com/chatroom/backend/internal/protocol"
)

func startTestServer(t *testing.T) (*Server, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.BackendConfig{
		ServerID:      100,
		ListenAddr:    "127.0.0.1:0",
		AdvertiseAddr: "127.0.0.1:0",
	}
	srv := NewServer(cfg, rdb, &recordingStatus{}, nil)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(srv.Stop)
	return srv, rdb, mr
}

// dialAndVerify connects a client and completes the token handshake.
func dialAndVerify(t *testing.T, addr, token string, wantUID uint64) (net.Conn, <-chan *protocol.Frame) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	out := make(chan *protocol.Frame, 16)
	go func() {
		for {
			f, err := protocol.ReadFrame(conn)
			if err != nil {
				close(out)
				return
			}
			out <- f
		}
	}()

	_, err = conn.Write(protocol.EncodeFrame(protocol.TagVerify, protocol.EncodeVerify(wantUID, token)))
	require.NoError(t, err)

	f := recvFrame(t, out)
	require.Equal(t, protocol.TagVerifyDone, f.Tag)
	require.Contains(t, string(f.Payload), "verify success")
	return conn, out
}

func TestServerHandshakeAndLocalChat(t *testing.T) {
	srv, rdb, _ := startTestServer(t)
	ctx := context.Background()

	require.NoError(t, rdb.Set(ctx, tokenKeyPrefix+"tok-alice", "1", time.Minute).Err())
	require.NoError(t, rdb.Set(ctx, tokenKeyPrefix+"tok-bob", "2", time.Minute).Err())

	alice, _ := dialAndVerify(t, srv.Addr(), "tok-alice", 1)
	_, bobOut := dialAndVerify(t, srv.Addr(), "tok-bob", 2)

	_, err := alice.Write(protocol.EncodeFrame(protocol.TagChatMsg, protocol.ChatPayload(2, []byte("hi bob"))))
	require.NoError(t, err)

	f := recvFrame(t, bobOut)
	assert.Equal(t, protocol.TagChatMsgToCli, f.Tag)
	from, content, err := protocol.SplitChatPayload(f.Payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), from)
	assert.Equal(t, []byte("hi bob"), content)
}

func TestServerRejectsBadToken(t *testing.T) {
	srv, _, _ := startTestServer(t)

	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(protocol.EncodeFrame(protocol.TagVerify, protocol.EncodeVerify(1, "bogus")))
	require.NoError(t, err)

	// Server closes the connection; the next read reports it.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = protocol.ReadFrame(conn)
	assert.Error(t, err)
}

func TestServerDisconnectFreesUID(t *testing.T) {
	srv, rdb, mr := startTestServer(t)
	ctx := context.Background()

	require.NoError(t, rdb.Set(ctx, tokenKeyPrefix+"tok", "42", time.Minute).Err())
	conn, _ := dialAndVerify(t, srv.Addr(), "tok", 42)

	require.Eventually(t, func() bool {
		return mr.Exists(statusKeyPrefix + "42")
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return !mr.Exists(statusKeyPrefix + "42")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerStopClosesSessions(t *testing.T) {
	srv, rdb, _ := startTestServer(t)
	ctx := context.Background()

	require.NoError(t, rdb.Set(ctx, tokenKeyPrefix+"tok", "7", time.Minute).Err())
	conn, out := dialAndVerify(t, srv.Addr(), "tok", 7)

	srv.Stop()

	select {
	case _, open := <-out:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("client connection survived server stop")
	}
	_ = conn
}
