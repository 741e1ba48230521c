package tcp

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-httpcore/pkg/types"
)

func originOf(t *testing.T, addr net.Addr) types.Origin {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr.String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return types.NewOrigin("http", host, port)
}

func TestNew(t *testing.T) {
	tr := New(time.Second, 0)
	require.NotNil(t, tr)
	assert.False(t, tr.IsClosed())
	require.NoError(t, tr.Close())
	assert.True(t, tr.IsClosed())
	require.NoError(t, tr.Close(), "second close is a no-op")
}

func TestTransport_DialAndAccept(t *testing.T) {
	tr := New(time.Second, 30*time.Second)
	defer tr.Close()

	ln, err := tr.Listen("127.0.0.1:0")
	require.NoError(t, err)
	assert.Equal(t, 1, tr.ListenerCount())

	accepted := make(chan []byte, 1)
	go func() {
		ep, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		defer ep.Close()
		buf := make([]byte, 5)
		_, _ = io.ReadFull(ep, buf)
		_, _ = ep.Write([]byte("pong!"))
		accepted <- buf
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ep, err := tr.Dial(ctx, originOf(t, ln.Addr()))
	require.NoError(t, err)
	defer ep.Close()

	_, err = ep.Write([]byte("ping!"))
	require.NoError(t, err)
	reply := make([]byte, 5)
	_, err = io.ReadFull(ep, reply)
	require.NoError(t, err)

	assert.Equal(t, "pong!", string(reply))
	assert.Equal(t, "ping!", string(<-accepted))
	assert.Equal(t, ln.Addr().String(), ep.RemoteAddr().String())
}

func TestTransport_DialRefused(t *testing.T) {
	tr := New(time.Second, 0)
	defer tr.Close()

	// 监听后立即关闭，端口上没有服务
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr()
	ln.Close()

	_, err = tr.Dial(context.Background(), originOf(t, addr))
	assert.Error(t, err)
}

func TestTransport_DialAfterClose(t *testing.T) {
	tr := New(time.Second, 0)
	require.NoError(t, tr.Close())

	_, err := tr.Dial(context.Background(), types.NewOrigin("http", "127.0.0.1", 80))
	assert.ErrorIs(t, err, ErrTransportClosed)
	_, err = tr.Listen("127.0.0.1:0")
	assert.ErrorIs(t, err, ErrTransportClosed)
}

func TestTransport_CloseClosesListeners(t *testing.T) {
	tr := New(time.Second, 0)
	ln, err := tr.Listen("127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := ln.Accept()
		done <- err
	}()

	require.NoError(t, tr.Close())
	assert.True(t, ln.IsClosed())
	assert.Equal(t, 0, tr.ListenerCount())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Accept did not return after close")
	}
}

func TestListener_CloseRemovesFromTransport(t *testing.T) {
	tr := New(time.Second, 0)
	defer tr.Close()

	ln, err := tr.Listen("127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())
	require.NoError(t, ln.Close())
	assert.Equal(t, 0, tr.ListenerCount())
}
