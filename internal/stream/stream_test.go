package stream

import (
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

type nopCloser struct {
	io.ReadWriter
}

func (nopCloser) Close() error { return nil }

func TestGenericStreamHasNoTCPFastPath(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewGeneric(nopCloser{buf})

	_, ok := s.TCPConn()
	require.False(t, ok)

	_, err := s.Write([]byte("hello"))
	require.NoError(t, err)

	out := make([]byte, 5)
	n, err := s.Read(out)
	require.NoError(t, err)
	require.Equal(t, "hello", string(out[:n]))
}

func TestTCPStreamExposesFastPath(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	server := <-accepted
	defer server.Close()

	tcpConn, ok := server.(*net.TCPConn)
	require.True(t, ok)

	s := NewTCP(tcpConn)
	conn, ok := s.TCPConn()
	require.True(t, ok)
	require.NotNil(t, conn)
	require.Equal(t, client.LocalAddr().String(), conn.RemoteAddr().String())
}

func TestPeerAddr(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	server := <-accepted
	defer server.Close()

	s := NewTCP(server.(*net.TCPConn))
	require.Equal(t, client.LocalAddr().String(), PeerAddr(s).String())

	generic := NewGeneric(nopCloser{&bytes.Buffer{}})
	require.Nil(t, PeerAddr(generic))
}
