package ergolink

import (
	"bufio"
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver()
	_, err := r.Resolve("nobody@nowhere")
	require.Error(t, err)

	r.Set("server@host", "127.0.0.1:9999")
	addr, err := r.Resolve("server@host")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", addr)
}

func TestFrameTransportRoundTripAndTick(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ft := &frameTransport{conn: client, r: bufio.NewReader(client)}

	go func() {
		// Echo one frame back, then a tick (zero-length frame).
		peer := &frameTransport{conn: server, r: bufio.NewReader(server)}
		frame, err := peer.ReadFrame()
		if err != nil {
			return
		}
		peer.WriteFrame(frame)
		peer.WriteFrame(nil)
	}()

	require.NoError(t, ft.WriteFrame([]byte{1, 2, 3}))
	frame, err := ft.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, frame)

	tick, err := ft.ReadFrame()
	require.NoError(t, err)
	require.Nil(t, tick)
}

// servePeerHandshake drives the remote side of the distribution
// handshake: receive send_name, reply status ok, challenge the client,
// verify its digest against cookie, and ack with ackCookie (pass a
// different ackCookie to simulate a peer holding the wrong secret).
func servePeerHandshake(t *testing.T, conn net.Conn, cookie, ackCookie string) {
	t.Helper()
	r := bufio.NewReader(conn)

	nameMsg, err := readHandshakeMsg(r)
	require.NoError(t, err)
	require.Equal(t, byte('n'), nameMsg[0])

	require.NoError(t, writeHandshakeMsg(conn, []byte("sok")))

	const serverChallenge = 0xC0FFEE
	challengeMsg := make([]byte, 0, 32)
	challengeMsg = append(challengeMsg, 'n')
	challengeMsg = appendUint16(challengeMsg, handshakeVersion)
	challengeMsg = appendUint32(challengeMsg, flagExtendedReferences|flagExtendedPidsPorts)
	challengeMsg = appendUint32(challengeMsg, serverChallenge)
	challengeMsg = append(challengeMsg, "server@host"...)
	require.NoError(t, writeHandshakeMsg(conn, challengeMsg))

	replyMsg, err := readHandshakeMsg(r)
	require.NoError(t, err)
	require.Equal(t, byte('r'), replyMsg[0])
	clientChallenge := binary.BigEndian.Uint32(replyMsg[1:5])
	require.Equal(t, challengeDigest(serverChallenge, cookie), replyMsg[5:21])

	ackMsg := make([]byte, 0, 17)
	ackMsg = append(ackMsg, 'a')
	ackMsg = append(ackMsg, challengeDigest(clientChallenge, ackCookie)...)
	require.NoError(t, writeHandshakeMsg(conn, ackMsg))
}

func TestHandshakeSucceedsWithSharedCookie(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go servePeerHandshake(t, server, "secret", "secret")

	ft := &frameTransport{conn: client, r: bufio.NewReader(client)}
	err := runHandshake(ft, Node{Name: "client@host", Cookie: "secret"})
	require.NoError(t, err)
}

func TestHandshakeRejectsWrongPeerCookie(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go servePeerHandshake(t, server, "secret", "wrong")

	ft := &frameTransport{conn: client, r: bufio.NewReader(client)}
	err := runHandshake(ft, Node{Name: "client@host", Cookie: "secret"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "cookie mismatch")
}

// Connecting to a node the resolver doesn't know fails immediately with
// ConnectionFailed, not a timeout.
func TestConnectToUnknownNodeIsConnectionFailed(t *testing.T) {
	node := NewNode("client@host", "secret")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	_, err := node.Connect(ctx, "down@nowhere", "")
	require.ErrorIs(t, err, ErrConnectionFailed)
	require.Less(t, time.Since(start), time.Second)
}

func TestConnectWithoutIdentityIsInitFailed(t *testing.T) {
	node := &Node{Name: "", Cookie: "secret"}
	_, err := node.Connect(context.Background(), "server@host", "")
	require.ErrorIs(t, err, ErrInitFailed)
}
