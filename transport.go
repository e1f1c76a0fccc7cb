package ergolink

import (
	"bufio"
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
)

// Transport is a framed distribution-protocol connection: ReadFrame and
// WriteFrame move whole distribution frames, not raw bytes. A
// zero-length frame from ReadFrame is a tick, the distribution
// protocol's keepalive. Implementations are expected to hand back a
// connection that is already authenticated (cookie checked); the
// default TCPDialer does this itself via the standard handshake.
type Transport interface {
	io.Closer
	ReadFrame() ([]byte, error)
	WriteFrame(payload []byte) error
}

// Dialer produces a Transport already connected and handshaked to a
// remote node.
type Dialer interface {
	Dial(ctx context.Context, local Node, remote string) (Transport, error)
}

// Resolver maps a node name to a dial address. This library does not
// speak EPMD (the real BEAM name server); the default Resolver is a
// static table the caller populates directly, and an EPMD client can be
// plugged in behind this interface if one is needed.
type Resolver interface {
	Resolve(nodeName string) (addr string, err error)
}

// StaticResolver is the default Resolver: a caller-populated map from
// node name to "host:port".
type StaticResolver struct {
	mu    sync.RWMutex
	addrs map[string]string
}

// NewStaticResolver returns an empty StaticResolver ready for Set calls.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{addrs: make(map[string]string)}
}

// Set records the dial address for nodeName.
func (s *StaticResolver) Set(nodeName, addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addrs[nodeName] = addr
}

func (s *StaticResolver) Resolve(nodeName string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.addrs[nodeName]
	if !ok {
		return "", fmt.Errorf("ergolink: no address registered for node %q", nodeName)
	}
	return addr, nil
}

// frameTransport is the default Transport: length-prefixed frames over a
// net.Conn, the wire shape every BEAM distribution connection uses once
// past the handshake (4-byte big-endian length, zero-length = tick).
type frameTransport struct {
	conn net.Conn
	r    *bufio.Reader
}

func (f *frameTransport) ReadFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(f.r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(f.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (f *frameTransport) WriteFrame(payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := f.conn.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := f.conn.Write(payload)
	return err
}

func (f *frameTransport) Close() error { return f.conn.Close() }

// TCPDialer is the default Dialer: it opens a TCP connection and runs
// the standard BEAM distribution handshake (send_name, recv_status,
// recv_challenge, send_challenge_reply, recv_challenge_ack) using the
// node's shared cookie.
type TCPDialer struct {
	Resolver Resolver
}

// NewTCPDialer returns a TCPDialer resolving node names via r.
func NewTCPDialer(r Resolver) *TCPDialer {
	return &TCPDialer{Resolver: r}
}

func (d *TCPDialer) Dial(ctx context.Context, local Node, remote string) (Transport, error) {
	addr, err := d.Resolver.Resolve(remote)
	if err != nil {
		return nil, err
	}
	var netDialer net.Dialer
	conn, err := netDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	ft := &frameTransport{conn: conn, r: bufio.NewReader(conn)}
	if err := runHandshake(ft, local); err != nil {
		conn.Close()
		return nil, err
	}
	return ft, nil
}

const (
	handshakeVersion       = 5
	flagExtendedReferences = 0x100
	flagExtendedPidsPorts  = 0x400
)

// During the handshake phase (before normal distribution framing takes
// over) every message is a 2-byte-length-prefixed blob, distinct from
// the 4-byte frames frameTransport uses afterward.
func writeHandshakeMsg(w io.Writer, payload []byte) error {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readHandshakeMsg(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func appendUint16(b []byte, v uint16) []byte {
	return append(b, byte(v>>8), byte(v))
}

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// challengeDigest is the md5(cookie ++ decimal(challenge)) digest the
// real distribution handshake uses on both sides of the exchange.
func challengeDigest(challenge uint32, cookie string) []byte {
	sum := md5.Sum([]byte(cookie + strconv.FormatUint(uint64(challenge), 10)))
	return sum[:]
}

func runHandshake(ft *frameTransport, local Node) error {
	nameMsg := make([]byte, 0, len(local.Name)+8)
	nameMsg = append(nameMsg, 'n')
	nameMsg = appendUint16(nameMsg, handshakeVersion)
	nameMsg = appendUint32(nameMsg, flagExtendedReferences|flagExtendedPidsPorts)
	nameMsg = append(nameMsg, local.Name...)
	if err := writeHandshakeMsg(ft.conn, nameMsg); err != nil {
		return fmt.Errorf("send_name: %w", err)
	}

	statusMsg, err := readHandshakeMsg(ft.r)
	if err != nil {
		return fmt.Errorf("recv_status: %w", err)
	}
	if len(statusMsg) == 0 || statusMsg[0] != 's' || !strings.HasPrefix(string(statusMsg[1:]), "ok") {
		return fmt.Errorf("recv_status: peer rejected connection: %q", statusMsg)
	}

	challengeMsg, err := readHandshakeMsg(ft.r)
	if err != nil {
		return fmt.Errorf("recv_challenge: %w", err)
	}
	if len(challengeMsg) < 11 || challengeMsg[0] != 'n' {
		return fmt.Errorf("recv_challenge: malformed challenge message")
	}
	peerChallenge := binary.BigEndian.Uint32(challengeMsg[7:11])

	digest := challengeDigest(peerChallenge, local.Cookie)
	ownChallenge := rand.Uint32()
	replyMsg := make([]byte, 0, 21)
	replyMsg = append(replyMsg, 'r')
	replyMsg = appendUint32(replyMsg, ownChallenge)
	replyMsg = append(replyMsg, digest...)
	if err := writeHandshakeMsg(ft.conn, replyMsg); err != nil {
		return fmt.Errorf("send_challenge_reply: %w", err)
	}

	ackMsg, err := readHandshakeMsg(ft.r)
	if err != nil {
		return fmt.Errorf("recv_challenge_ack: %w", err)
	}
	if len(ackMsg) < 17 || ackMsg[0] != 'a' {
		return fmt.Errorf("recv_challenge_ack: malformed ack message")
	}
	want := challengeDigest(ownChallenge, local.Cookie)
	if subtle.ConstantTimeCompare(ackMsg[1:17], want) != 1 {
		return fmt.Errorf("recv_challenge_ack: cookie mismatch")
	}
	return nil
}
