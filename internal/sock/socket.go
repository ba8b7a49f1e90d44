// Package sock provides non-blocking UDP and TCP socket primitives for the
// dispatch engine. Every call translates EAGAIN/EWOULDBLOCK into a distinct
// "not ready" result rather than an error, and every socket is created
// close-on-exec and non-blocking so the event loop never stalls on I/O.
package sock

import (
	"errors"
	"net"

	"golang.org/x/sys/unix"
)

// ErrNotReady is returned by Recvfrom/Sendto/Recv/Send when the underlying
// syscall would have blocked. It is not an error condition for the caller:
// the event loop re-arms interest and returns control to the poller.
var ErrNotReady = errors.New("sock: not ready")

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// resolve4 resolves addr to a 4-byte IPv4 address and port. IPv6 is out of
// scope: the original proxy and its backends are addressed by IPv4 host and
// port pairs.
func resolve4(host string, port int) (unix.SockaddrInet4, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil {
			return unix.SockaddrInet4{}, err
		}
		for _, c := range ips {
			if v4 := c.To4(); v4 != nil {
				ip = v4
				break
			}
		}
		if ip == nil {
			return unix.SockaddrInet4{}, errors.New("sock: no A record for " + host)
		}
	}
	v4 := ip.To4()
	if v4 == nil {
		return unix.SockaddrInet4{}, errors.New("sock: not an IPv4 address: " + host)
	}
	var sa unix.SockaddrInet4
	sa.Port = port
	copy(sa.Addr[:], v4)
	return sa, nil
}

// UDPListener is a non-blocking UDP socket bound for receiving datagrams,
// with SO_REUSEADDR and SO_REUSEPORT set before bind so that N workers can
// share the ingress port at the kernel level.
type UDPListener struct {
	FD int
}

// ListenUDP binds a non-blocking, reuseport UDP listener to host:port.
func ListenUDP(host string, port int) (*UDPListener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	sa, err := resolve4(host, port)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, &sa); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return &UDPListener{FD: fd}, nil
}

// Recvfrom reads one datagram into buf. It returns ErrNotReady instead of an
// error when the socket has nothing to read.
func (l *UDPListener) Recvfrom(buf []byte) (int, error) {
	n, _, err := unix.Recvfrom(l.FD, buf, 0)
	if err != nil {
		if isWouldBlock(err) {
			return 0, ErrNotReady
		}
		return 0, err
	}
	return n, nil
}

// Close closes the listening socket.
func (l *UDPListener) Close() error {
	return unix.Close(l.FD)
}

// UDPSendSocket is a non-blocking, connected UDP socket used to forward
// datagrams to one backend. It has no bind; the peer is fixed at creation.
type UDPSendSocket struct {
	FD int
}

// NewUDPSendSocket creates a connected UDP socket targeting host:port. The
// "connect" here only fixes the default peer for Send(); it never blocks and
// issues no handshake, since UDP is connectionless.
func NewUDPSendSocket(host string, port int) (*UDPSendSocket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	sa, err := resolve4(host, port)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := unix.Connect(fd, &sa); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return &UDPSendSocket{FD: fd}, nil
}

// Send writes buf to the socket's connected peer.
func (s *UDPSendSocket) Send(buf []byte) (int, error) {
	err := unix.Sendto(s.FD, buf, 0, nil)
	if err != nil {
		if isWouldBlock(err) {
			return 0, ErrNotReady
		}
		return 0, err
	}
	return len(buf), nil
}

// Close closes the sending socket.
func (s *UDPSendSocket) Close() error {
	return unix.Close(s.FD)
}

// TCPStream is a non-blocking TCP socket used for the admin health channel.
type TCPStream struct {
	FD int
}

// DialTCP starts a non-blocking connect to host:port. A connect() that
// returns EINPROGRESS is reported as success-pending, not as an error: the
// caller registers for writable and treats the first writable event as
// "connected" (the standard non-blocking connect idiom).
func DialTCP(host string, port int) (*TCPStream, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	sa, err := resolve4(host, port)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := unix.Connect(fd, &sa); err != nil && !errors.Is(err, unix.EINPROGRESS) {
		_ = unix.Close(fd)
		return nil, err
	}
	return &TCPStream{FD: fd}, nil
}

// Recv reads into buf. Returns ErrNotReady when nothing is available.
func (s *TCPStream) Recv(buf []byte) (int, error) {
	n, err := unix.Read(s.FD, buf)
	if err != nil {
		if isWouldBlock(err) {
			return 0, ErrNotReady
		}
		return 0, err
	}
	return n, nil
}

// Send writes buf. Returns ErrNotReady when the socket's send buffer is full.
func (s *TCPStream) Send(buf []byte) (int, error) {
	n, err := unix.Write(s.FD, buf)
	if err != nil {
		if isWouldBlock(err) {
			return 0, ErrNotReady
		}
		return 0, err
	}
	return n, nil
}

// Shutdown is a best-effort half/full close, used to unwind a connection
// after a probe failure without waiting on a graceful TCP teardown.
func (s *TCPStream) Shutdown() error {
	_ = unix.Shutdown(s.FD, unix.SHUT_RDWR)
	return nil
}

// Close closes the stream's file descriptor.
func (s *TCPStream) Close() error {
	return unix.Close(s.FD)
}
