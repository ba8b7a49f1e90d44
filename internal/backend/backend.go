// Package backend defines the immutable upstream server descriptor shared by
// the ring and the health supervisor.
package backend

import (
	"fmt"

	"github.com/maralla/udphashproxy/internal/sock"
)

// Backend is an upstream server identified by (host, data port, admin port).
// It is constructed once at worker startup and lives for the process
// lifetime; removing it from the ring does not destroy it, since the health
// supervisor must keep probing it in order to detect recovery.
type Backend struct {
	Host       string
	DataPort   int
	AdminPort  int
	sendSocket *sock.UDPSendSocket
}

// New constructs a Backend and opens its connected UDP forwarding socket.
func New(host string, dataPort, adminPort int) (*Backend, error) {
	s, err := sock.NewUDPSendSocket(host, dataPort)
	if err != nil {
		return nil, fmt.Errorf("backend %s:%d: open send socket: %w", host, dataPort, err)
	}
	return &Backend{Host: host, DataPort: dataPort, AdminPort: adminPort, sendSocket: s}, nil
}

// Name is the ring identity: (host, data_port). Two backends are equal iff
// their names are equal.
func (b *Backend) Name() string {
	return fmt.Sprintf("%s:%d", b.Host, b.DataPort)
}

// Forward sends the verbatim datagram to this backend's data port.
func (b *Backend) Forward(datagram []byte) (int, error) {
	return b.sendSocket.Send(datagram)
}

// Close releases the backend's forwarding socket. Called only at process
// shutdown.
func (b *Backend) Close() error {
	return b.sendSocket.Close()
}
