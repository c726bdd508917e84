package transport

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// readTimeout bounds each blocking read so the loop notices Close promptly.
const readTimeout = 100 * time.Millisecond

// UDPTransport implements Transport over a UDP socket.
type UDPTransport struct {
	*handlerRegistry

	conn   net.PacketConn
	pool   *BufferPool
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewUDPTransport listens on listenAddr and starts the read loop.
func NewUDPTransport(listenAddr string) (Transport, error) {
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "NewUDPTransport",
			"listen_addr": listenAddr,
			"error":       err.Error(),
		}).Error("Failed to listen")
		return nil, err
	}

	return newUDPTransport(conn), nil
}

func newUDPTransport(conn net.PacketConn) *UDPTransport {
	ctx, cancel := context.WithCancel(context.Background())

	t := &UDPTransport{
		handlerRegistry: newHandlerRegistry(),
		conn:            conn,
		pool:            NewBufferPool(MaxDatagramSize),
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewUDPTransport",
		"local_addr": conn.LocalAddr().String(),
	}).Info("UDP transport listening")

	go t.processPackets()

	return t
}

// Send sends a packet to the specified address.
func (t *UDPTransport) Send(packet *Packet, addr net.Addr) error {
	data, err := packet.Serialize()
	if err != nil {
		return err
	}

	_, err = t.conn.WriteTo(data, addr)
	return err
}

// Close stops the read loop and closes the socket.
func (t *UDPTransport) Close() error {
	t.cancel()
	err := t.conn.Close()
	<-t.done

	logrus.WithFields(logrus.Fields{
		"function": "UDPTransport.Close",
	}).Info("UDP transport closed")
	return err
}

// LocalAddr returns the local address the transport is listening on.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// processPackets is the read loop.
func (t *UDPTransport) processPackets() {
	defer close(t.done)

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
			t.processIncomingPacket()
		}
	}
}

// processIncomingPacket reads one datagram into a pooled buffer and hands it
// to its handler.
func (t *UDPTransport) processIncomingPacket() {
	buf := t.pool.Get()

	n, addr, err := t.readPacketData(*buf)
	if err != nil {
		t.pool.Put(buf)
		return
	}

	packet, err := parsePooledPacket(t.pool, buf, n)
	if err != nil {
		t.pool.Put(buf)
		return
	}

	t.dispatch(packet, addr)
}

// readPacketData reads a datagram with a short deadline.
func (t *UDPTransport) readPacketData(buffer []byte) (int, net.Addr, error) {
	_ = t.conn.SetReadDeadline(time.Now().Add(readTimeout))

	n, addr, err := t.conn.ReadFrom(buffer)
	if err != nil {
		return 0, nil, t.handleReadError(err)
	}
	return n, addr, nil
}

// handleReadError logs read failures other than timeouts and shutdown.
func (t *UDPTransport) handleReadError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return err
	}
	if errors.Is(err, net.ErrClosed) {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "UDPTransport.handleReadError",
		"error":    err.Error(),
	}).Warn("UDP read failed")
	return err
}
