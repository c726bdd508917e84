package session

import (
	"errors"
	"net"
	"sync"

	"github.com/opd-ai/fecjitter/fec"
	"github.com/opd-ai/fecjitter/transport"
)

// mockTransport records sent packets and lets tests inject received ones.
type mockTransport struct {
	mu       sync.Mutex
	handlers map[transport.PacketType]transport.PacketHandler
	sent     []*transport.Packet
	sentTo   []net.Addr
	sendErr  error
	addr     net.Addr
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		handlers: make(map[transport.PacketType]transport.PacketHandler),
		addr:     &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000},
	}
}

func (m *mockTransport) Send(packet *transport.Packet, addr net.Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, &transport.Packet{
		PacketType: packet.PacketType,
		Data:       append([]byte(nil), packet.Data...),
	})
	m.sentTo = append(m.sentTo, addr)
	return nil
}

func (m *mockTransport) Close() error { return nil }

func (m *mockTransport) LocalAddr() net.Addr { return m.addr }

func (m *mockTransport) RegisterHandler(packetType transport.PacketType, handler transport.PacketHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[packetType] = handler
}

// deliver hands packet to the registered handler as if it had arrived.
func (m *mockTransport) deliver(packet *transport.Packet) error {
	m.mu.Lock()
	handler, exists := m.handlers[packet.PacketType]
	m.mu.Unlock()

	if !exists {
		return errors.New("no handler registered")
	}
	return handler(packet, m.addr)
}

// sentPackets returns fresh copies of everything sent so far.
func (m *mockTransport) sentPackets() []*transport.Packet {
	m.mu.Lock()
	defer m.mu.Unlock()

	packets := make([]*transport.Packet, len(m.sent))
	for i, p := range m.sent {
		packets[i] = &transport.Packet{
			PacketType: p.PacketType,
			Data:       append([]byte(nil), p.Data...),
		}
	}
	return packets
}

func (m *mockTransport) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.sentTo = nil
}

func patternFrame(size int) []byte {
	frame := make([]byte, size)
	for i := range frame {
		frame[i] = byte(i)
	}
	return frame
}

func newTestCodec() *fec.Codec {
	codec, err := fec.NewCodec(4, 6, 64)
	if err != nil {
		panic(err)
	}
	return codec
}
