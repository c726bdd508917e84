package transport

import (
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// handlerRegistry maps packet types to handlers and dispatches received
// packets. It is shared by every Transport implementation.
type handlerRegistry struct {
	mu       sync.RWMutex
	handlers map[PacketType]PacketHandler
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{handlers: make(map[PacketType]PacketHandler)}
}

// RegisterHandler registers a handler for a specific packet type.
func (r *handlerRegistry) RegisterHandler(packetType PacketType, handler PacketHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[packetType] = handler
}

// dispatch runs the handler for the packet's type on the calling goroutine.
// Unhandled packets are released here.
func (r *handlerRegistry) dispatch(packet *Packet, addr net.Addr) {
	r.mu.RLock()
	handler, exists := r.handlers[packet.PacketType]
	r.mu.RUnlock()

	if !exists {
		logrus.WithFields(logrus.Fields{
			"function":    "dispatch",
			"packet_type": packet.PacketType,
			"remote_addr": addr.String(),
		}).Debug("No handler for packet type")
		packet.Release()
		return
	}

	if err := handler(packet, addr); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "dispatch",
			"packet_type": packet.PacketType,
			"remote_addr": addr.String(),
			"error":       err.Error(),
		}).Debug("Packet handler returned error")
	}
}
