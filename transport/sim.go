package transport

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrTransportClosed is returned by Send on a closed simulated transport.
var ErrTransportClosed = errors.New("transport closed")

// SimConfig describes the impairments of a simulated link. Rates are
// probabilities in [0, 1] applied independently to every datagram.
type SimConfig struct {
	LossRate      float64 `yaml:"loss_rate"`
	DuplicateRate float64 `yaml:"duplicate_rate"`
	ReorderRate   float64 `yaml:"reorder_rate"` // held back and delivered after the next datagram
	Seed          int64   `yaml:"seed"`
}

// Validate checks every rate is a probability.
func (c SimConfig) Validate() error {
	for name, rate := range map[string]float64{
		"loss rate":      c.LossRate,
		"duplicate rate": c.DuplicateRate,
		"reorder rate":   c.ReorderRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%s %v outside [0, 1]", name, rate)
		}
	}
	return nil
}

// DeliveryRecord is one datagram handled by a SimulatedNetwork.
type DeliveryRecord struct {
	From       string
	To         string
	PacketSize int
	Timestamp  int64
	Dropped    bool
	Duplicated bool
	Reordered  bool
}

// simAddr is the address of a simulated endpoint.
type simAddr string

func (a simAddr) Network() string { return "sim" }
func (a simAddr) String() string  { return string(a) }

type pendingDelivery struct {
	to   *SimulatedTransport
	from net.Addr
	data []byte
}

// SimulatedNetwork connects SimulatedTransports in memory. Delivery happens
// synchronously on the sender's goroutine, into pooled buffers, so receivers
// see the same ownership rules as with UDP.
type SimulatedNetwork struct {
	mu          sync.Mutex
	cfg         SimConfig
	rng         *rand.Rand
	endpoints   map[string]*SimulatedTransport
	nextID      int
	held        *pendingDelivery
	deliveryLog []DeliveryRecord
	pool        *BufferPool
}

// NewSimulatedNetwork creates an empty network with the given impairments.
func NewSimulatedNetwork(cfg SimConfig) (*SimulatedNetwork, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":       "NewSimulatedNetwork",
		"loss_rate":      cfg.LossRate,
		"duplicate_rate": cfg.DuplicateRate,
		"reorder_rate":   cfg.ReorderRate,
		"seed":           cfg.Seed,
	}).Info("Creating simulated network")

	return &SimulatedNetwork{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		endpoints: make(map[string]*SimulatedTransport),
		pool:      NewBufferPool(MaxDatagramSize),
	}, nil
}

// NewTransport attaches a new endpoint to the network.
func (n *SimulatedNetwork) NewTransport() *SimulatedTransport {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	t := &SimulatedTransport{
		handlerRegistry: newHandlerRegistry(),
		network:         n,
		addr:            simAddr(fmt.Sprintf("sim-%d", n.nextID)),
	}
	n.endpoints[t.addr.String()] = t
	return t
}

// send routes data from one endpoint to addr, applying impairments.
func (n *SimulatedNetwork) send(from *SimulatedTransport, data []byte, addr net.Addr) {
	n.mu.Lock()
	record := DeliveryRecord{
		From:       from.addr.String(),
		To:         addr.String(),
		PacketSize: len(data),
		Timestamp:  time.Now().UnixNano(),
	}

	to, exists := n.endpoints[addr.String()]
	if !exists || n.rng.Float64() < n.cfg.LossRate {
		record.Dropped = true
		n.deliveryLog = append(n.deliveryLog, record)
		n.mu.Unlock()
		return
	}

	var deliveries []pendingDelivery
	current := pendingDelivery{to: to, from: from.addr, data: data}

	if n.held == nil && n.rng.Float64() < n.cfg.ReorderRate {
		record.Reordered = true
		n.held = &current
	} else {
		deliveries = append(deliveries, current)
		if n.rng.Float64() < n.cfg.DuplicateRate {
			record.Duplicated = true
			deliveries = append(deliveries, current)
		}
		if n.held != nil {
			deliveries = append(deliveries, *n.held)
			n.held = nil
		}
	}
	n.deliveryLog = append(n.deliveryLog, record)
	n.mu.Unlock()

	for _, d := range deliveries {
		n.deliver(d)
	}
}

// deliver copies the datagram into a pooled buffer and dispatches it.
func (n *SimulatedNetwork) deliver(d pendingDelivery) {
	if d.to.IsClosed() {
		return
	}
	if len(d.data) > n.pool.Size() {
		logrus.WithFields(logrus.Fields{
			"function":    "SimulatedNetwork.deliver",
			"packet_size": len(d.data),
			"max_size":    n.pool.Size(),
		}).Warn("Dropping oversized datagram")
		return
	}

	buf := n.pool.Get()
	copied := copy(*buf, d.data)
	packet, err := parsePooledPacket(n.pool, buf, copied)
	if err != nil {
		n.pool.Put(buf)
		return
	}
	d.to.dispatch(packet, d.from)
}

// Flush delivers a datagram still held back for reordering.
func (n *SimulatedNetwork) Flush() {
	n.mu.Lock()
	held := n.held
	n.held = nil
	n.mu.Unlock()

	if held != nil {
		n.deliver(*held)
	}
}

// DeliveryLog returns a copy of every datagram record so far.
func (n *SimulatedNetwork) DeliveryLog() []DeliveryRecord {
	n.mu.Lock()
	defer n.mu.Unlock()

	log := make([]DeliveryRecord, len(n.deliveryLog))
	copy(log, n.deliveryLog)
	return log
}

// Stats summarizes the delivery log.
func (n *SimulatedNetwork) Stats() (sent, dropped, duplicated, reordered int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, record := range n.deliveryLog {
		sent++
		if record.Dropped {
			dropped++
		}
		if record.Duplicated {
			duplicated++
		}
		if record.Reordered {
			reordered++
		}
	}
	return sent, dropped, duplicated, reordered
}

func (n *SimulatedNetwork) detach(t *SimulatedTransport) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.endpoints, t.addr.String())
	if n.held != nil && n.held.to == t {
		n.held = nil
	}
}

// SimulatedTransport is an endpoint of a SimulatedNetwork.
type SimulatedTransport struct {
	*handlerRegistry

	network *SimulatedNetwork
	addr    simAddr

	closeMu sync.RWMutex
	closed  bool
}

// Send routes packet through the simulated network.
func (t *SimulatedTransport) Send(packet *Packet, addr net.Addr) error {
	if t.IsClosed() {
		return ErrTransportClosed
	}

	data, err := packet.Serialize()
	if err != nil {
		return err
	}

	t.network.send(t, data, addr)
	return nil
}

// Close detaches the endpoint. Datagrams addressed to it are dropped.
func (t *SimulatedTransport) Close() error {
	t.closeMu.Lock()
	if t.closed {
		t.closeMu.Unlock()
		return nil
	}
	t.closed = true
	t.closeMu.Unlock()

	t.network.detach(t)
	return nil
}

// IsClosed reports whether Close has been called.
func (t *SimulatedTransport) IsClosed() bool {
	t.closeMu.RLock()
	defer t.closeMu.RUnlock()
	return t.closed
}

// LocalAddr returns the endpoint's simulated address.
func (t *SimulatedTransport) LocalAddr() net.Addr {
	return t.addr
}
