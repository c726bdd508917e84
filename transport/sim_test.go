package transport

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type simSink struct {
	mu   sync.Mutex
	data [][]byte
}

func (s *simSink) handler(p *Packet, addr net.Addr) error {
	defer p.Release()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, append([]byte(nil), p.Data...))
	return nil
}

func (s *simSink) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

func newSimPair(t *testing.T, cfg SimConfig) (*SimulatedNetwork, *SimulatedTransport, *SimulatedTransport, *simSink) {
	t.Helper()
	network, err := NewSimulatedNetwork(cfg)
	require.NoError(t, err)

	a := network.NewTransport()
	b := network.NewTransport()
	sink := &simSink{}
	b.RegisterHandler(PacketFECFragment, sink.handler)
	return network, a, b, sink
}

func TestSimConfig_Validate(t *testing.T) {
	assert.NoError(t, SimConfig{}.Validate())
	assert.NoError(t, SimConfig{LossRate: 1, DuplicateRate: 0.5}.Validate())
	assert.Error(t, SimConfig{LossRate: -0.1}.Validate())
	assert.Error(t, SimConfig{ReorderRate: 1.5}.Validate())

	_, err := NewSimulatedNetwork(SimConfig{DuplicateRate: 2})
	assert.Error(t, err)
}

func TestSimulatedTransport_PerfectLink(t *testing.T) {
	network, a, b, sink := newSimPair(t, SimConfig{})
	assert.NotEqual(t, a.LocalAddr().String(), b.LocalAddr().String())
	assert.Equal(t, "sim", a.LocalAddr().Network())

	for i := 0; i < 5; i++ {
		require.NoError(t, a.Send(&Packet{PacketType: PacketFECFragment, Data: []byte{byte(i)}}, b.LocalAddr()))
	}

	assert.Equal(t, [][]byte{{0}, {1}, {2}, {3}, {4}}, sink.received())

	sent, dropped, duplicated, reordered := network.Stats()
	assert.Equal(t, 5, sent)
	assert.Zero(t, dropped+duplicated+reordered)
	assert.Len(t, network.DeliveryLog(), 5)
}

func TestSimulatedTransport_TotalLoss(t *testing.T) {
	network, a, b, sink := newSimPair(t, SimConfig{LossRate: 1})

	require.NoError(t, a.Send(&Packet{PacketType: PacketFECFragment, Data: []byte{1}}, b.LocalAddr()))
	assert.Empty(t, sink.received())

	_, dropped, _, _ := network.Stats()
	assert.Equal(t, 1, dropped)
}

func TestSimulatedTransport_Duplicate(t *testing.T) {
	_, a, b, sink := newSimPair(t, SimConfig{DuplicateRate: 1})

	require.NoError(t, a.Send(&Packet{PacketType: PacketFECFragment, Data: []byte{7}}, b.LocalAddr()))
	assert.Equal(t, [][]byte{{7}, {7}}, sink.received())
}

func TestSimulatedTransport_Reorder(t *testing.T) {
	network, a, b, sink := newSimPair(t, SimConfig{ReorderRate: 1})

	require.NoError(t, a.Send(&Packet{PacketType: PacketFECFragment, Data: []byte{1}}, b.LocalAddr()))
	assert.Empty(t, sink.received())

	// Only one datagram is held at a time, so the second passes and releases
	// the first behind it.
	require.NoError(t, a.Send(&Packet{PacketType: PacketFECFragment, Data: []byte{2}}, b.LocalAddr()))
	assert.Equal(t, [][]byte{{2}, {1}}, sink.received())

	require.NoError(t, a.Send(&Packet{PacketType: PacketFECFragment, Data: []byte{3}}, b.LocalAddr()))
	network.Flush()
	assert.Equal(t, [][]byte{{2}, {1}, {3}}, sink.received())
}

func TestSimulatedTransport_SeedIsDeterministic(t *testing.T) {
	run := func() []DeliveryRecord {
		network, a, b, _ := newSimPair(t, SimConfig{LossRate: 0.3, DuplicateRate: 0.2, Seed: 42})
		for i := 0; i < 50; i++ {
			require.NoError(t, a.Send(&Packet{PacketType: PacketFECFragment, Data: []byte{byte(i)}}, b.LocalAddr()))
		}
		log := network.DeliveryLog()
		for i := range log {
			log[i].Timestamp = 0
			log[i].From, log[i].To = "", ""
		}
		return log
	}

	assert.Equal(t, run(), run())
}

func TestSimulatedTransport_Close(t *testing.T) {
	network, a, b, sink := newSimPair(t, SimConfig{})

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.True(t, b.IsClosed())

	require.NoError(t, a.Send(&Packet{PacketType: PacketFECFragment, Data: []byte{1}}, b.LocalAddr()))
	assert.Empty(t, sink.received())
	_, dropped, _, _ := network.Stats()
	assert.Equal(t, 1, dropped)

	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.Send(&Packet{PacketType: PacketFECFragment, Data: []byte{1}}, b.LocalAddr()), ErrTransportClosed)
}

func TestSimulatedTransport_UnhandledTypeReleased(t *testing.T) {
	_, a, b, sink := newSimPair(t, SimConfig{})

	require.NoError(t, a.Send(&Packet{PacketType: PacketType(0x01), Data: []byte{1}}, b.LocalAddr()))
	assert.Empty(t, sink.received())
}
