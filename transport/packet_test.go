package transport

import (
	"bytes"
	"testing"
)

// TestPacketSerialize tests the Packet.Serialize method.
func TestPacketSerialize(t *testing.T) {
	tests := []struct {
		name    string
		packet  *Packet
		wantErr bool
	}{
		{
			name: "valid packet",
			packet: &Packet{
				PacketType: PacketFECFragment,
				Data:       []byte{1, 2, 3, 4},
			},
			wantErr: false,
		},
		{
			name: "empty data",
			packet: &Packet{
				PacketType: PacketFECFragment,
				Data:       []byte{},
			},
			wantErr: false,
		},
		{
			name: "nil data",
			packet: &Packet{
				PacketType: PacketFECFragment,
				Data:       nil,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.packet.Serialize()
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}

			// Verify format: [packet type (1 byte)][data]
			if len(result) != 1+len(tt.packet.Data) {
				t.Errorf("Expected length %d, got %d", 1+len(tt.packet.Data), len(result))
			}
			if result[0] != byte(tt.packet.PacketType) {
				t.Errorf("Expected packet type %d, got %d", tt.packet.PacketType, result[0])
			}
			if len(tt.packet.Data) > 0 && !bytes.Equal(result[1:], tt.packet.Data) {
				t.Error("Data mismatch")
			}
		})
	}
}

// TestParsePacket tests the ParsePacket function.
func TestParsePacket(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantType PacketType
		wantData []byte
		wantErr  bool
	}{
		{
			name:     "valid packet",
			data:     []byte{byte(PacketFECFragment), 1, 2, 3, 4},
			wantType: PacketFECFragment,
			wantData: []byte{1, 2, 3, 4},
		},
		{
			name:     "type only",
			data:     []byte{byte(PacketFECFragment)},
			wantType: PacketFECFragment,
			wantData: []byte{},
		},
		{
			name:    "empty",
			data:    []byte{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packet, err := ParsePacket(tt.data)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if packet.PacketType != tt.wantType {
				t.Errorf("Expected type %d, got %d", tt.wantType, packet.PacketType)
			}
			if !bytes.Equal(packet.Data, tt.wantData) {
				t.Errorf("Expected data %v, got %v", tt.wantData, packet.Data)
			}
		})
	}
}

// TestParsePacketCopies verifies the parsed payload does not alias the input.
func TestParsePacketCopies(t *testing.T) {
	data := []byte{byte(PacketFECFragment), 9, 9}
	packet, err := ParsePacket(data)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	data[1] = 0
	if packet.Data[0] != 9 {
		t.Error("Parsed data aliases input")
	}
}

// TestPooledPacketRelease verifies release returns the buffer exactly once.
func TestPooledPacketRelease(t *testing.T) {
	pool := NewBufferPool(16)
	buf := pool.Get()
	copy(*buf, []byte{byte(PacketFECFragment), 7, 8})

	packet, err := parsePooledPacket(pool, buf, 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !bytes.Equal(packet.Data, []byte{7, 8}) {
		t.Errorf("Unexpected data %v", packet.Data)
	}
	if &packet.Data[0] != &(*buf)[1] {
		t.Error("Pooled packet data should alias the receive buffer")
	}

	packet.Release()
	if packet.Data != nil {
		t.Error("Data should be cleared on release")
	}
	packet.Release()

	if _, err := parsePooledPacket(pool, pool.Get(), 0); err == nil {
		t.Error("Expected error for empty datagram")
	}
}

// TestReleaseUnpooledPacket verifies Release is safe on ordinary packets.
func TestReleaseUnpooledPacket(t *testing.T) {
	packet := &Packet{PacketType: PacketFECFragment, Data: []byte{1}}
	packet.Release()
	packet.Release()
}
