// Package transport carries fragment datagrams between a sender and a
// receiver.
//
// Every datagram is a Packet: one packet type byte followed by the payload.
//
//	tr, err := transport.NewUDPTransport(":9000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tr.Close()
//
//	tr.RegisterHandler(transport.PacketFECFragment, func(p *transport.Packet, addr net.Addr) error {
//	    defer p.Release()
//	    // ...
//	    return nil
//	})
//
// # Buffer ownership
//
// Received packets are read into buffers drawn from a BufferPool and Data
// aliases that buffer. A handler owns the packet it is given and must call
// Release exactly when it no longer references Data; the buffer then returns
// to the pool. Packets without a registered handler, or that fail to parse,
// are released by the transport itself.
//
// Handlers run synchronously on the single read goroutine, so packets of a
// given transport are delivered one at a time in arrival order.
//
// # Simulated links
//
// SimulatedNetwork connects in-memory endpoints with seeded loss,
// duplication and reordering. Its transports follow the same ownership rules
// and are used for tests and the loopback mode of cmd/fecjitter.
package transport
