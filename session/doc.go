// Package session wires the transport, the frame buffer and the erasure codec
// into a sending and a receiving endpoint.
//
// # Receiving
//
// A Receiver registers itself as the transport's fragment handler. Every
// datagram is depacketized and inserted into a jitter.FrameBuffer on the
// transport's read goroutine. Run drives the decode side: it polls for the
// next ready frame, decodes it, retires it and hands the result to a sink,
// backing off for PollInterval whenever nothing is ready.
//
//	codec, _ := fec.NewCodec(100, 110, 1300)
//	tr, _ := transport.NewUDPTransport(":9000")
//	recv, _ := session.NewReceiver(session.DefaultReceiverConfig(), tr, codec)
//	err := recv.Run(ctx, func(id jitter.FrameID, frame []byte) {
//	    // use frame
//	})
//
// Receive buffers are owned by the transport. The receiver releases each one
// exactly once: when its frame is retired, when a duplicate fragment displaces
// it, or right away if the datagram is malformed.
//
// # Sending
//
//	send, _ := session.NewSender(session.DefaultSenderConfig(), tr, remote, codec)
//	frameID, err := send.SendFrame(ctx, frame)
//
// Frame ids increment by one per frame and wrap at 256.
//
// A sender created without a remote learns its destinations from the
// receivers: Receiver.Announce sends a PacketHello, and the sender adds the
// hello's source address. WaitForDestination blocks until the first one
// arrives; SendFrame fails with ErrNoDestination before that.
//
// # Late fragments and restarts
//
// Once a frame is retired the receiver releases any further fragment whose id
// falls in the lookback window behind it, so parity shares trailing a decoded
// frame neither decode it twice nor linger in the buffer. When
// SourceSwitchThreshold consecutive packets carry an unexpected SSRC the
// receiver assumes the sender restarted, drops everything buffered and locks
// onto the new stream.
package session
