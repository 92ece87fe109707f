package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"adbpush/internal/adb/wire"
)

// FakeTransport is an in-memory Transport used by session/stream/syncproto
// tests to drive the ADB state machines without real USB hardware.
// Outbound() records every packet this side sent; Enqueue schedules
// packets for ReadPacket/ReadPacketTimeout to return, in order.
type FakeTransport struct {
	inbound  chan *wire.Packet
	closed   bool

	mu       sync.Mutex
	outbound []*wire.Packet
}

// NewFakeTransport returns a FakeTransport with room to enqueue up to
// bufferSize inbound packets without blocking the writer.
func NewFakeTransport(bufferSize int) *FakeTransport {
	return &FakeTransport{inbound: make(chan *wire.Packet, bufferSize)}
}

// Enqueue schedules p to be returned by a future ReadPacket call.
func (f *FakeTransport) Enqueue(p *wire.Packet) {
	f.inbound <- p
}

// Outbound returns a snapshot of every packet written so far, in send order.
func (f *FakeTransport) Outbound() []*wire.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*wire.Packet, len(f.outbound))
	copy(out, f.outbound)
	return out
}

func (f *FakeTransport) WritePacket(_ context.Context, p *wire.Packet) error {
	if f.closed {
		return fmt.Errorf("write on closed fake transport")
	}
	f.mu.Lock()
	f.outbound = append(f.outbound, p)
	f.mu.Unlock()
	return nil
}

func (f *FakeTransport) ReadPacket(ctx context.Context) (*wire.Packet, error) {
	select {
	case p, ok := <-f.inbound:
		if !ok {
			return nil, fmt.Errorf("fake transport closed with no more packets")
		}
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *FakeTransport) ReadPacketTimeout(timeout time.Duration) (*wire.Packet, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return f.ReadPacket(ctx)
}

func (f *FakeTransport) Close() error {
	f.closed = true
	close(f.inbound)
	return nil
}
