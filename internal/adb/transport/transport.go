// Package transport abstracts the ADB packet transport so the session and
// stream layers never depend on USB specifics (Design Notes §9): today
// it's USB bulk endpoints, a future transport (e.g. TCP) only has to
// implement this interface.
package transport

import (
	"context"
	"time"

	"adbpush/internal/adb/wire"
)

// Transport is the capability set the ADB core depends on.
type Transport interface {
	// WritePacket sends one ADB packet.
	WritePacket(ctx context.Context, p *wire.Packet) error
	// ReadPacket blocks until one ADB packet is available, or ctx is done.
	ReadPacket(ctx context.Context) (*wire.Packet, error)
	// ReadPacketTimeout is ReadPacket bounded by an explicit timeout,
	// used during the handshake (spec §4.4: 10s per read).
	ReadPacketTimeout(timeout time.Duration) (*wire.Packet, error)
	// Close releases the underlying link (USB interface, socket, ...).
	Close() error
}
