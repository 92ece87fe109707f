// Package stream implements the ADB OPEN/OKAY/WRTE/CLSE multiplexed stream
// layer (spec §4.5): a single logical, bidirectional byte channel over an
// authenticated Session.
package stream

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand"
	"sync"

	"adbpush/internal/adb/errs"
	"adbpush/internal/adb/transport"
	"adbpush/internal/adb/wire"
	"adbpush/internal/adblog"
)

// idGenerator is seeded once at process start from a CSPRNG (Design Notes
// §9: per-process entropy, seeded once rather than at packet time, so
// repeated Open calls stay cheap).
var (
	idGenerator   *mrand.Rand
	idGeneratorMu sync.Mutex
)

func init() {
	var seed int64
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(buf[:]))
	}
	idGenerator = mrand.New(mrand.NewSource(seed))
}

func nextLocalID() uint32 {
	idGeneratorMu.Lock()
	defer idGeneratorMu.Unlock()
	for {
		if id := idGenerator.Uint32(); id != 0 {
			return id
		}
	}
}

// Stream is one opened OPEN/OKAY-negotiated logical channel. At most one
// exists per Session (spec §3).
type Stream struct {
	t         transport.Transport
	LocalID   uint32
	RemoteID  uint32
}

// Open sends OPEN for destination (which must already be NUL-terminated,
// e.g. "sync:\x00") and waits for the peer's OKAY, returning the negotiated
// stream. A CLSE response is a refusal.
func Open(t transport.Transport, destination []byte) (*Stream, error) {
	localID := nextLocalID()
	req := &wire.Packet{Command: wire.CmdOpen, Arg0: localID, Arg1: 0, Payload: destination}
	if err := t.WritePacket(context.Background(), req); err != nil {
		return nil, err
	}

	p, err := t.ReadPacket(context.Background())
	if err != nil {
		return nil, err
	}

	switch p.Command {
	case wire.CmdOkay:
		if p.Arg1 != localID {
			return nil, fmt.Errorf("%w: OKAY arg1=%d does not match requested local id %d", errs.ErrUnexpectedCommand, p.Arg1, localID)
		}
		return &Stream{t: t, LocalID: localID, RemoteID: p.Arg0}, nil
	case wire.CmdClse:
		return nil, fmt.Errorf("%w: open %q refused", errs.ErrStreamRefused, destination)
	default:
		return nil, fmt.Errorf("%w: %s answering OPEN", errs.ErrUnexpectedCommand, p.Command)
	}
}

// Write sends payload as one WRTE and waits for the matching OKAY, honoring
// the flow-control rule that only one outbound WRTE may be unacknowledged
// at a time. While waiting it tolerates an inbound WRTE (acking it, since
// sync sub-protocols can interleave device output) and an inbound CLSE
// (logged and ignored, per spec §4.5).
func (s *Stream) Write(payload []byte) error {
	wrte := &wire.Packet{Command: wire.CmdWrte, Arg0: s.LocalID, Arg1: s.RemoteID, Payload: payload}
	if err := s.t.WritePacket(context.Background(), wrte); err != nil {
		return err
	}

	for {
		p, err := s.t.ReadPacket(context.Background())
		if err != nil {
			return err
		}
		switch p.Command {
		case wire.CmdOkay:
			if p.Arg0 != s.RemoteID || p.Arg1 != s.LocalID {
				return fmt.Errorf("%w: OKAY (%d,%d) does not match stream (%d,%d)", errs.ErrUnexpectedCommand, p.Arg0, p.Arg1, s.RemoteID, s.LocalID)
			}
			return nil
		case wire.CmdWrte:
			if err := s.ackOkay(); err != nil {
				return err
			}
		case wire.CmdClse:
			adblog.Debugf("stream %d: ignoring stray CLSE while awaiting OKAY for WRTE", s.LocalID)
		default:
			return fmt.Errorf("%w: %s while awaiting OKAY", errs.ErrUnexpectedCommand, p.Command)
		}
	}
}

// ReadAck reads one packet; if it is WRTE or CLSE, it acks with an OKAY
// addressed to the peer and returns the packet's payload. Other commands
// are returned unacknowledged via their raw payload.
func (s *Stream) ReadAck() ([]byte, error) {
	_, payload, err := s.ReadFrame()
	return payload, err
}

// ReadFrame is ReadAck plus the received command, so callers that must
// distinguish a WRTE payload from a peer-initiated CLSE (e.g. shell output
// draining) can do so.
func (s *Stream) ReadFrame() (wire.Command, []byte, error) {
	p, err := s.t.ReadPacket(context.Background())
	if err != nil {
		return 0, nil, err
	}
	switch p.Command {
	case wire.CmdWrte, wire.CmdClse:
		if err := s.ackOkay(); err != nil {
			return 0, nil, err
		}
	}
	return p.Command, p.Payload, nil
}

// Close sends CLSE and discards one inbound packet (usually the peer's
// own CLSE).
func (s *Stream) Close() error {
	clse := &wire.Packet{Command: wire.CmdClse, Arg0: s.LocalID, Arg1: s.RemoteID}
	if err := s.t.WritePacket(context.Background(), clse); err != nil {
		return err
	}
	_, _ = s.t.ReadPacket(context.Background())
	return nil
}

func (s *Stream) ackOkay() error {
	okay := &wire.Packet{Command: wire.CmdOkay, Arg0: s.LocalID, Arg1: s.RemoteID}
	return s.t.WritePacket(context.Background(), okay)
}
