package wire

import (
	"encoding/binary"
	"fmt"
)

// Sync sub-protocol frame ids, always 4 ASCII bytes.
const (
	SyncIDStat = "STAT"
	SyncIDSend = "SEND"
	SyncIDData = "DATA"
	SyncIDDone = "DONE"
	SyncIDRecv = "RECV"
	SyncIDQuit = "QUIT"
	SyncIDOkay = "OKAY"
	SyncIDFail = "FAIL"
)

// SyncFrameHeaderSize is the 8-byte {id, arg} header preceding sync
// sub-protocol payloads.
const SyncFrameHeaderSize = 8

// EncodeSyncFrame builds the 8-byte sync frame header for id/arg. Callers
// append the frame's payload (if any) themselves before writing it out as
// one or more WRTE payloads.
func EncodeSyncFrame(id string, arg uint32) ([]byte, error) {
	if len(id) != 4 {
		return nil, fmt.Errorf("sync frame id must be 4 bytes, got %q", id)
	}
	buf := make([]byte, SyncFrameHeaderSize)
	copy(buf[0:4], id)
	binary.LittleEndian.PutUint32(buf[4:8], arg)
	return buf, nil
}

// DecodeSyncFrameHeader reads the leading 8 bytes of a sync frame out of
// buf, returning the id and arg, plus the remainder of buf after the
// header.
func DecodeSyncFrameHeader(buf []byte) (id string, arg uint32, rest []byte, err error) {
	if len(buf) < SyncFrameHeaderSize {
		return "", 0, nil, fmt.Errorf("sync frame too short: %d bytes", len(buf))
	}
	id = string(buf[0:4])
	arg = binary.LittleEndian.Uint32(buf[4:8])
	rest = buf[SyncFrameHeaderSize:]
	return id, arg, rest, nil
}

// StatReply is the {mode, size, mtime} triple following the "STAT" literal
// in a STAT response payload.
type StatReply struct {
	Mode  uint32
	Size  uint32
	Mtime uint32
}

// Exists reports whether the remote path named in the STAT request exists;
// a mode of zero means it does not.
func (s StatReply) Exists() bool {
	return s.Mode != 0
}

// DecodeStatReply parses the 12 bytes following the "STAT" literal in a
// STAT response payload.
func DecodeStatReply(buf []byte) (StatReply, error) {
	if len(buf) < 12 {
		return StatReply{}, fmt.Errorf("stat reply too short: %d bytes", len(buf))
	}
	return StatReply{
		Mode:  binary.LittleEndian.Uint32(buf[0:4]),
		Size:  binary.LittleEndian.Uint32(buf[4:8]),
		Mtime: binary.LittleEndian.Uint32(buf[8:12]),
	}, nil
}
