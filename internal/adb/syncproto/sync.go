// Package syncproto implements the ADB sync:/shell: sub-protocols (spec
// §4.6): STAT to probe a remote path, SEND to push file contents in 64 KiB
// chunks, QUIT to end the transaction, and a minimal shell command runner
// used for "mkdir -p".
package syncproto

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"adbpush/internal/adb/errs"
	"adbpush/internal/adb/stream"
	"adbpush/internal/adb/transport"
	"adbpush/internal/adb/wire"
)

// maxChunk is the largest payload carried by a single DATA frame (spec §4.6).
const maxChunk = 64 * 1024

// sendMode is the literal mode suffix SEND appends to the remote path; the
// driver never forwards local permission bits (spec §4.6).
const sendMode = "0644"

// fileAbsent matches the device-reported STAT/SEND failure text that means
// "the remote path simply doesn't exist yet", which the walker treats as a
// successful skip decision rather than an abort (spec §7).
var fileAbsent = regexp.MustCompile(`(?i)no such file|not found|does not exist|failed to l?stat`)

// IsFileAbsent reports whether err is an AdbRequestFailedError whose message
// indicates a missing remote path.
func IsFileAbsent(err error) bool {
	var reqErr *errs.AdbRequestFailedError
	if !errors.As(err, &reqErr) {
		return false
	}
	return fileAbsent.MatchString(reqErr.Message)
}

// Client drives the sync: stream for one sync transaction.
type Client struct {
	s *stream.Stream
}

// Begin opens the sync: stream, starting a new transaction.
func Begin(t transport.Transport) (*Client, error) {
	s, err := stream.Open(t, []byte("sync:\x00"))
	if err != nil {
		return nil, err
	}
	return &Client{s: s}, nil
}

// Stat issues a STAT request for remotePath and reports what the device
// knows about it.
func (c *Client) Stat(remotePath string) (wire.StatReply, error) {
	header, err := wire.EncodeSyncFrame(wire.SyncIDStat, uint32(len(remotePath)))
	if err != nil {
		return wire.StatReply{}, err
	}
	if err := c.s.Write(header); err != nil {
		return wire.StatReply{}, err
	}
	if err := c.s.Write([]byte(remotePath)); err != nil {
		return wire.StatReply{}, err
	}

	payload, err := c.s.ReadAck()
	if err != nil {
		return wire.StatReply{}, err
	}
	id, arg, rest, err := wire.DecodeSyncFrameHeader(payload)
	if err != nil {
		return wire.StatReply{}, err
	}
	if id == wire.SyncIDFail {
		return wire.StatReply{}, errs.NewAdbRequestFailed(string(rest[:min(int(arg), len(rest))]))
	}
	if id != wire.SyncIDStat {
		return wire.StatReply{}, fmt.Errorf("%w: stat reply id %q", errs.ErrUnexpectedCommand, id)
	}
	return wire.DecodeStatReply(rest)
}

// Send pushes the contents of r to remotePath, chunked into DATA frames no
// larger than 64 KiB, and returns the number of bytes actually transferred.
// mtimeSeconds may be 0 when the local modification time is unknown.
func (c *Client) Send(remotePath string, r io.Reader, mtimeSeconds uint32) (int64, error) {
	pathAndMode := remotePath + "," + sendMode
	header, err := wire.EncodeSyncFrame(wire.SyncIDSend, uint32(len(pathAndMode)))
	if err != nil {
		return 0, err
	}
	if err := c.s.Write(header); err != nil {
		return 0, err
	}
	if err := c.s.Write([]byte(pathAndMode)); err != nil {
		return 0, err
	}

	var sent int64
	buf := make([]byte, maxChunk)
	br := bufio.NewReaderSize(r, maxChunk)
	for {
		n, readErr := io.ReadFull(br, buf)
		if n > 0 {
			dataHeader, err := wire.EncodeSyncFrame(wire.SyncIDData, uint32(n))
			if err != nil {
				return sent, err
			}
			frame := append(dataHeader, buf[:n]...)
			if err := c.s.Write(frame); err != nil {
				return sent, err
			}
			sent += int64(n)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return sent, fmt.Errorf("%w: reading local file: %v", errs.ErrIo, readErr)
		}
	}

	doneHeader, err := wire.EncodeSyncFrame(wire.SyncIDDone, mtimeSeconds)
	if err != nil {
		return sent, err
	}
	if err := c.s.Write(doneHeader); err != nil {
		return sent, err
	}

	reply, err := c.s.ReadAck()
	if err != nil {
		return sent, err
	}
	id, arg, rest, err := wire.DecodeSyncFrameHeader(reply)
	if err != nil {
		return sent, err
	}
	switch id {
	case wire.SyncIDOkay:
		return sent, nil
	case wire.SyncIDFail:
		msg := string(rest[:min(int(arg), len(rest))])
		return sent, errs.NewAdbRequestFailed(msg)
	default:
		return sent, fmt.Errorf("%w: send reply id %q", errs.ErrUnexpectedCommand, id)
	}
}

// Quit ends the sync transaction with QUIT and closes the stream.
func (c *Client) Quit() error {
	header, err := wire.EncodeSyncFrame(wire.SyncIDQuit, 0)
	if err != nil {
		return err
	}
	if err := c.s.Write(header); err != nil {
		return err
	}
	return c.s.Close()
}

// ShellCommand runs argv as a shell command, opening a dedicated shell:
// stream and draining its output into sink until the device closes the
// stream. It is used exclusively for "mkdir -p <remote_dir>" (spec §4.7);
// sink is typically io.Discard.
func ShellCommand(t transport.Transport, argv []string, sink io.Writer) error {
	cmd := strings.Join(argv, " ")
	s, err := stream.Open(t, []byte("shell:"+cmd+"\x00"))
	if err != nil {
		return err
	}

	for {
		command, payload, err := s.ReadFrame()
		if err != nil {
			return err
		}
		if len(payload) > 0 {
			if _, err := sink.Write(payload); err != nil {
				return fmt.Errorf("%w: writing shell output: %v", errs.ErrIo, err)
			}
		}
		if command == wire.CmdClse {
			return nil
		}
	}
}
