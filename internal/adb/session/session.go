// Package session implements the ADB CNXN/AUTH handshake (spec §4.4): it
// authenticates a Transport against a Signer and leaves the link Ready for
// the stream layer.
package session

import (
	"context"
	"fmt"
	"time"

	"adbpush/internal/adb/errs"
	"adbpush/internal/adb/transport"
	"adbpush/internal/adb/wire"
	"adbpush/internal/adblog"
)

// handshakeTimeout is the per-read timeout during CNXN/AUTH (spec §4.4).
const handshakeTimeout = 10 * time.Second

// Signer is the RSA key capability the handshake needs: sign a 20-byte
// token, and emit the Android public-key blob on request. Implemented by
// internal/adb/rsakey.Key; kept as an interface here so the session never
// depends on a concrete key type (key loading/storage is an external
// collaborator per spec §1).
type Signer interface {
	Sign(token [20]byte) ([256]byte, error)
	AndroidPublicKey() ([]byte, error)
}

// State is a handshake state per spec §4.4's state machine.
type State int

const (
	StateUnauth State = iota
	StateAwaitChallenge
	StateAwaitCnxn
	StateReady
)

// Session holds an authenticated ADB link. The stream layer opens its
// single logical stream over it.
type Session struct {
	Transport    transport.Transport
	DeviceBanner string

	state State
}

// Connect performs the CNXN/AUTH handshake against t using signer,
// returning a Ready Session or an error. It retries AUTH at most twice:
// once by signing the device's TOKEN challenge, and if the device asks
// again, by delivering the Android public key (spec §4.4).
func Connect(t transport.Transport, signer Signer) (*Session, error) {
	s := &Session{Transport: t, state: StateUnauth}

	cnxn := &wire.Packet{
		Command: wire.CmdCnxn,
		Arg0:    wire.AVersion,
		Arg1:    wire.MaxPayload,
		Payload: []byte("host::\x00"),
	}
	if err := t.WritePacket(context.Background(), cnxn); err != nil {
		return nil, err
	}
	s.state = StateAwaitChallenge

	signatureSent, publicKeySent := false, false
	for {
		p, err := t.ReadPacketTimeout(handshakeTimeout)
		if err != nil {
			return nil, fmt.Errorf("%w: waiting for auth/cnxn: %v", errs.ErrAuthTimeout, err)
		}

		switch p.Command {
		case wire.CmdCnxn:
			s.DeviceBanner = string(p.Payload)
			s.state = StateReady
			adblog.Debugf("handshake complete, device banner %q", s.DeviceBanner)
			return s, nil

		case wire.CmdAuth:
			switch p.Arg0 {
			case wire.AuthToken:
				if !signatureSent {
					var token [20]byte
					copy(token[:], p.Payload)
					sig, err := signer.Sign(token)
					if err != nil {
						return nil, err
					}
					reply := &wire.Packet{Command: wire.CmdAuth, Arg0: wire.AuthSignature, Payload: sig[:]}
					if err := t.WritePacket(context.Background(), reply); err != nil {
						return nil, err
					}
					signatureSent = true
					s.state = StateAwaitCnxn
					break
				}
				// The device asked again after our signature: deliver the
				// public key instead, at most once.
				if publicKeySent {
					return nil, fmt.Errorf("%w: auth token after public key delivery", errs.ErrUnexpectedCommand)
				}
				fallthrough

			case wire.AuthRSAPublicKey:
				blob, err := signer.AndroidPublicKey()
				if err != nil {
					return nil, err
				}
				blob = append(blob, 0)
				reply := &wire.Packet{Command: wire.CmdAuth, Arg0: wire.AuthRSAPublicKey, Payload: blob}
				if err := t.WritePacket(context.Background(), reply); err != nil {
					return nil, err
				}
				publicKeySent = true
				s.state = StateAwaitCnxn

			default:
				return nil, fmt.Errorf("%w: auth subtype %d", errs.ErrUnexpectedCommand, p.Arg0)
			}

		case wire.CmdOkay, wire.CmdClse, wire.CmdWrte:
			// Stray packet from a previous session; ignore per §4.4.
			continue

		default:
			return nil, fmt.Errorf("%w: %s during handshake", errs.ErrUnexpectedCommand, p.Command)
		}
	}
}

// State reports the current handshake state.
func (s *Session) State() State {
	return s.state
}
