package wire

import "testing"

func TestEncodeSyncFrameRejectsBadID(t *testing.T) {
	if _, err := EncodeSyncFrame("TOOLONG", 0); err == nil {
		t.Fatal("expected error for non-4-byte id")
	}
}

func TestSyncFrameRoundTrip(t *testing.T) {
	header, err := EncodeSyncFrame(SyncIDStat, 42)
	if err != nil {
		t.Fatalf("EncodeSyncFrame: %v", err)
	}
	id, arg, rest, err := DecodeSyncFrameHeader(header)
	if err != nil {
		t.Fatalf("DecodeSyncFrameHeader: %v", err)
	}
	if id != SyncIDStat || arg != 42 || len(rest) != 0 {
		t.Errorf("got (%q, %d, %d bytes), want (%q, 42, 0 bytes)", id, arg, len(rest), SyncIDStat)
	}
}

func TestStatReplyExists(t *testing.T) {
	present := StatReply{Mode: 0x81a4, Size: 100}
	if !present.Exists() {
		t.Errorf("nonzero mode should report Exists() == true")
	}
	absent := StatReply{Mode: 0}
	if absent.Exists() {
		t.Errorf("zero mode should report Exists() == false")
	}
}

func TestDecodeStatReplyTooShort(t *testing.T) {
	if _, err := DecodeStatReply([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short stat reply")
	}
}
