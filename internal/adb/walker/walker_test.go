package walker

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"adbpush/internal/adb/transport"
	"adbpush/internal/adb/wire"

	"github.com/stretchr/testify/require"
)

func TestNormalizeRemotePath(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"/sdcard/out", "/sdcard/out"},
		{"sdcard/out/", "/sdcard/out"},
		{"  /a/./b/../c  ", "/a/c"},
		{"", ""},
		{"///", "/"},
		{`\sdcard\out`, "/sdcard/out"},
	}
	for _, c := range cases {
		got, err := NormalizeRemotePath(c.in)
		if c.want == "" {
			require.Error(t, err)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, c.want, got)
	}
}

func TestBuildRemotePath(t *testing.T) {
	require.Equal(t, "/sdcard/out", buildRemotePath("/sdcard/out", ""))
	require.Equal(t, "/sdcard/out/a/b", buildRemotePath("/sdcard/out", "a/b"))
	require.Equal(t, "/a/b", buildRemotePath("/", "a/b"))
}

func TestCanonicalizeLocalRoot(t *testing.T) {
	dir := t.TempDir()
	abs, err := CanonicalizeLocalRoot(dir)
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(abs))

	_, err = CanonicalizeLocalRoot("")
	require.Error(t, err)

	_, err = CanonicalizeLocalRoot(filepath.Join(dir, "does-not-exist"))
	require.Error(t, err)

	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = CanonicalizeLocalRoot(file)
	require.Error(t, err)
}

func TestCountEntriesSkipsDotfilesAndSymlinks(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("h"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("b"), 0o644))

	if runtime.GOOS != "windows" {
		require.NoError(t, os.Symlink(filepath.Join(dir, "a.txt"), filepath.Join(dir, "link")))
	}

	count, err := countEntries(dir)
	require.NoError(t, err)
	// a.txt, sub, sub/b.txt = 3; .hidden and the symlink are skipped.
	require.Equal(t, 3, count)
}

// TestPushEndToEnd exercises the end-to-end scenario listed with the spec's
// testable properties (§8): one
// 70 KiB file pushed to an empty /sdcard/out.
func TestPushEndToEnd(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte{'z'}, 70*1024)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.bin"), content, 0o644))

	ft := transport.NewFakeTransport(32)
	w := New(ft, nil, false, Device{VendorID: 0x18d1, ProductID: 0x4ee2, Manufacturer: "Google", Product: "Pixel"})

	type result struct {
		summary Summary
		err     error
	}
	done := make(chan result, 1)
	go func() {
		s, err := w.Push(dir, "/sdcard/out")
		done <- result{s, err}
	}()

	// Step 1: OPEN shell:mkdir -p /sdcard/out. The device's OKAY answers
	// Open directly; the CLSE that follows ends the shell drain loop and
	// is itself acked by the stream (one extra outbound packet, count 2).
	waitForOutboundCount(ft, 1)
	shellLocalID := ft.Outbound()[0].Arg0
	ft.Enqueue(&wire.Packet{Command: wire.CmdOkay, Arg0: 101, Arg1: shellLocalID})
	ft.Enqueue(&wire.Packet{Command: wire.CmdClse, Arg0: 101, Arg1: shellLocalID})

	// Step 2 (outbound count 3): OPEN sync:.
	waitForOutboundCount(ft, 3)
	syncLocalID := ft.Outbound()[2].Arg0
	ft.Enqueue(&wire.Packet{Command: wire.CmdOkay, Arg0: 202, Arg1: syncLocalID})

	// Counts 4 and 5: STAT header and STAT path writes, each ack'd.
	waitForOutboundCount(ft, 4)
	ft.Enqueue(&wire.Packet{Command: wire.CmdOkay, Arg0: 202, Arg1: syncLocalID})
	waitForOutboundCount(ft, 5)
	ft.Enqueue(&wire.Packet{Command: wire.CmdOkay, Arg0: 202, Arg1: syncLocalID})

	// STAT reply: mode 0 (missing). Reading it acks with an automatic
	// OKAY (outbound count 6).
	statReply, err := wire.EncodeSyncFrame(wire.SyncIDStat, 0)
	require.NoError(t, err)
	statReply = append(statReply, make([]byte, 12)...)
	ft.Enqueue(&wire.Packet{Command: wire.CmdWrte, Arg0: 202, Arg1: syncLocalID, Payload: statReply})

	// Counts 7..11: SEND header, path, two DATA chunks, DONE.
	for i := 7; i <= 11; i++ {
		waitForOutboundCount(ft, i)
		ft.Enqueue(&wire.Packet{Command: wire.CmdOkay, Arg0: 202, Arg1: syncLocalID})
	}
	// The final reply frame is itself acked automatically (count 12).
	okayFrame, err := wire.EncodeSyncFrame(wire.SyncIDOkay, 0)
	require.NoError(t, err)
	ft.Enqueue(&wire.Packet{Command: wire.CmdWrte, Arg0: 202, Arg1: syncLocalID, Payload: okayFrame})

	// Count 13: QUIT. Count 14: CLSE from Close, which just discards the
	// next inbound packet rather than waiting for a matching OKAY.
	waitForOutboundCount(ft, 13)
	ft.Enqueue(&wire.Packet{Command: wire.CmdOkay, Arg0: 202, Arg1: syncLocalID})
	waitForOutboundCount(ft, 14)
	ft.Enqueue(&wire.Packet{Command: wire.CmdClse, Arg0: 202, Arg1: syncLocalID})

	r := <-done
	require.NoError(t, r.err)
	require.Equal(t, 1, r.summary.FilesSynced)
	require.Equal(t, 1, r.summary.DirectoriesCreated)
	require.Equal(t, 0, r.summary.SkippedEntries)
	require.Equal(t, int64(len(content)), r.summary.BytesUploaded)
	require.Equal(t, 0, r.summary.FilesDeleted)
	require.Equal(t, uint16(0x18d1), r.summary.Device.VendorID)
	require.Equal(t, "Google", r.summary.Device.Manufacturer)
}

// TestPushCreatesAllDirectoriesBeforeOpeningSync exercises a tree with a
// nested subdirectory and asserts every "mkdir -p" is issued, and the
// shell-only stream fully closed, strictly before OPEN sync: ever appears
// on the wire: devices refuse a concurrent sync: and shell: stream on one
// link, so all directory creation must finish first.
func TestPushCreatesAllDirectoriesBeforeOpeningSync(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("b"), 0o644))

	ft := transport.NewFakeTransport(32)
	w := New(ft, nil, false, Device{})

	type result struct {
		summary Summary
		err     error
	}
	done := make(chan result, 1)
	go func() {
		s, err := w.Push(dir, "/sdcard/out")
		done <- result{s, err}
	}()

	// mkdir -p /sdcard/out
	waitForOutboundCount(ft, 1)
	rootShellID := ft.Outbound()[0].Arg0
	ft.Enqueue(&wire.Packet{Command: wire.CmdOkay, Arg0: 101, Arg1: rootShellID})
	ft.Enqueue(&wire.Packet{Command: wire.CmdClse, Arg0: 101, Arg1: rootShellID})

	// mkdir -p /sdcard/out/sub, over a brand new shell: stream (count 3,
	// after the auto-ack from draining the previous CLSE at count 2).
	waitForOutboundCount(ft, 3)
	subShellID := ft.Outbound()[2].Arg0
	ft.Enqueue(&wire.Packet{Command: wire.CmdOkay, Arg0: 102, Arg1: subShellID})
	ft.Enqueue(&wire.Packet{Command: wire.CmdClse, Arg0: 102, Arg1: subShellID})

	// Only now (count 5, after the second auto-ack) may OPEN sync: appear.
	waitForOutboundCount(ft, 5)
	for _, p := range ft.Outbound()[:4] {
		require.NotEqual(t, "sync:\x00", string(p.Payload), "sync: opened before directory creation finished")
	}
	require.Equal(t, wire.CmdOpen, ft.Outbound()[4].Command)
	require.Equal(t, "sync:\x00", string(ft.Outbound()[4].Payload))
	syncLocalID := ft.Outbound()[4].Arg0
	ft.Enqueue(&wire.Packet{Command: wire.CmdOkay, Arg0: 202, Arg1: syncLocalID})

	// STAT header, STAT path.
	waitForOutboundCount(ft, 6)
	ft.Enqueue(&wire.Packet{Command: wire.CmdOkay, Arg0: 202, Arg1: syncLocalID})
	waitForOutboundCount(ft, 7)
	ft.Enqueue(&wire.Packet{Command: wire.CmdOkay, Arg0: 202, Arg1: syncLocalID})

	statReply, err := wire.EncodeSyncFrame(wire.SyncIDStat, 0)
	require.NoError(t, err)
	statReply = append(statReply, make([]byte, 12)...)
	ft.Enqueue(&wire.Packet{Command: wire.CmdWrte, Arg0: 202, Arg1: syncLocalID, Payload: statReply})

	// SEND header, path, one DATA chunk, DONE.
	for i := 9; i <= 12; i++ {
		waitForOutboundCount(ft, i)
		ft.Enqueue(&wire.Packet{Command: wire.CmdOkay, Arg0: 202, Arg1: syncLocalID})
	}
	okayFrame, err := wire.EncodeSyncFrame(wire.SyncIDOkay, 0)
	require.NoError(t, err)
	ft.Enqueue(&wire.Packet{Command: wire.CmdWrte, Arg0: 202, Arg1: syncLocalID, Payload: okayFrame})

	waitForOutboundCount(ft, 14)
	ft.Enqueue(&wire.Packet{Command: wire.CmdOkay, Arg0: 202, Arg1: syncLocalID})
	waitForOutboundCount(ft, 15)
	ft.Enqueue(&wire.Packet{Command: wire.CmdClse, Arg0: 202, Arg1: syncLocalID})

	r := <-done
	require.NoError(t, r.err)
	require.Equal(t, 1, r.summary.FilesSynced)
	require.Equal(t, 2, r.summary.DirectoriesCreated)
}

func waitForOutboundCount(ft *transport.FakeTransport, n int) {
	for len(ft.Outbound()) < n {
	}
}
