// Package walker mirrors a local directory tree onto a remote path over an
// already-authenticated ADB session (spec §4.8): it counts the tree once to
// drive progress reporting, walks it a second time creating every remote
// directory over a shell-only stream, then walks it a third time issuing
// STAT/SEND for files over a single sync: stream opened only after every
// mkdir has completed.
package walker

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"adbpush/internal/adb/errs"
	"adbpush/internal/adb/progress"
	"adbpush/internal/adb/syncproto"
	"adbpush/internal/adb/transport"
)

// Device identifies the USB endpoint a push ran over (spec §6's
// device{vendor_id, product_id, manufacturer?, product?}).
type Device struct {
	VendorID     uint16
	ProductID    uint16
	Manufacturer string
	Product      string
}

// Summary reports the outcome of one push (spec §6).
type Summary struct {
	FilesSynced        int
	SkippedEntries     int
	DirectoriesCreated int
	BytesUploaded      int64
	// FilesDeleted is always 0: this tool never deletes remote files
	// (spec §9, two-way sync is a non-goal).
	FilesDeleted int
	RemotePath   string
	LocalRoot    string
	DryRun       bool
	Device       Device
}

// NormalizeRemotePath sanitizes a user-supplied remote path into an
// absolute, "/"-separated form with "." and ".." segments resolved, as the
// original device-path field would have been typed into a path box.
func NormalizeRemotePath(p string) (string, error) {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		return "", errs.ErrInvalidRemotePath
	}
	sanitized := strings.ReplaceAll(trimmed, "\\", "/")
	var parts []string
	for _, segment := range strings.Split(sanitized, "/") {
		switch segment {
		case "", ".":
			continue
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, segment)
		}
	}
	if len(parts) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(parts, "/"), nil
}

// CanonicalizeLocalRoot validates localPath as an existing, readable
// directory and returns its absolute form.
func CanonicalizeLocalRoot(localPath string) (string, error) {
	trimmed := strings.TrimSpace(localPath)
	if trimmed == "" {
		return "", errs.ErrInvalidLocalPath
	}
	info, err := os.Stat(trimmed)
	if err != nil {
		return "", errs.ErrInvalidLocalPath
	}
	if !info.IsDir() {
		return "", errs.ErrInvalidLocalPath
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", errs.ErrInvalidLocalPath
	}
	return abs, nil
}

// buildRemotePath joins remoteRoot with the "/"-separated relative path,
// skipping any empty component (mirrors the original's per-component walk
// rather than a bare string join, so stray separators never leak through).
func buildRemotePath(remoteRoot, relative string) string {
	var pieces []string
	for _, part := range strings.Split(filepath.ToSlash(relative), "/") {
		if part != "" {
			pieces = append(pieces, part)
		}
	}
	if len(pieces) == 0 {
		return remoteRoot
	}
	if remoteRoot == "/" {
		return "/" + strings.Join(pieces, "/")
	}
	return strings.TrimRight(remoteRoot, "/") + "/" + strings.Join(pieces, "/")
}

// Walker drives one push transaction.
type Walker struct {
	t          transport.Transport
	sink       progress.Sink
	dryRun     bool
	device     Device
	createdDir map[string]bool
}

// New returns a Walker that reports progress to sink (progress.NullSink if
// nil). dryRun disables SEND and mkdir -p while still walking and reporting
// what would happen. device is carried through unchanged into the returned
// Summary's Device field.
func New(t transport.Transport, sink progress.Sink, dryRun bool, device Device) *Walker {
	if sink == nil {
		sink = progress.NullSink{}
	}
	return &Walker{t: t, sink: sink, dryRun: dryRun, device: device, createdDir: make(map[string]bool)}
}

// Push counts localRoot, then syncs it onto remoteRoot, returning a Summary.
//
// Every remote directory is created over a shell-only stream, ascending by
// depth, before the sync: stream is opened at all: devices do not permit a
// sync: and a shell: stream concurrently on the same link (spec §4.8 steps
// 3-4), so all mkdir -p calls must finish and that stream must close before
// syncproto.Begin opens sync:. The tree is walked twice as a result: once to
// create directories, once (over the sync: stream) to STAT/SEND files.
func (w *Walker) Push(localRoot, remoteRoot string) (Summary, error) {
	total, err := countEntries(localRoot)
	if err != nil {
		return Summary{}, err
	}
	w.sink.Start(total)

	summary := Summary{RemotePath: remoteRoot, LocalRoot: localRoot, DryRun: w.dryRun, Device: w.device}

	if err := w.ensureRemoteDir(remoteRoot, &summary); err != nil {
		return summary, err
	}
	if err := w.createDirectories(localRoot, localRoot, remoteRoot, &summary); err != nil {
		return summary, err
	}

	client, err := syncproto.Begin(w.t)
	if err != nil {
		return summary, err
	}

	if err := w.syncFiles(client, localRoot, localRoot, remoteRoot, &summary); err != nil {
		_ = client.Quit()
		return summary, err
	}

	if err := client.Quit(); err != nil {
		return summary, err
	}

	w.sink.Done()
	return summary, nil
}

// countEntries walks root once, counting files and directories so progress
// has a denominator before any network I/O happens (spec §4.8).
func countEntries(root string) (int, error) {
	count := 0
	entries, err := readDirSorted(root)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if shouldSkipEntry(entry) {
			continue
		}
		count++
		if entry.IsDir() {
			sub, err := countEntries(filepath.Join(root, entry.Name()))
			if err != nil {
				return 0, err
			}
			count += sub
		}
	}
	return count, nil
}

// createDirectories recurses over current (relative to root), issuing
// "mkdir -p" over the shell-only stream for every subdirectory, parents
// before children, before any sync: stream exists. It does not touch
// SkippedEntries/Advance bookkeeping; syncFiles' later walk does that for
// the whole tree so each entry is only counted once.
func (w *Walker) createDirectories(root, current, remoteRoot string, summary *Summary) error {
	entries, err := readDirSorted(current)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if shouldSkipEntry(entry) || !entry.IsDir() {
			continue
		}

		entryPath := filepath.Join(current, entry.Name())
		relative, err := filepath.Rel(root, entryPath)
		if err != nil {
			relative = entry.Name()
		}

		remoteDir := buildRemotePath(remoteRoot, relative)
		if err := w.ensureRemoteDir(remoteDir, summary); err != nil {
			return err
		}
		if err := w.createDirectories(root, entryPath, remoteRoot, summary); err != nil {
			return err
		}
	}
	return nil
}

// syncFiles recurses over current a second time, this time over the open
// sync: client, STATing/SENDing regular files and descending into
// directories that createDirectories has already created remotely.
// Symlinks and dot-prefixed entries are skipped and counted against
// SkippedEntries.
func (w *Walker) syncFiles(client *syncproto.Client, root, current, remoteRoot string, summary *Summary) error {
	entries, err := readDirSorted(current)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		entryPath := filepath.Join(current, entry.Name())
		relative, err := filepath.Rel(root, entryPath)
		if err != nil {
			relative = entry.Name()
		}

		if shouldSkipEntry(entry) {
			summary.SkippedEntries++
			w.sink.Advance(1, entry.Name())
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		switch {
		case info.IsDir():
			w.sink.Advance(1, entry.Name())
			if err := w.syncFiles(client, root, entryPath, remoteRoot, summary); err != nil {
				return err
			}

		case info.Mode().IsRegular():
			remoteFile := buildRemotePath(remoteRoot, relative)
			if err := w.pushFile(client, entryPath, remoteFile, info.Size(), summary); err != nil {
				return err
			}
			w.sink.Advance(1, entry.Name())

		default:
			summary.SkippedEntries++
			w.sink.Advance(1, entry.Name())
		}
	}
	return nil
}

// pushFile STATs remoteFile and SENDs localFile unless the device already
// reports the same size (spec §4.6, testable property 6 in §8).
func (w *Walker) pushFile(client *syncproto.Client, localFile, remoteFile string, localSize int64, summary *Summary) error {
	stat, err := client.Stat(remoteFile)
	if err != nil {
		if syncproto.IsFileAbsent(err) {
			stat.Mode = 0
		} else {
			return err
		}
	}

	if stat.Exists() && int64(stat.Size) == localSize {
		return nil
	}

	if w.dryRun {
		summary.FilesSynced++
		summary.BytesUploaded += localSize
		return nil
	}

	f, err := os.Open(localFile)
	if err != nil {
		return err
	}
	defer f.Close()

	sent, err := client.Send(remoteFile, f, 0)
	if err != nil {
		return err
	}

	summary.FilesSynced++
	summary.BytesUploaded += sent
	return nil
}

// ensureRemoteDir issues "mkdir -p remoteDir" at most once per normalized
// path for the lifetime of this Walker.
func (w *Walker) ensureRemoteDir(remoteDir string, summary *Summary) error {
	normalized := remoteDir
	if normalized != "/" {
		normalized = strings.TrimRight(normalized, "/")
	}

	if w.createdDir[normalized] {
		return nil
	}
	w.createdDir[normalized] = true

	if normalized == "/" {
		return nil
	}
	if w.dryRun {
		summary.DirectoriesCreated++
		return nil
	}

	if err := syncproto.ShellCommand(w.t, []string{"mkdir", "-p", normalized}, io.Discard); err != nil {
		return err
	}
	summary.DirectoriesCreated++
	return nil
}

func shouldSkipEntry(entry os.DirEntry) bool {
	if strings.HasPrefix(entry.Name(), ".") {
		return true
	}
	info, err := entry.Info()
	if err != nil {
		return true
	}
	return info.Mode()&os.ModeSymlink != 0
}

// readDirSorted wraps os.ReadDir with a stable, name-ordered result so a
// dry run's planned order matches the real push's order.
func readDirSorted(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}
