// Command adbpush pushes a local directory tree onto an Android device
// over USB using the ADB wire protocol.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/gousb"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"adbpush/internal/adb/errs"
	"adbpush/internal/adb/progress"
	"adbpush/internal/adb/rsakey"
	"adbpush/internal/adb/session"
	"adbpush/internal/adb/transport"
	"adbpush/internal/adb/walker"
	"adbpush/internal/adblog"
	"adbpush/internal/config"
)

var opt struct {
	LocalPath  string
	RemotePath string
	EnvFile    string
	KeyPath    string
	UserID     string
	VendorID   uint16
	ProductID  uint16
	DryRun     bool
	Debug      bool
	NoTUI      bool
	Help       bool
}

func init() {
	home, _ := os.UserHomeDir()
	defaultKey := filepath.Join(home, ".adbpush", "adbkey")

	pflag.StringVarP(&opt.RemotePath, "remote", "r", "", "remote destination path on the device")
	pflag.StringVarP(&opt.EnvFile, "env-file", "e", "", "path to a .env file of defaults (overrides the project-root .env)")
	pflag.StringVar(&opt.KeyPath, "key", defaultKey, "path to a persisted RSA auth key (created on first run)")
	pflag.StringVar(&opt.UserID, "user-id", "", "identity string embedded in the device auth request")
	pflag.Uint16Var(&opt.VendorID, "vendor-id", 0, "USB vendor id to match (0 = any)")
	pflag.Uint16Var(&opt.ProductID, "product-id", 0, "USB product id to match (0 = any)")
	pflag.BoolVar(&opt.DryRun, "dry-run", false, "walk and report, but never mkdir or send file contents")
	pflag.BoolVar(&opt.Debug, "debug", false, "enable verbose packet/frame logging")
	pflag.BoolVar(&opt.NoTUI, "no-tui", false, "print plain progress lines instead of the terminal UI")
	pflag.BoolVarP(&opt.Help, "help", "h", false, "show this help text")
}

func main() {
	pflag.Parse()

	if opt.Help || pflag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [options] <local-dir>\n\noptions:\n%s", os.Args[0], pflag.CommandLine.FlagUsages())
		if opt.Help {
			os.Exit(0)
		}
		os.Exit(2)
	}
	opt.LocalPath = pflag.Arg(0)

	cfg, err := config.Load(opt.EnvFile)
	if err != nil {
		fatalf("load config: %v", err)
	}
	applyDefaults(cfg)

	adblog.SetDebug(opt.Debug)

	summary, err := run()
	if err != nil {
		fatalf("%v", err)
	}

	fmt.Printf("\nsynced %d file(s), %d directories created, %d entries skipped, %d bytes uploaded\n",
		summary.FilesSynced, summary.DirectoriesCreated, summary.SkippedEntries, summary.BytesUploaded)
	fmt.Printf("remote path: %s\n", summary.RemotePath)
	fmt.Printf("device: vendor_id=0x%04x product_id=0x%04x manufacturer=%q product=%q\n",
		summary.Device.VendorID, summary.Device.ProductID, summary.Device.Manufacturer, summary.Device.Product)
}

func applyDefaults(cfg *config.Config) {
	if opt.RemotePath == "" {
		opt.RemotePath = cfg.RemotePath
	}
	if opt.VendorID == 0 {
		opt.VendorID = cfg.VendorID
	}
	if opt.ProductID == 0 {
		opt.ProductID = cfg.ProductID
	}
	if opt.UserID == "" {
		opt.UserID = cfg.UserID
	}
	if !opt.Debug {
		opt.Debug = cfg.Debug
	}
	if opt.UserID == "" {
		opt.UserID = defaultUserID()
	}
}

func defaultUserID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	user := os.Getenv("USER")
	if user == "" {
		user = "adbpush"
	}
	return user + "@" + host
}

func run() (walker.Summary, error) {
	correlationID := uuid.NewString()
	adblog.Infof("starting push, correlation id %s", correlationID)

	localRoot, err := walker.CanonicalizeLocalRoot(opt.LocalPath)
	if err != nil {
		return walker.Summary{}, fmt.Errorf("%w: %v", errs.ErrInvalidLocalPath, err)
	}
	remoteRoot, err := walker.NormalizeRemotePath(opt.RemotePath)
	if err != nil {
		return walker.Summary{}, fmt.Errorf("%w: %v", errs.ErrInvalidRemotePath, err)
	}

	if err := os.MkdirAll(filepath.Dir(opt.KeyPath), 0o700); err != nil {
		return walker.Summary{}, fmt.Errorf("prepare key directory: %w", err)
	}
	key, err := rsakey.LoadOrGenerate(opt.KeyPath, opt.UserID)
	if err != nil {
		return walker.Summary{}, fmt.Errorf("load auth key: %w", err)
	}

	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	t, device, err := openTransport(usbCtx)
	if err != nil {
		return walker.Summary{}, err
	}
	defer t.Close()

	sess, err := session.Connect(t, key)
	if err != nil {
		return walker.Summary{}, fmt.Errorf("authenticate: %w", err)
	}
	adblog.Infof("connected to %q", sess.DeviceBanner)

	sink, tuiSink := newProgressSink()

	resultCh := make(chan walkResult, 1)
	w := walker.New(t, sink, opt.DryRun, device)
	go func() {
		summary, err := w.Push(localRoot, remoteRoot)
		resultCh <- walkResult{summary, err}
	}()

	if tuiSink != nil {
		// The walker's USB I/O runs on its own goroutine so it never
		// blocks the terminal UI's event loop (spec §5).
		if err := tuiSink.Run(); err != nil {
			adblog.Errorf("progress ui: %v", err)
		}
	}

	result := <-resultCh
	return result.summary, result.err
}

type walkResult struct {
	summary walker.Summary
	err     error
}

func openTransport(usbCtx *gousb.Context) (*transport.USBTransport, walker.Device, error) {
	candidates, err := transport.FindDevices(usbCtx)
	if err != nil {
		return nil, walker.Device{}, err
	}

	if opt.VendorID != 0 || opt.ProductID != 0 {
		filtered := candidates[:0]
		for _, c := range candidates {
			if opt.VendorID != 0 && uint16(c.VendorID) != opt.VendorID {
				continue
			}
			if opt.ProductID != 0 && uint16(c.ProductID) != opt.ProductID {
				continue
			}
			filtered = append(filtered, c)
		}
		candidates = filtered
	}

	switch len(candidates) {
	case 0:
		return nil, walker.Device{}, errs.ErrDeviceNotFound
	case 1:
		info := candidates[0]
		device := walker.Device{
			VendorID:     uint16(info.VendorID),
			ProductID:    uint16(info.ProductID),
			Manufacturer: info.Manufacturer,
			Product:      info.Product,
		}
		t, err := transport.OpenUSBTransport(usbCtx, info)
		return t, device, err
	default:
		return nil, walker.Device{}, errs.ErrMultipleDevices
	}
}

// newProgressSink returns the chosen progress.Sink. For the TUI case it
// also returns the *progress.TUISink itself so the caller can block on its
// Run from the main goroutine while the walker runs on its own.
func newProgressSink() (progress.Sink, *progress.TUISink) {
	if opt.NoTUI {
		return plainSink{}, nil
	}
	tui := progress.NewTUISink()
	return tui, tui
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "adbpush: "+format+"\n", args...)
	os.Exit(1)
}

type plainSink struct{}

func (plainSink) Start(total int) { fmt.Printf("pushing %d entries\n", total) }
func (plainSink) Advance(n int, current string) {
	fmt.Printf("  %s\n", current)
}
func (plainSink) Done() { fmt.Println("done") }
