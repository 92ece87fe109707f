package transport

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"

	"adbpush/internal/adb/errs"
	"adbpush/internal/adb/wire"
)

// adbInterfaceClass/SubClass/Protocol identify the ADB USB interface per
// spec §6.
const (
	adbInterfaceClass    = gousb.ClassVendorSpec
	adbInterfaceSubClass = 0x42
	adbInterfaceProtocol = 0x01
)

// DeviceInfo describes a candidate ADB interface found on the USB bus.
type DeviceInfo struct {
	VendorID     gousb.ID
	ProductID    gousb.ID
	Manufacturer string
	Product      string

	device *gousb.Device
}

// FindDevices enumerates USB devices and returns every one exposing an
// interface with class=0xFF, subclass=0x42, protocol=0x01 (spec §6). The
// caller owns the returned devices and must Close or Open them.
func FindDevices(ctx *gousb.Context) ([]*DeviceInfo, error) {
	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return hasADBInterface(desc)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate usb devices: %v", errs.ErrUsb, err)
	}

	infos := make([]*DeviceInfo, 0, len(devices))
	for _, d := range devices {
		info := &DeviceInfo{
			VendorID:  d.Desc.Vendor,
			ProductID: d.Desc.Product,
			device:    d,
		}
		if manufacturer, err := d.Manufacturer(); err == nil {
			info.Manufacturer = manufacturer
		}
		if product, err := d.Product(); err == nil {
			info.Product = product
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func hasADBInterface(desc *gousb.DeviceDesc) bool {
	for _, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if alt.Class == adbInterfaceClass &&
					alt.SubClass == gousb.Class(adbInterfaceSubClass) &&
					alt.Protocol == gousb.Protocol(adbInterfaceProtocol) {
					return true
				}
			}
		}
	}
	return false
}

// USBTransport implements Transport over a claimed ADB USB interface,
// grounded on guiperry-HASHER/internal/driver/device/usb_device.go's
// gousb-based USBDevice: same Context/Device/Config/Interface claim chain
// and the same teardown order on Close.
type USBTransport struct {
	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	epOut  *gousb.OutEndpoint
	epIn   *gousb.InEndpoint

	writeMu sync.Mutex
	readMu  sync.Mutex
}

// OpenUSBTransport claims the ADB interface on info's device and returns a
// ready-to-use Transport. It takes ownership of info's underlying
// *gousb.Device.
func OpenUSBTransport(ctx *gousb.Context, info *DeviceInfo) (*USBTransport, error) {
	device := info.device
	if device == nil {
		return nil, fmt.Errorf("%w: device info has no open handle", errs.ErrUsb)
	}

	config, err := device.Config(1)
	if err != nil {
		device.Close()
		return nil, fmt.Errorf("%w: set usb config: %v", errs.ErrUsb, err)
	}

	intfNum, intfAlt, err := findADBInterfaceNumbers(device.Desc)
	if err != nil {
		config.Close()
		device.Close()
		return nil, err
	}

	intf, err := config.Interface(intfNum, intfAlt)
	if err != nil {
		config.Close()
		device.Close()
		return nil, fmt.Errorf("%w: claim usb interface: %v", errs.ErrUsb, err)
	}

	epOut, epIn, err := findEndpoints(intf)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		return nil, err
	}

	return &USBTransport{
		ctx:    ctx,
		device: device,
		config: config,
		intf:   intf,
		epOut:  epOut,
		epIn:   epIn,
	}, nil
}

func findADBInterfaceNumbers(desc *gousb.DeviceDesc) (number, alt int, err error) {
	for _, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			for _, altSetting := range intf.AltSettings {
				if altSetting.Class == adbInterfaceClass &&
					altSetting.SubClass == gousb.Class(adbInterfaceSubClass) &&
					altSetting.Protocol == gousb.Protocol(adbInterfaceProtocol) {
					return altSetting.Number, altSetting.Alternate, nil
				}
			}
		}
	}
	return 0, 0, fmt.Errorf("%w: no adb interface on device descriptor", errs.ErrUsb)
}

func findEndpoints(intf *gousb.Interface) (*gousb.OutEndpoint, *gousb.InEndpoint, error) {
	var outNum, inNum int
	var haveOut, haveIn bool
	for _, ep := range intf.Setting.Endpoints {
		switch ep.Direction {
		case gousb.EndpointDirectionOut:
			outNum, haveOut = ep.Number, true
		case gousb.EndpointDirectionIn:
			inNum, haveIn = ep.Number, true
		}
	}
	if !haveOut || !haveIn {
		return nil, nil, fmt.Errorf("%w: adb interface missing bulk in/out endpoint pair", errs.ErrUsb)
	}

	epOut, err := intf.OutEndpoint(outNum)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open out endpoint: %v", errs.ErrUsb, err)
	}
	epIn, err := intf.InEndpoint(inNum)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open in endpoint: %v", errs.ErrUsb, err)
	}
	return epOut, epIn, nil
}

// WritePacket writes one ADB packet's header+payload as a single bulk
// transfer. Large payloads are fragmented across multiple OUT transfers by
// gousb internally; callers here always hand it the exact declared length.
func (t *USBTransport) WritePacket(ctx context.Context, p *wire.Packet) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	buf := wire.Encode(p.Command, p.Arg0, p.Arg1, p.Payload)
	if _, err := t.epOut.WriteContext(ctx, buf); err != nil {
		return fmt.Errorf("%w: usb write failed: %v", errs.ErrUsb, err)
	}
	return nil
}

// ReadPacket reads one ADB packet, blocking until ctx is done.
func (t *USBTransport) ReadPacket(ctx context.Context) (*wire.Packet, error) {
	return t.readPacket(ctx)
}

// ReadPacketTimeout reads one ADB packet bounded by timeout, converting a
// deadline expiry into errs.ErrAuthTimeout (used only during the handshake,
// per spec §4.4).
func (t *USBTransport) ReadPacketTimeout(timeout time.Duration) (*wire.Packet, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	p, err := t.readPacket(ctx)
	if err != nil && ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrAuthTimeout, err)
	}
	return p, err
}

func (t *USBTransport) readPacket(ctx context.Context) (*wire.Packet, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	header := make([]byte, 24)
	if err := t.readExact(ctx, header); err != nil {
		return nil, err
	}

	// Peek payload length out of the header the same way wire.Decode does,
	// then read the remaining bytes as one more bulk transfer.
	payloadLen := int(header[12]) | int(header[13])<<8 | int(header[14])<<16 | int(header[15])<<24
	full := make([]byte, 24+payloadLen)
	copy(full, header)
	if payloadLen > 0 {
		if err := t.readExact(ctx, full[24:]); err != nil {
			return nil, err
		}
	}

	return wire.Decode(bytes.NewReader(full))
}

func (t *USBTransport) readExact(ctx context.Context, buf []byte) error {
	read := 0
	for read < len(buf) {
		n, err := t.epIn.ReadContext(ctx, buf[read:])
		if err != nil {
			return fmt.Errorf("%w: usb read failed: %v", errs.ErrUsb, err)
		}
		read += n
	}
	return nil
}

// Close tears down the interface, config and device in the same order the
// teacher's USBDevice.Close does, releasing resources even on a
// partially-initialized transport. The gousb context is not closed here;
// whoever created it closes it.
func (t *USBTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
	}
	if t.config != nil {
		t.config.Close()
	}
	if t.device != nil {
		t.device.Close()
	}
	return nil
}
