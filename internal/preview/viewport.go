package preview

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var ErrInvalidDevice = errors.New("invalid device")

// Device selects the emulated viewport of the preview container.
type Device string

const (
	DeviceDesktop Device = "desktop"
	DeviceTablet  Device = "tablet"
	DeviceMobile  Device = "mobile"
)

func ParseDevice(value string) (Device, error) {
	switch Device(strings.ToLower(strings.TrimSpace(value))) {
	case DeviceDesktop:
		return DeviceDesktop, nil
	case DeviceTablet:
		return DeviceTablet, nil
	case DeviceMobile:
		return DeviceMobile, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDevice, value)
	}
}

// Width is the fixed container width in pixels, or 0 for fluid.
func (d Device) Width() int {
	switch d {
	case DeviceTablet:
		return 768
	case DeviceMobile:
		return 375
	default:
		return 0
	}
}

func (d Device) CSSWidth() string {
	if w := d.Width(); w > 0 {
		return fmt.Sprintf("%dpx", w)
	}
	return "100%"
}

// Frame describes how the preview container is sized.
type Frame struct {
	Device Device `json:"device"`
	Width  string `json:"width"`
}

// Viewport is the presentational state of the preview container. Switching
// devices never touches the message channel.
type Viewport struct {
	mu     sync.Mutex
	device Device
}

func NewViewport(device Device) *Viewport {
	if device == "" {
		device = DeviceDesktop
	}
	return &Viewport{device: device}
}

func (v *Viewport) Device() Device {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.device
}

// Switch resizes to device and reports whether anything changed.
func (v *Viewport) Switch(device Device) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.device == device {
		return false
	}
	v.device = device
	return true
}

func (v *Viewport) Frame() Frame {
	device := v.Device()
	return Frame{Device: device, Width: device.CSSWidth()}
}
