// Package hardware detects the GPU vendor that drives encoder selection.
package hardware

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Vendor identifies the hardware encode path available on this host.
type Vendor string

const (
	// VendorApple uses VideoToolbox.
	VendorApple Vendor = "apple"
	// VendorIntel uses QSV, with VAAPI as fallback.
	VendorIntel Vendor = "intel"
	// VendorNvidia uses NVENC.
	VendorNvidia Vendor = "nvidia"
	// VendorAMD uses AMF on Windows and VAAPI elsewhere.
	VendorAMD Vendor = "amd"
	// VendorCPU means no usable GPU; software encoders only.
	VendorCPU Vendor = "cpu"
)

// Info describes the detected hardware.
type Info struct {
	Vendor Vendor `json:"vendor"`
	// Device is a human-readable description when one is known.
	Device string `json:"device,omitempty"`
	// VAAPIDevice is the DRM render node for VAAPI encoders.
	VAAPIDevice string `json:"vaapi_device,omitempty"`
}

// Detect probes the host for GPU hardware. Detection order: macOS is always
// Apple; an NVIDIA control device plus nvidia-smi wins next; then DRM render
// nodes, with the PCI vendor id from sysfs separating Intel from AMD.
// Anything unidentified but render-capable is treated as Intel-like VAAPI.
func Detect(ctx context.Context, log *slog.Logger) Info {
	info := detect(ctx, runtime.GOOS, "/", exec.LookPath)
	log.Info("hardware detected",
		slog.String("vendor", string(info.Vendor)),
		slog.String("device", info.Device),
		slog.String("vaapi_device", info.VAAPIDevice),
	)
	return info
}

func detect(ctx context.Context, goos, root string, lookPath func(string) (string, error)) Info {
	if goos == "darwin" {
		return Info{Vendor: VendorApple, Device: "Apple VideoToolbox"}
	}

	if pathExists(root, "dev/nvidiactl") {
		if _, err := lookPath("nvidia-smi"); err == nil {
			return Info{Vendor: VendorNvidia, Device: nvidiaGPUName(ctx)}
		}
	}

	if goos == "windows" {
		// No render nodes to inspect; nvidia-smi above is the only
		// probe that works without WMI.
		return Info{Vendor: VendorCPU}
	}

	// A second render node means a discrete Intel GPU (Arc) is installed
	// alongside the integrated one; prefer it.
	if pathExists(root, "dev/dri/renderD129") {
		return Info{
			Vendor:      VendorIntel,
			Device:      "Intel discrete GPU",
			VAAPIDevice: "/dev/dri/renderD129",
		}
	}

	if pathExists(root, "dev/dri/renderD128") {
		node := "/dev/dri/renderD128"
		vendor := readSysfsVendor(root, "renderD128")
		switch vendor {
		case "0x8086":
			return Info{Vendor: VendorIntel, Device: "Intel GPU", VAAPIDevice: node}
		case "0x1002":
			return Info{Vendor: VendorAMD, Device: "AMD GPU", VAAPIDevice: node}
		default:
			return Info{Vendor: VendorIntel, Device: "VAAPI-capable GPU", VAAPIDevice: node}
		}
	}

	return Info{Vendor: VendorCPU}
}

func pathExists(root, rel string) bool {
	_, err := os.Stat(filepath.Join(root, rel))
	return err == nil
}

// readSysfsVendor returns the PCI vendor id of a DRM render node, e.g.
// "0x8086", or "" when unreadable.
func readSysfsVendor(root, node string) string {
	data, err := os.ReadFile(filepath.Join(root, "sys/class/drm", node, "device/vendor"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// nvidiaGPUName asks nvidia-smi for the GPU model, best effort.
func nvidiaGPUName(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "nvidia-smi", "--query-gpu=name", "--format=csv,noheader").Output()
	if err != nil {
		return "NVIDIA GPU"
	}
	name := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	if name == "" {
		return "NVIDIA GPU"
	}
	return name
}
