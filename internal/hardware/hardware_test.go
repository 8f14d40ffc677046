package hardware

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeRoot(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func noBinary(string) (string, error) { return "", errors.New("not found") }
func hasBinary(name string) (string, error) { return "/usr/bin/" + name, nil }

func TestDetect_Darwin(t *testing.T) {
	info := detect(context.Background(), "darwin", t.TempDir(), noBinary)
	assert.Equal(t, VendorApple, info.Vendor)
}

func TestDetect_Nvidia(t *testing.T) {
	root := fakeRoot(t, map[string]string{"dev/nvidiactl": ""})
	info := detect(context.Background(), "linux", root, hasBinary)
	assert.Equal(t, VendorNvidia, info.Vendor)
}

func TestDetect_NvidiaDeviceWithoutSmi(t *testing.T) {
	// The control device alone is not enough; the driver tooling must be
	// present for NVENC to work.
	root := fakeRoot(t, map[string]string{"dev/nvidiactl": ""})
	info := detect(context.Background(), "linux", root, noBinary)
	assert.Equal(t, VendorCPU, info.Vendor)
}

func TestDetect_IntelDiscrete(t *testing.T) {
	root := fakeRoot(t, map[string]string{
		"dev/dri/renderD128": "",
		"dev/dri/renderD129": "",
	})
	info := detect(context.Background(), "linux", root, noBinary)
	assert.Equal(t, VendorIntel, info.Vendor)
	assert.Equal(t, "/dev/dri/renderD129", info.VAAPIDevice)
}

func TestDetect_IntelBySysfsVendor(t *testing.T) {
	root := fakeRoot(t, map[string]string{
		"dev/dri/renderD128":                     "",
		"sys/class/drm/renderD128/device/vendor": "0x8086\n",
	})
	info := detect(context.Background(), "linux", root, noBinary)
	assert.Equal(t, VendorIntel, info.Vendor)
	assert.Equal(t, "/dev/dri/renderD128", info.VAAPIDevice)
}

func TestDetect_AMDBySysfsVendor(t *testing.T) {
	root := fakeRoot(t, map[string]string{
		"dev/dri/renderD128":                     "",
		"sys/class/drm/renderD128/device/vendor": "0x1002\n",
	})
	info := detect(context.Background(), "linux", root, noBinary)
	assert.Equal(t, VendorAMD, info.Vendor)
}

func TestDetect_UnknownRenderNodeIsIntelLike(t *testing.T) {
	root := fakeRoot(t, map[string]string{
		"dev/dri/renderD128":                     "",
		"sys/class/drm/renderD128/device/vendor": "0xdead\n",
	})
	info := detect(context.Background(), "linux", root, noBinary)
	assert.Equal(t, VendorIntel, info.Vendor)
	assert.Equal(t, "/dev/dri/renderD128", info.VAAPIDevice)
}

func TestDetect_NothingFound(t *testing.T) {
	info := detect(context.Background(), "linux", t.TempDir(), noBinary)
	assert.Equal(t, VendorCPU, info.Vendor)
	assert.Empty(t, info.VAAPIDevice)
}
