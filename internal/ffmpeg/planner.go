package ffmpeg

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/alchemist-av/alchemist/internal/hardware"
	"github.com/alchemist-av/alchemist/internal/models"
)

// defaultVAAPIDevice is used when hardware detection produced a VAAPI
// vendor but no explicit render node.
const defaultVAAPIDevice = "/dev/dri/renderD128"

// EncodePlan is the resolved encoder choice for one job: the ffmpeg encoder
// id, the codec actually produced (may differ from the target after
// fallback), its rate-control argv fragment and hardware wiring.
type EncodePlan struct {
	Encoder  string       `json:"encoder"`
	Codec    models.Codec `json:"codec"`
	Args     []string     `json:"args"`
	Device   string       `json:"device,omitempty"`
	HWUpload bool         `json:"hw_upload"`
}

// cpuEncoders maps codec families to their software encoders.
var cpuEncoders = map[models.Codec]string{
	models.CodecAV1:  "libsvtav1",
	models.CodecHEVC: "libx265",
	models.CodecH264: "libx264",
}

// FallbackChain returns the codecs to attempt, best first. AV1 falls back
// to HEVC then H.264; HEVC to H.264; H.264 stands alone.
func FallbackChain(target models.Codec) []models.Codec {
	switch target {
	case models.CodecAV1:
		return []models.Codec{models.CodecAV1, models.CodecHEVC, models.CodecH264}
	case models.CodecHEVC:
		return []models.Codec{models.CodecHEVC, models.CodecH264}
	default:
		return []models.Codec{models.CodecH264}
	}
}

// HardwareCandidates returns the hardware encoder names to try for a codec
// on the given vendor, in preference order. Intel prefers QSV with VAAPI as
// a second chance; AMD uses AMF on Windows and VAAPI elsewhere.
func HardwareCandidates(vendor hardware.Vendor, codec models.Codec) []string {
	return hardwareCandidates(vendor, codec, runtime.GOOS)
}

func hardwareCandidates(vendor hardware.Vendor, codec models.Codec, goos string) []string {
	base := string(codec)
	switch vendor {
	case hardware.VendorApple:
		return []string{base + "_videotoolbox"}
	case hardware.VendorNvidia:
		return []string{base + "_nvenc"}
	case hardware.VendorIntel:
		return []string{base + "_qsv", base + "_vaapi"}
	case hardware.VendorAMD:
		if goos == "windows" {
			return []string{base + "_amf"}
		}
		return []string{base + "_vaapi"}
	}
	return nil
}

// CPUEncoder returns the software encoder for a codec family.
func CPUEncoder(codec models.Codec) string {
	return cpuEncoders[codec]
}

// plannerCandidate reports whether an encoder name could ever be selected
// by Plan. Discovery only smoke-tests these; exotic hardware encoders
// (mjpeg_qsv and friends) are left alone.
func plannerCandidate(name string) bool {
	base, _, found := strings.Cut(name, "_")
	if !found {
		return false
	}
	_, ok := models.ParseCodec(base)
	return ok
}

// Plan resolves the encoder for the configured target codec. Hardware
// encoders must have survived discovery; an unavailable hardware path falls
// back to the CPU encoder when allowed, then down the codec fallback chain.
func Plan(caps *Capabilities, st *models.Settings) (*EncodePlan, error) {
	return plan(caps, st, runtime.GOOS)
}

func plan(caps *Capabilities, st *models.Settings, goos string) (*EncodePlan, error) {
	vendor := caps.Hardware.Vendor
	for _, codec := range FallbackChain(st.TargetCodec) {
		for _, enc := range hardwareCandidates(vendor, codec, goos) {
			if caps.HasVideoEncoder(enc) {
				return newPlan(enc, codec, caps, st), nil
			}
		}
		if vendor == hardware.VendorCPU || st.AllowCPUFallback {
			if enc := cpuEncoders[codec]; caps.HasVideoEncoder(enc) {
				return newPlan(enc, codec, caps, st), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no encoder available for %s or its fallbacks",
		models.ErrEncoderUnavailable, st.TargetCodec)
}

func newPlan(encoder string, codec models.Codec, caps *Capabilities, st *models.Settings) *EncodePlan {
	p := &EncodePlan{
		Encoder: encoder,
		Codec:   codec,
		Args:    rateControlArgs(encoder, codec, st),
	}
	switch {
	case strings.HasSuffix(encoder, "_vaapi"):
		p.Device = vaapiDevice(caps.Hardware)
		p.HWUpload = true
	case strings.HasSuffix(encoder, "_qsv"):
		p.HWUpload = true
	}
	return p
}

func vaapiDevice(hw hardware.Info) string {
	if hw.VAAPIDevice != "" {
		return hw.VAAPIDevice
	}
	return defaultVAAPIDevice
}

// rateControlArgs builds the quality argv fragment for one encoder. Every
// family runs constant-quality rate control; the quality profile picks the
// operating point.
func rateControlArgs(encoder string, codec models.Codec, st *models.Settings) []string {
	profile := st.QualityProfile
	switch {
	case strings.HasSuffix(encoder, "_qsv"):
		args := []string{"-global_quality", pick(profile, "20", "25", "30")}
		if encoder == "h264_qsv" {
			args = append(args, "-look_ahead", "1")
		}
		return args

	case strings.HasSuffix(encoder, "_nvenc"):
		return []string{
			"-preset", pick(profile, "p7", "p4", "p1"),
			"-rc", "vbr", "-cq", "25", "-b:v", "0",
		}

	case strings.HasSuffix(encoder, "_videotoolbox"):
		args := []string{"-q:v", pick(profile, "65", "62", "60"), "-b:v", "0"}
		if codec == models.CodecHEVC {
			// hvc1 instead of hev1 so QuickTime and friends accept the file.
			args = append(args, "-tag:v", "hvc1")
		}
		return args

	case strings.HasSuffix(encoder, "_vaapi"):
		return []string{"-rc_mode", "CQP", "-qp", pick(profile, "22", "25", "28")}

	case strings.HasSuffix(encoder, "_amf"):
		q := pick(profile, "22", "25", "28")
		return []string{"-rc", "cqp", "-qp_i", q, "-qp_p", q}

	case encoder == "libsvtav1":
		return []string{
			"-preset", pick(profile, "4", "8", "12"),
			"-crf", pick(profile, "24", "28", "32"),
		}

	default:
		// libx265 / libx264: crf scales with the configured CPU preset,
		// h264 runs two points lower for comparable quality.
		crf := cpuCRF(st.CPUPreset)
		if codec == models.CodecH264 {
			crf -= 2
		}
		return []string{"-preset", string(st.CPUPreset), "-crf", strconv.Itoa(crf)}
	}
}

// pick selects the quality/balanced/speed variant for a profile.
func pick(profile models.QualityProfile, quality, balanced, speed string) string {
	switch profile {
	case models.ProfileQuality:
		return quality
	case models.ProfileSpeed:
		return speed
	default:
		return balanced
	}
}

func cpuCRF(preset models.CPUPreset) int {
	switch preset {
	case models.PresetSlow:
		return 20
	case models.PresetMedium:
		return 24
	case models.PresetFast:
		return 26
	case models.PresetUltrafast:
		return 28
	default:
		return 24
	}
}
