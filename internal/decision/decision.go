// Package decision implements the rule engine that judges whether a probed
// file is worth transcoding. Rules run in a fixed order and the first match
// wins; the engine is pure so every path is table-testable.
package decision

import (
	"fmt"

	"github.com/alchemist-av/alchemist/internal/ffmpeg"
	"github.com/alchemist-av/alchemist/internal/hardware"
	"github.com/alchemist-av/alchemist/internal/models"
)

// Verdict is the outcome for one file. Reason strings surface verbatim in
// the API, the job row and notifications.
type Verdict struct {
	Action models.DecisionAction `json:"action"`
	Reason string                `json:"reason"`
	Target models.Codec          `json:"target"`
	BPP    float64               `json:"bpp"`
}

// Engine evaluates the skip/transcode rules.
type Engine struct{}

// New creates a decision engine.
func New() *Engine {
	return &Engine{}
}

// Decide runs the ordered rules against one probed file.
//
//  1. No encoder can produce the target or any fallback: skip.
//  2. The only path is CPU and CPU encoding is disabled: skip.
//  3. Source already is the target codec at 10-bit (or any h264 for an
//     h264 target): skip.
//  4. Missing dimensions: skip.
//  5. Bits-per-pixel below the corrected threshold: skip.
//  6. File below the size floor: skip.
//  7. H.264 sources convert first: transcode.
//  8. Default: transcode.
func (e *Engine) Decide(info *ffmpeg.MediaInfo, st *models.Settings, caps *ffmpeg.Capabilities) Verdict {
	target := st.TargetCodec
	bpp := info.BPP()

	hwAvailable, cpuUsable := encoderPaths(st, caps)
	if !hwAvailable && !cpuUsable {
		return skip("No capable encoder", target, bpp)
	}
	if !hwAvailable && !st.AllowCPUEncoding {
		return skip("CPU encoding disabled", target, bpp)
	}

	if info.Codec == string(target) {
		if info.BitDepth >= 10 {
			return skip(fmt.Sprintf("Already %s 10-bit", target), target, bpp)
		}
		if target == models.CodecH264 {
			// 10-bit h264 is non-standard, so any h264 source satisfies
			// an h264 target.
			return skip("Already h264", target, bpp)
		}
	}

	if info.Width == 0 || info.Height == 0 {
		return skip("Incomplete metadata", target, bpp)
	}

	// Unknown bitrate or framerate bypasses the efficiency gate rather
	// than blocking the queue.
	if info.VideoBitrate > 0 && info.FPS > 0 {
		threshold := bppThreshold(info, st)
		if bpp < threshold {
			return skip(fmt.Sprintf("Bitrate too low (BPP %.4f < %.4f)", bpp, threshold), target, bpp)
		}
	}

	if info.SizeBytes < st.MinFileSizeMB*1e6 {
		return skip("File too small", target, bpp)
	}

	if info.Codec == "h264" && target != models.CodecH264 {
		return transcode("H.264 source prioritized", target, bpp)
	}

	return transcode(fmt.Sprintf("Transcode to %s", target), target, bpp)
}

// bppThreshold computes the efficiency floor for this file. Higher
// resolutions tolerate lower bits-per-pixel, derived or missing bitrates
// relax the gate, AV1 targets accept leaner sources, and h264 sources are
// worth converting even when already lean.
func bppThreshold(info *ffmpeg.MediaInfo, st *models.Settings) float64 {
	resCorrection := 1.0
	switch {
	case info.Width >= 3840:
		resCorrection = 0.6
	case info.Width >= 1920:
		resCorrection = 0.8
	}

	threshold := st.MinBPPThreshold * resCorrection

	switch info.Confidence {
	case ffmpeg.ConfidenceMedium:
		threshold *= 0.7
	case ffmpeg.ConfidenceLow:
		threshold *= 0.5
	}

	if st.TargetCodec == models.CodecAV1 {
		threshold *= 0.7
	}
	if info.Codec == "h264" {
		threshold *= 0.6
	}
	return threshold
}

// encoderPaths reports whether a hardware encoder exists for the target or
// a fallback codec, and whether a CPU encoder is both present and permitted
// to run.
func encoderPaths(st *models.Settings, caps *ffmpeg.Capabilities) (hwAvailable, cpuUsable bool) {
	vendor := caps.Hardware.Vendor
	for _, codec := range ffmpeg.FallbackChain(st.TargetCodec) {
		for _, enc := range ffmpeg.HardwareCandidates(vendor, codec) {
			if caps.HasVideoEncoder(enc) {
				hwAvailable = true
			}
		}
		if caps.HasVideoEncoder(ffmpeg.CPUEncoder(codec)) &&
			(vendor == hardware.VendorCPU || st.AllowCPUFallback) {
			cpuUsable = true
		}
	}
	return hwAvailable, cpuUsable
}

func skip(reason string, target models.Codec, bpp float64) Verdict {
	return Verdict{Action: models.DecisionSkip, Reason: reason, Target: target, BPP: bpp}
}

func transcode(reason string, target models.Codec, bpp float64) Verdict {
	return Verdict{Action: models.DecisionTranscode, Reason: reason, Target: target, BPP: bpp}
}
