package ffmpeg

import (
	"strconv"
	"strings"

	"github.com/alchemist-av/alchemist/internal/models"
)

// CommandBuilder assembles an ffmpeg argv with a fluent API. Argument
// groups keep their ffmpeg-mandated order: globals, input options, -i,
// filters, output options, output path.
type CommandBuilder struct {
	globalArgs []string
	inputArgs  []string
	input      string
	filterArgs []string
	outputArgs []string
	output     string
}

// NewCommandBuilder creates an empty builder.
func NewCommandBuilder() *CommandBuilder {
	return &CommandBuilder{}
}

// HideBanner hides the ffmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-y")
	return b
}

// NoStdin detaches ffmpeg from the terminal so it never pauses on input.
func (b *CommandBuilder) NoStdin() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-nostdin")
	return b
}

// ProgressPipe emits machine-readable progress on stdout.
func (b *CommandBuilder) ProgressPipe() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-progress", "pipe:1")
	return b
}

// GlobalArgs adds arbitrary global arguments.
func (b *CommandBuilder) GlobalArgs(args ...string) *CommandBuilder {
	b.globalArgs = append(b.globalArgs, args...)
	return b
}

// Input sets the input path.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// InputArgs adds arbitrary input arguments.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, args...)
	return b
}

// MapAll maps every input stream into the output.
func (b *CommandBuilder) MapAll() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-map", "0")
	return b
}

// VideoCodec sets the video encoder.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// AudioCopy passes audio streams through untouched.
func (b *CommandBuilder) AudioCopy() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", "copy")
	return b
}

// SubtitleCopy passes subtitle streams through untouched.
func (b *CommandBuilder) SubtitleCopy() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:s", "copy")
	return b
}

// VideoFilter adds a video filter.
func (b *CommandBuilder) VideoFilter(filter string) *CommandBuilder {
	b.filterArgs = append(b.filterArgs, filter)
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Threads caps the encoder thread count.
func (b *CommandBuilder) Threads(n int) *CommandBuilder {
	if n > 0 {
		b.outputArgs = append(b.outputArgs, "-threads", strconv.Itoa(n))
	}
	return b
}

// Output sets the output path.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build assembles the final argv.
func (b *CommandBuilder) Build() []string {
	var args []string
	args = append(args, b.globalArgs...)
	args = append(args, b.inputArgs...)
	args = append(args, "-i", b.input)
	if len(b.filterArgs) > 0 {
		args = append(args, "-vf", strings.Join(b.filterArgs, ","))
	}
	args = append(args, b.outputArgs...)
	args = append(args, b.output)
	return args
}

// EncodeArgs builds the full transcode argv for one job: progress on
// stdout, hardware device wiring per the plan, every stream mapped, audio
// and subtitles copied, HDR metadata carried through.
func EncodeArgs(plan *EncodePlan, info *MediaInfo, inputPath, outputPath string, st *models.Settings) []string {
	b := NewCommandBuilder().
		HideBanner().
		Overwrite().
		NoStdin().
		ProgressPipe()

	switch {
	case strings.HasSuffix(plan.Encoder, "_qsv"):
		b.GlobalArgs("-init_hw_device", "qsv=hw", "-filter_hw_device", "hw")
	case strings.HasSuffix(plan.Encoder, "_vaapi"):
		b.GlobalArgs("-vaapi_device", plan.Device)
	}

	b.Input(inputPath)

	if plan.HWUpload {
		b.VideoFilter(uploadFilter(plan.Encoder, info.IsHDR))
	}

	b.MapAll().
		VideoCodec(plan.Encoder).
		OutputArgs(plan.Args...)

	if info.IsHDR {
		// Keep 10-bit depth through the encode; hardware frames already
		// carry it when an upload filter set p010le.
		if !plan.HWUpload {
			if isHardwareEncoder(plan.Encoder) {
				b.OutputArgs("-pix_fmt", "p010le")
			} else {
				b.OutputArgs("-pix_fmt", "yuv420p10le")
			}
		}
		b.OutputArgs(
			"-color_primaries", "bt2020",
			"-color_trc", "smpte2084",
			"-colorspace", "bt2020nc",
		)
	}

	b.AudioCopy().
		SubtitleCopy().
		Threads(st.Threads).
		OutputArgs("-max_muxing_queue_size", "1024").
		Output(outputPath)

	return b.Build()
}

// uploadFilter returns the frame upload filter for encoders that only
// accept hardware frames.
func uploadFilter(encoder string, hdr bool) string {
	format := "nv12"
	if hdr {
		format = "p010le"
	}
	if strings.HasSuffix(encoder, "_qsv") {
		return "format=" + format + ",hwupload=extra_hw_frames=64"
	}
	return "format=" + format + ",hwupload"
}
