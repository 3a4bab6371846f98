// Package media extracts a representative frame from a remote video with as
// little bandwidth as possible: probe and grab over the direct URL first,
// then from a 100 MiB prefix, then from a full local copy.
package media

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/stillgrab/stillgrab/internal/domain"
)

// Runner invokes the probe and extraction subprocesses.
type Runner interface {
	// Probe returns the container duration in seconds of src, which may be
	// a local path or a direct URL. headers, when non-empty, is a raw HTTP
	// header line passed to the subprocess.
	Probe(src, headers string) (float64, error)
	// Extract grabs a single frame at offset seconds into outPath.
	Extract(src, headers string, offset float64, outPath string) error
}

// FFmpeg runs the ffprobe and ffmpeg binaries. Arguments are always built
// as explicit slices; nothing is ever passed through a shell.
type FFmpeg struct {
	verifyTLS bool
	logger    *slog.Logger
}

// NewFFmpeg creates a subprocess runner honoring the TLS verification mode.
func NewFFmpeg(verifyTLS bool, logger *slog.Logger) *FFmpeg {
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpeg{verifyTLS: verifyTLS, logger: logger}
}

// probeOutput is the slice of ffprobe's JSON document we use.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe with generous analysis allowances so containers with
// late metadata still resolve a duration.
func (f *FFmpeg) Probe(src, headers string) (float64, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-analyzeduration", "100M",
		"-probesize", "50M",
	}
	args = append(args, f.transportArgs(src, headers)...)
	args = append(args, src)

	f.logger.Debug("probing", "src", src)

	out, err := exec.Command("ffprobe", args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return 0, fmt.Errorf("ffprobe failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probed probeOutput
	if err := json.Unmarshal(out, &probed); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if probed.Format.Duration == "" {
		return 0, domain.ErrNoDuration
	}
	duration, err := strconv.ParseFloat(probed.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrNoDuration, probed.Format.Duration)
	}
	return duration, nil
}

// Extract grabs one frame. The seek flag precedes the input so ffmpeg uses
// the fast keyframe seek instead of decoding up to the offset.
func (f *FFmpeg) Extract(src, headers string, offset float64, outPath string) error {
	args := []string{"-y", "-loglevel", "error"}
	args = append(args, f.transportArgs(src, headers)...)
	args = append(args,
		"-ss", strconv.FormatFloat(offset, 'f', 2, 64),
		"-i", src,
		"-frames:v", "1",
		"-q:v", "2",
		outPath,
	)

	f.logger.Debug("extracting frame", "src", src, "offset", offset)

	var stderr strings.Builder
	cmd := exec.Command("ffmpeg", args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("ffmpeg failed: %s", msg)
		}
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}

// transportArgs returns the protocol options for direct URL access.
func (f *FFmpeg) transportArgs(src, headers string) []string {
	var args []string
	if headers != "" {
		args = append(args, "-headers", headers+"\r\n")
	}
	if strings.HasPrefix(src, "https://") {
		verify := "0"
		if f.verifyTLS {
			verify = "1"
		}
		args = append(args, "-tls_verify", verify)
	}
	return args
}
