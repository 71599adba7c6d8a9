package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// SegmentFile is one transcoded media segment on local disk.
type SegmentFile struct {
	Sequence int
	Path     string
}

// Segmenter splits an uploaded media file into fixed-duration segments.
type Segmenter interface {
	Segment(ctx context.Context, inputPath, workDir string) ([]SegmentFile, float64, error)
}

// FFmpegSegmenter shells out to ffmpeg for transcode and segmentation.
type FFmpegSegmenter struct {
	ffmpegPath string
	segmentSec int
}

func NewFFmpegSegmenter(ffmpegPath string, segmentSec int) *FFmpegSegmenter {
	if segmentSec <= 0 {
		segmentSec = 10
	}
	return &FFmpegSegmenter{ffmpegPath: ffmpegPath, segmentSec: segmentSec}
}

// Segment transcodes inputPath to AAC transport-stream segments in
// workDir and returns them in sequence order along with the source
// duration in seconds.
func (s *FFmpegSegmenter) Segment(ctx context.Context, inputPath, workDir string) ([]SegmentFile, float64, error) {
	duration, err := s.probeDuration(ctx, inputPath)
	if err != nil {
		return nil, 0, err
	}

	segmentPattern := filepath.Join(workDir, "seg_%05d.ts")
	playlistPath := filepath.Join(workDir, "index.m3u8")

	args := []string{
		"-i", inputPath,
		"-c:a", "aac",
		"-b:a", "192k",
		"-vn",
		"-hls_time", strconv.Itoa(s.segmentSec),
		"-hls_playlist_type", "vod",
		"-hls_list_size", "0",
		"-hls_segment_filename", segmentPattern,
		"-f", "hls",
		playlistPath,
	}

	cmd := exec.CommandContext(ctx, s.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, 0, fmt.Errorf("ffmpeg failed for %s: %w: %s", inputPath, err, stderr.String())
	}

	files, err := collectSegments(workDir)
	if err != nil {
		return nil, 0, err
	}
	if len(files) == 0 {
		return nil, 0, fmt.Errorf("ffmpeg produced no segments for %s", inputPath)
	}
	return files, duration, nil
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (s *FFmpegSegmenter) probeDuration(ctx context.Context, inputPath string) (float64, error) {
	ffprobePath := strings.Replace(s.ffmpegPath, "ffmpeg", "ffprobe", 1)

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		inputPath,
	}
	out, err := exec.CommandContext(ctx, ffprobePath, args...).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", inputPath, err)
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	duration, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", probe.Format.Duration, err)
	}
	return duration, nil
}

// collectSegments lists the seg_*.ts files ffmpeg wrote, ordered by the
// sequence number embedded in the file name.
func collectSegments(workDir string) ([]SegmentFile, error) {
	matches, err := filepath.Glob(filepath.Join(workDir, "seg_*.ts"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	files := make([]SegmentFile, 0, len(matches))
	for i, path := range matches {
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
		files = append(files, SegmentFile{Sequence: i, Path: path})
	}
	return files, nil
}
