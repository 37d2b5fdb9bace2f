// Package hls downloads HLS renditions through the same streaming
// engine, segment by segment, and merges the ordered segments with
// ffmpeg's concat demuxer. Segments carry IsSegment so the engine skips
// counters, hashing and history for them.
package hls

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/NTFSvolume/hoard/pkg/hoardlib"
)

const (
	// VideoBatchSize bounds concurrently downloading video segments.
	VideoBatchSize = 10
	// AudioBatchSize bounds concurrently downloading audio segments.
	AudioBatchSize = 50
)

// Rendition is one stream (video or audio) of an HLS asset.
type Rendition struct {
	// Parent is the media item the merged output belongs to.
	Parent *hoardlib.MediaItem
	// SegmentURLs are the ordered segment locations.
	SegmentURLs []*url.URL
	// Audio selects the audio batch size.
	Audio bool
}

// Downloader fetches renditions through the streaming engine.
type Downloader struct {
	streamer *hoardlib.Streamer
}

// NewDownloader wraps the engine for segment work.
func NewDownloader(streamer *hoardlib.Streamer) *Downloader {
	return &Downloader{streamer: streamer}
}

// segmentItem derives the media item for one segment. The on-disk name
// keeps the segment index so the concat list preserves order.
func segmentItem(parent *hoardlib.MediaItem, segUrl *url.URL, index int) *hoardlib.MediaItem {
	return &hoardlib.MediaItem{
		Url:              segUrl,
		Domain:           parent.Domain,
		Referer:          parent.Referer,
		DownloadFolder:   segmentDir(parent),
		Filename:         fmt.Sprintf("%05d.ts", index),
		OriginalFilename: fmt.Sprintf("%05d.ts", index),
		IsSegment:        true,
		Headers:          parent.Headers.Clone(),
	}
}

func segmentDir(parent *hoardlib.MediaItem) string {
	base := strings.TrimSuffix(parent.Filename, filepath.Ext(parent.Filename))
	return filepath.Join(parent.DownloadFolder, "."+base+".segments")
}

// Download fetches every segment of the rendition, batched under its own
// task group, and returns the ordered list of segment files. The files,
// concatenated in order, form a valid media stream.
func (d *Downloader) Download(ctx context.Context, r *Rendition) ([]string, error) {
	batch := VideoBatchSize
	if r.Audio {
		batch = AudioBatchSize
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(batch)

	files := make([]string, len(r.SegmentURLs))
	for i, segUrl := range r.SegmentURLs {
		item := segmentItem(r.Parent, segUrl, i)
		files[i] = item.CompleteFile()
		group.Go(func() error {
			_, err := d.streamer.Download(groupCtx, item)
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// Merge concatenates the ordered segment files into the parent's
// complete file with ffmpeg and removes the segment directory on
// success.
func Merge(ctx context.Context, parent *hoardlib.MediaItem, segments []string) error {
	listPath := filepath.Join(segmentDir(parent), "concat.txt")
	var b strings.Builder
	for _, seg := range segments {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(seg, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-v", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y",
		parent.CompleteFile(),
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg concat failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return os.RemoveAll(segmentDir(parent))
}
