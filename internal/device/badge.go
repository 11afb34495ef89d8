package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/alarm-display/internal/logger"
)

const (
	// badgeQueueSize is the number of reads kept between polls.
	badgeQueueSize = 4
	// maxBadgeLineLength is the longest accepted reader line.
	maxBadgeLineLength = 128
)

// LineBadgeReader reads one badge UID per line, the way serial and HID
// keyboard-wedge RFID readers report scans.
type LineBadgeReader struct {
	// uids holds scanned UIDs until polled.
	uids chan string
	// closer closes the underlying source, may be nil.
	closer io.Closer
}

// OpenBadgeReader opens path (a serial device or FIFO) and starts reading it.
func OpenBadgeReader(ctx context.Context, path string) (*LineBadgeReader, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open badge reader: %w", err)
	}

	reader := NewLineBadgeReader(ctx, file)
	reader.closer = file

	return reader, nil
}

// NewLineBadgeReader starts reading UIDs from r.
func NewLineBadgeReader(ctx context.Context, r io.Reader) *LineBadgeReader {
	b := &LineBadgeReader{uids: make(chan string, badgeQueueSize)}

	go b.read(logger.WithName(ctx, "badge-reader"), r)

	return b
}

// PollUID returns the next scanned UID without blocking.
func (b *LineBadgeReader) PollUID() (string, bool) {
	select {
	case uid := <-b.uids:
		return uid, true
	default:
		return "", false
	}
}

// Close closes the underlying device.
func (b *LineBadgeReader) Close() error {
	if b.closer == nil {
		return nil
	}

	return b.closer.Close()
}

// read forwards one UID per line until the source ends. Lines longer than
// maxBadgeLineLength are skipped up to the next newline.
func (b *LineBadgeReader) read(ctx context.Context, r io.Reader) {
	reader := bufio.NewReaderSize(r, maxBadgeLineLength)
	discarding := false

	for {
		line, err := reader.ReadSlice('\n')

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			if !discarding {
				logger.WarnKV(ctx, "Badge reader line too long, skipping", "limit", maxBadgeLineLength)
			}

			discarding = true

			continue
		case discarding:
			// Tail of an over-long line.
			discarding = false
		default:
			b.forward(ctx, string(line))
		}

		if err == nil {
			continue
		}

		if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
			logger.Info(ctx, "Badge reader closed")
		} else {
			logger.ErrorKV(ctx, "Badge reader failed", "error", err)
		}

		return
	}
}

// forward queues the UID read from line, dropping it when the queue is full.
func (b *LineBadgeReader) forward(ctx context.Context, line string) {
	uid := NormalizeUID(line)
	if uid == "" {
		return
	}

	select {
	case b.uids <- uid:
	default:
		logger.WarnKV(ctx, "Badge read dropped, queue is full", "uid", uid)
	}
}

// NormalizeUID trims a raw reader line and uppercases it.
// Separators some readers put between bytes are removed.
func NormalizeUID(raw string) string {
	replacer := strings.NewReplacer(" ", "", ":", "", "-", "")

	return strings.ToUpper(replacer.Replace(strings.TrimSpace(raw)))
}
