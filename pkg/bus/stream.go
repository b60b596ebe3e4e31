package bus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/itohio/cellbms/pkg/cobs"
)

const (
	// MaxFrameSize bounds a decoded frame.
	MaxFrameSize = 256
	// DefaultBufferSize is the default size of the frames channel.
	DefaultBufferSize = 16
)

// readFrames splits r on the delimiter, decodes each frame and delivers it
// to frames until ctx is done or r fails. frames is closed on return.
func readFrames(ctx context.Context, r io.Reader, frames chan<- []byte, log *zap.Logger) {
	defer close(frames)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic in frame reader", zap.Any("panic", rec))
		}
	}()

	br := bufio.NewReader(r)
	for {
		raw, err := br.ReadBytes(cobs.Delimiter)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) && ctx.Err() == nil {
				log.Warn("error reading from bus", zap.Error(err))
			}
			return
		}

		raw = raw[:len(raw)-1]
		if len(raw) == 0 {
			// Back to back delimiters wake the receiver; nothing to deliver
			continue
		}
		if len(raw) > cobs.EncodedLen(MaxFrameSize) {
			log.Debug("dropping oversized frame", zap.Int("size", len(raw)))
			continue
		}

		frame, err := cobs.Decode(make([]byte, 0, len(raw)), raw)
		if err != nil {
			log.Debug("dropping malformed frame", zap.Error(err))
			continue
		}

		select {
		case frames <- frame:
		case <-ctx.Done():
			return
		default:
			log.Warn("frames channel full, dropping frame")
		}
	}
}

// writeFrame encodes and delimits frame in a single write.
func writeFrame(w io.Writer, frame []byte) error {
	if len(frame) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds %d", len(frame), MaxFrameSize)
	}
	buf := cobs.Encode(make([]byte, 0, cobs.EncodedLen(len(frame))), frame)
	buf = append(buf, cobs.Delimiter)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}
