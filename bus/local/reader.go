package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/drblury/protogate/bus"
	"github.com/drblury/protogate/internal/runtime/jsoncodec"
	"github.com/drblury/protogate/internal/runtime/logging"
)

// entry is a decoded record and the byte offset where its line starts.
type entry struct {
	rec   record
	start int64
}

// Subscribe implements bus.Reader. The start position is fixed before Subscribe
// returns, so a packet appended after the call is never missed by AWAIT_NEW.
func (b *Bus) Subscribe(ctx context.Context, path string, opts bus.ReadOptions, fn bus.Handler) (bus.Subscription, error) {
	return b.subscribe(ctx, path, opts, fn)
}

func (b *Bus) subscribe(ctx context.Context, path string, opts bus.ReadOptions, fn bus.Handler) (*subscription, error) {
	if b.isClosed() {
		return nil, bus.ErrClosed
	}
	f, err := b.file(path)
	if err != nil {
		return nil, err
	}
	offset, err := b.startOffset(f, opts.Init)
	if err != nil {
		return nil, err
	}
	return b.spawn(ctx, func(ctx context.Context) error {
		return b.tail(ctx, f, offset, opts, fn)
	}), nil
}

func (b *Bus) startOffset(f *topicFile, init bus.Init) (int64, error) {
	switch init {
	case bus.InitAwaitNew:
		info, err := os.Stat(f.abs)
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("stat topic file: %w", err)
		}
		return info.Size(), nil
	case bus.InitMostRecent:
		entries, _, err := scan(f.abs, 0)
		if err != nil {
			return 0, err
		}
		if len(entries) == 0 {
			return 0, nil
		}
		return entries[len(entries)-1].start, nil
	default:
		return 0, nil
	}
}

func (b *Bus) tail(ctx context.Context, f *topicFile, offset int64, opts bus.ReadOptions, fn bus.Handler) error {
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	for {
		wake := f.changed.wait()

		entries, next, err := scan(f.abs, offset)
		if err != nil {
			b.logger.Error("Failed to read topic file", err, logging.LogFields{"file": f.abs})
			return err
		}
		offset = next

		entries = filterMinSeq(entries, opts.MinSeq)
		if opts.Iter == bus.IterNewest && len(entries) > 1 {
			entries = entries[len(entries)-1:]
		}
		for _, e := range entries {
			if err := fn(ctx, e.rec.packet()); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		case <-ticker.C:
		}
	}
}

func filterMinSeq(entries []entry, min uint64) []entry {
	if min == 0 {
		return entries
	}
	out := entries[:0]
	for _, e := range entries {
		if e.rec.Seq >= min {
			out = append(out, e)
		}
	}
	return out
}

// scan decodes every complete line at or after offset. It returns the offset
// just past the last complete line; a trailing partial line is left for the
// next scan. A missing file reads as empty.
func scan(abs string, offset int64) ([]entry, int64, error) {
	fh, err := os.Open(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, offset, nil
	}
	if err != nil {
		return nil, offset, fmt.Errorf("open topic file: %w", err)
	}
	defer fh.Close()

	if _, err := fh.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek topic file: %w", err)
	}
	data, err := io.ReadAll(fh)
	if err != nil {
		return nil, offset, fmt.Errorf("read topic file: %w", err)
	}

	var entries []entry
	pos := offset
	for {
		nl := bytes.IndexByte(data, '\n')
		if nl < 0 {
			break
		}
		line := data[:nl]
		if len(bytes.TrimSpace(line)) > 0 {
			var rec record
			if err := jsoncodec.Unmarshal(line, &rec); err != nil {
				return nil, offset, fmt.Errorf("decode record at offset %d: %w", pos, err)
			}
			entries = append(entries, entry{rec: rec, start: pos})
		}
		pos += int64(nl + 1)
		data = data[nl+1:]
	}
	return entries, pos, nil
}
