// Package local implements the bus capabilities on top of a directory tree.
//
// Every topic is a file of newline separated JSON records under the root. Each
// record carries the sequence number assigned on append, the ordered headers and
// the payload. Readers tail files and are woken by in-process appends, by
// fsnotify events for writes made by other processes, and by a poll ticker as a
// last resort. RPC and PRPC topics hold requests and responses in the same file,
// correlated by request id headers.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/drblury/protogate/bus"
	errspkg "github.com/drblury/protogate/internal/runtime/errors"
	"github.com/drblury/protogate/internal/runtime/ids"
	"github.com/drblury/protogate/internal/runtime/jsoncodec"
	"github.com/drblury/protogate/internal/runtime/logging"
)

// DefaultPollInterval bounds how long a reader sleeps without any wakeup.
const DefaultPollInterval = 100 * time.Millisecond

// Config configures a local bus.
type Config struct {
	// Root is the directory holding every topic file. It is created if missing.
	Root string
	// PollInterval overrides DefaultPollInterval.
	PollInterval time.Duration
	// DisableWatcher turns off fsnotify; readers then rely on in-process
	// wakeups and polling only.
	DisableWatcher bool
}

// Bus is a file-backed bus.Bus.
type Bus struct {
	root     string
	poll     time.Duration
	logger   logging.ServiceLogger
	writerID string
	start    time.Time

	writerSeq atomic.Uint64

	mu    sync.Mutex
	files map[string]*topicFile

	// dirChanged fires whenever a file or directory may have been created.
	dirChanged *signal

	watcher *fsnotify.Watcher
	closed  chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

var _ bus.Bus = (*Bus)(nil)

// record is the on-disk form of a packet.
type record struct {
	Seq     uint64      `json:"seq"`
	Headers [][2]string `json:"headers"`
	Payload []byte      `json:"payload"`
}

func (r record) packet() bus.Packet {
	pkt := bus.Packet{Headers: make([]bus.Header, 0, len(r.Headers)), Payload: r.Payload}
	if pkt.Payload == nil {
		pkt.Payload = []byte{}
	}
	for _, h := range r.Headers {
		pkt.Headers = append(pkt.Headers, bus.Header{Key: h[0], Value: h[1]})
	}
	return pkt
}

type topicFile struct {
	abs     string
	changed *signal

	mu        sync.Mutex
	seq       uint64
	seqLoaded bool
}

// New opens a bus rooted at cfg.Root.
func New(cfg Config, logger logging.ServiceLogger) (*Bus, error) {
	if cfg.Root == "" {
		return nil, errspkg.ErrRootRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve bus root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create bus root: %w", err)
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	b := &Bus{
		root:       root,
		poll:       poll,
		logger:     logger.With(logging.LogFields{"component": "local_bus", "root": root}),
		writerID:   ids.New(),
		start:      time.Now(),
		files:      make(map[string]*topicFile),
		dirChanged: newSignal(),
		closed:     make(chan struct{}),
	}

	if !cfg.DisableWatcher {
		if err := b.startWatcher(); err != nil {
			b.logger.Error("fsnotify unavailable, falling back to polling", err, nil)
		}
	}

	b.logger.Info("Local bus opened", logging.LogFields{"writer_id": b.writerID, "poll_interval": poll.String()})
	return b, nil
}

// Root implements bus.Directory.
func (b *Bus) Root() string {
	return b.root
}

// Close stops the watcher and every background reader started through this bus.
func (b *Bus) Close() error {
	var err error
	b.once.Do(func() {
		close(b.closed)
		if b.watcher != nil {
			err = b.watcher.Close()
		}
		b.wg.Wait()
	})
	return err
}

// Publish implements bus.Publisher.
func (b *Bus) Publish(ctx context.Context, topic bus.Topic, pkt bus.Packet) error {
	return b.Write(ctx, topic.Path(), pkt, true)
}

// Write implements bus.Publisher.
func (b *Bus) Write(ctx context.Context, path string, pkt bus.Packet, standardHeaders bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.append(path, pkt, standardHeaders)
	return err
}

// List implements bus.Directory.
func (b *Bus) List(ctx context.Context) ([]string, error) {
	var out []string
	err := filepath.WalkDir(b.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list bus root: %w", err)
	}
	sort.Strings(out)
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (b *Bus) isClosed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}

func (b *Bus) file(rel string) (*topicFile, error) {
	local := filepath.FromSlash(rel)
	if rel == "" || !filepath.IsLocal(local) {
		return nil, fmt.Errorf("%w: %q", bus.ErrInvalidPath, rel)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.files[rel]
	if !ok {
		f = &topicFile{abs: filepath.Join(b.root, local), changed: newSignal()}
		b.files[rel] = f
	}
	return f, nil
}

// lookup returns the file state for an absolute path if a reader or writer
// already touched it.
func (b *Bus) lookup(abs string) (*topicFile, bool) {
	rel, err := filepath.Rel(b.root, abs)
	if err != nil {
		return nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.files[filepath.ToSlash(rel)]
	return f, ok
}

// append stores pkt at the end of the file at rel and returns the stored
// packet, including any headers the bus attached.
func (b *Bus) append(rel string, pkt bus.Packet, standardHeaders bool) (bus.Packet, error) {
	if b.isClosed() {
		return bus.Packet{}, bus.ErrClosed
	}
	f, err := b.file(rel)
	if err != nil {
		return bus.Packet{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	created := false
	if _, err := os.Stat(f.abs); errors.Is(err, fs.ErrNotExist) {
		created = true
		if err := os.MkdirAll(filepath.Dir(f.abs), 0o755); err != nil {
			return bus.Packet{}, fmt.Errorf("create topic directory: %w", err)
		}
	}
	if !f.seqLoaded {
		n, err := countRecords(f.abs)
		if err != nil {
			return bus.Packet{}, err
		}
		f.seq, f.seqLoaded = n, true
	}

	stored := pkt.Clone()
	if standardHeaders {
		stored.Headers = append(stored.Headers,
			bus.Header{Key: bus.HeaderTimeMono, Value: strconv.FormatInt(time.Since(b.start).Nanoseconds(), 10)},
			bus.Header{Key: bus.HeaderTimeWall, Value: time.Now().UTC().Format(time.RFC3339Nano)},
			bus.Header{Key: bus.HeaderTransportSeq, Value: strconv.FormatUint(f.seq, 10)},
			bus.Header{Key: bus.HeaderWriterID, Value: b.writerID},
			bus.Header{Key: bus.HeaderWriterSeq, Value: strconv.FormatUint(b.writerSeq.Add(1)-1, 10)},
		)
	}

	rec := record{Seq: f.seq, Headers: stored.Pairs(), Payload: stored.Payload}
	line, err := jsoncodec.Marshal(rec)
	if err != nil {
		return bus.Packet{}, fmt.Errorf("encode record: %w", err)
	}
	line = append(line, '\n')

	fh, err := os.OpenFile(f.abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return bus.Packet{}, fmt.Errorf("open topic file: %w", err)
	}
	_, writeErr := fh.Write(line)
	closeErr := fh.Close()
	if writeErr != nil {
		return bus.Packet{}, fmt.Errorf("append record: %w", writeErr)
	}
	if closeErr != nil {
		return bus.Packet{}, fmt.Errorf("close topic file: %w", closeErr)
	}

	f.seq++
	f.changed.broadcast()
	if created {
		b.dirChanged.broadcast()
	}
	return stored, nil
}

func countRecords(abs string) (uint64, error) {
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read topic file: %w", err)
	}
	return uint64(len(jsoncodec.Lines(data))), nil
}
