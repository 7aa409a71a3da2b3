// Package ids generates the identifiers the bus and the bridge attach to
// packets: writer ids, request ids and relayed message ids.
package ids

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Source hands out ULIDs that sort by creation time, also within the same
// millisecond.
type Source struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewSource returns a source drawing monotonic entropy from r.
func NewSource(r io.Reader) *Source {
	return &Source{entropy: ulid.Monotonic(r, 0), now: time.Now}
}

// Next returns the next id as a 26-character string.
func (s *Source) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

var defaultSource = NewSource(rand.Reader)

// New returns an id from the process-wide source.
func New() string {
	return defaultSource.Next()
}

// Time reports when id was created.
func Time(id string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
