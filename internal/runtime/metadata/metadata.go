// Package metadata maps ordered bus headers onto the flat key/value metadata
// carried by broker messages.
package metadata

import (
	"sort"
	"strconv"
	"strings"

	"github.com/drblury/protogate/bus"
)

// RepeatSeparator joins a header key and the index of a repeated value, so the
// second "a" header travels as "a~1".
const RepeatSeparator = "~"

// Metadata represents the headers carried alongside a broker message.
type Metadata map[string]string

// FromHeaders flattens headers into metadata. The first value of a key keeps
// the plain key; later values are stored under key~1, key~2 and so on.
func FromHeaders(headers []bus.Header) Metadata {
	md := make(Metadata, len(headers))
	counts := make(map[string]int, len(headers))
	for _, h := range headers {
		n := counts[h.Key]
		counts[h.Key] = n + 1
		key := h.Key
		if n > 0 {
			key = h.Key + RepeatSeparator + strconv.Itoa(n)
		}
		md[key] = h.Value
	}
	return md
}

// Headers rebuilds the header list. Values of one key keep their relative
// order; distinct keys are sorted by name since maps carry no order.
func (m Metadata) Headers() []bus.Header {
	type indexed struct {
		key   string
		index int
		value string
	}
	entries := make([]indexed, 0, len(m))
	for k, v := range m {
		key, index := splitRepeat(k)
		entries = append(entries, indexed{key: key, index: index, value: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].key != entries[j].key {
			return entries[i].key < entries[j].key
		}
		return entries[i].index < entries[j].index
	})

	headers := make([]bus.Header, 0, len(entries))
	for _, e := range entries {
		headers = append(headers, bus.Header{Key: e.key, Value: e.value})
	}
	return headers
}

func splitRepeat(k string) (string, int) {
	i := strings.LastIndex(k, RepeatSeparator)
	if i <= 0 {
		return k, 0
	}
	n, err := strconv.Atoi(k[i+1:])
	if err != nil || n <= 0 {
		return k, 0
	}
	return k[:i], n
}
