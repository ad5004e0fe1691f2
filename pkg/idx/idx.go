package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a ULID in canonical string form, optionally behind a "<kind>_"
// prefix (e.g. "req_01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV").
type ID string

// Zero is the empty ID.
const Zero ID = ""

// Kinds of IDs handed out in logs and headers.
const (
	KindRequest = "req"
	KindFetch   = "fetch"
	KindLogin   = "login"
)

// ErrInvalid reports a malformed ID string.
var ErrInvalid = errors.New("idx: invalid id")

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

func newULID(t time.Time) ulid.ULID {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy)
}

// New returns a new sortable ID for the current time.
func New() ID {
	return NewAt(time.Now().UTC())
}

// NewAt returns an ID carrying t, useful in tests.
func NewAt(t time.Time) ID {
	return ID(newULID(t).String())
}

// NewKind returns a new ID behind kind's prefix.
func NewKind(kind string) ID {
	return ID(kind + "_" + newULID(time.Now().UTC()).String())
}

// Parse validates s as a bare or prefixed ULID.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalid
	}

	if _, err := ulid.ParseStrict(ID(s).ulidPart()); err != nil {
		return Zero, ErrInvalid
	}
	return ID(s), nil
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool { return id == Zero }

func (id ID) String() string { return string(id) }

// Kind returns the prefix of id, or "" for a bare ULID.
func (id ID) Kind() string {
	kind, _, ok := strings.Cut(string(id), "_")
	if !ok {
		return ""
	}
	return kind
}

func (id ID) ulidPart() string {
	if _, rest, ok := strings.Cut(string(id), "_"); ok {
		return rest
	}
	return string(id)
}

// Time returns the timestamp embedded in id, or the zero time if id is not
// valid.
func (id ID) Time() time.Time {
	u, err := ulid.ParseStrict(id.ulidPart())
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time())
}
