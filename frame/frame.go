// Package frame implements the fixed-layout envelope that carries every message
// on the bus.
//
// A frame is a 16-byte header followed by the payload, padded so the next frame
// starts 16-byte aligned:
//
//	0       4        8               16
//	| word0 | length | timestamp     | payload ... | pad |
//
// word0 holds the frame type in its low half and the commit mark in its high
// half. Writers store word0 last, atomically, which is what publishes the frame.
// All fields use the host byte order; frames never leave the machine.
package frame

import (
	"strconv"
	"strings"
	"sync"

	"github.com/markvandendool/roxy-sub003/internal/utils"
	"github.com/pkg/errors"
)

const (
	HeaderSize     = 16
	Alignment      = 16
	WrapMarkerSize = HeaderSize

	// commitMark occupies the upper half of word0 once a frame is published.
	commitMark uint16 = 0xB05E
)

type Type uint16

const (
	TypePing     Type = 1
	TypePong     Type = 2
	TypeCommand  Type = 3
	TypeResponse Type = 4
	TypeEvent    Type = 5
	TypeState    Type = 6

	// TypeWrap is reserved for the marker telling the reader to continue at offset 0.
	TypeWrap Type = 0xFFFF
)

type Frame struct {
	Type      Type
	Timestamp uint64 // unix nanoseconds
	Payload   []byte
}

func (f Frame) Size() int {
	return Size(len(f.Payload))
}

// Size is the number of ring bytes a frame with an n-byte payload occupies.
func Size(n int) int {
	return HeaderSize + utils.AlignUp(n, Alignment)
}

// MaxFrameSize is the largest frame a ring of the given capacity accepts: the
// ring always keeps room for the header of one more frame and a wrap marker.
func MaxFrameSize(capacity int) int {
	return capacity - HeaderSize - WrapMarkerSize
}

func MaxPayload(capacity int) int {
	return MaxFrameSize(capacity) - HeaderSize
}

var registry = struct {
	sync.RWMutex
	names map[Type]string
	types map[string]Type
}{
	names: map[Type]string{
		TypePing:     "ping",
		TypePong:     "pong",
		TypeCommand:  "command",
		TypeResponse: "response",
		TypeEvent:    "event",
		TypeState:    "state",
		TypeWrap:     "wrap",
	},
}

func init() {
	registry.types = make(map[string]Type, len(registry.names))

	for t, name := range registry.names {
		registry.types[name] = t
	}
}

// Register names an application-defined frame type. The registry is open:
// unregistered types still travel over the bus, they just print as numbers.
func Register(t Type, name string) error {
	if t == TypeWrap {
		return errors.Errorf("frame type %d is reserved", t)
	}

	name = strings.ToLower(strings.TrimSpace(name))

	if name == "" {
		return errors.New("frame type name is empty")
	}

	registry.Lock()
	defer registry.Unlock()

	if existing, ok := registry.names[t]; ok {
		return errors.Errorf("frame type %d already registered as %q", t, existing)
	}

	if existing, ok := registry.types[name]; ok {
		return errors.Errorf("frame type name %q already used by %d", name, existing)
	}

	registry.names[t] = name
	registry.types[name] = t
	return nil
}

func (t Type) String() string {
	registry.RLock()
	name, ok := registry.names[t]
	registry.RUnlock()

	if ok {
		return name
	}

	return "type(" + strconv.Itoa(int(t)) + ")"
}

func (t Type) Known() bool {
	registry.RLock()
	defer registry.RUnlock()

	_, ok := registry.names[t]
	return ok
}

// ParseType accepts a registered name (case-insensitive) or a number.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	registry.RLock()
	t, ok := registry.types[s]
	registry.RUnlock()

	if ok {
		return t, nil
	}

	n, err := strconv.ParseUint(s, 0, 16)

	if err != nil {
		return 0, errors.Errorf("unknown frame type %q", s)
	}

	return Type(n), nil
}
