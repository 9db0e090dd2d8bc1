// Package arena manages the shared memory region behind a bus: a fixed-size
// file mapped by every participating process, made of a reserved control
// header followed by the ring bytes.
//
// One owner process creates the arena and eventually destroys it. Any number
// of processes attach to it. Destroying only unlinks the backing object;
// processes that still have it mapped keep operating on their own view.
package arena

import (
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/markvandendool/roxy-sub003/internal/utils"
	"github.com/pkg/errors"
)

type Arena struct {
	name  string
	path  string
	data  mmap.MMap
	file  *os.File
	head  *Header
	owner bool
}

// Create allocates a new arena of size total bytes, header included, and
// becomes its owner. The ring capacity is size-HeaderSize rounded down to a
// multiple of 16.
func Create(name string, size int64, opts ...Option) (a *Arena, err error) {
	o := newOptions(opts)

	capacity, err := ringCapacity(size)

	if err != nil {
		return
	}

	a = &Arena{
		name:  name,
		owner: true,
	}

	if a.path, err = o.path(name); err != nil {
		return nil, err
	}

	if a.file, err = os.OpenFile(a.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, o.mode); err != nil {
		return nil, classify(err, "create %s", a.path)
	}

	defer func() {
		if err != nil {
			a.release()
			os.Remove(a.path)
			a = nil
		}
	}()

	total := int64(HeaderSize) + int64(capacity)

	if err = a.file.Truncate(total); err != nil {
		return a, classify(err, "truncate %s to %d bytes", a.path, total)
	}

	if err = preallocate(a.file, total); err != nil {
		return a, classify(err, "allocate %d bytes for %s", total, a.path)
	}

	if a.data, err = mmap.Map(a.file, mmap.RDWR, 0); err != nil {
		return a, classify(err, "map %s", a.path)
	}

	a.init(newHeader(capacity, os.Getpid()))

	if err = a.data.Flush(); err != nil {
		return a, errors.Wrapf(err, "flush header of %s", a.path)
	}

	return a, nil
}

// NewAnonymous returns an owned arena backed by anonymous memory. It has the
// same layout as a named arena but is only visible to the calling process.
func NewAnonymous(size int64) (a *Arena, err error) {
	capacity, err := ringCapacity(size)

	if err != nil {
		return
	}

	a = &Arena{
		name:  "anonymous",
		owner: true,
	}

	if a.data, err = mmap.MapRegion(nil, HeaderSize+int(capacity), mmap.RDWR, mmap.ANON, 0); err != nil {
		return nil, classify(err, "map %d anonymous bytes", size)
	}

	a.init(newHeader(capacity, os.Getpid()))
	return a, nil
}

// Attach maps an existing arena read-write. The header is validated from the
// file before anything is mapped, so a rejected attach leaves the arena as it was.
func Attach(name string, opts ...Option) (a *Arena, err error) {
	o := newOptions(opts)

	a = &Arena{
		name: name,
	}

	if a.path, err = o.path(name); err != nil {
		return nil, err
	}

	info, err := os.Stat(a.path)

	if err != nil {
		return nil, classify(err, "attach %s", a.path)
	}

	if a.file, err = os.OpenFile(a.path, os.O_RDWR, 0); err != nil {
		return nil, classify(err, "attach %s", a.path)
	}

	defer func() {
		if err != nil {
			a.release()
			a = nil
		}
	}()

	if err = a.validateHead(info.Size()); err != nil {
		return
	}

	if a.data, err = mmap.Map(a.file, mmap.RDWR, 0); err != nil {
		return a, classify(err, "map %s", a.path)
	}

	a.head = utils.BytesToPointer[Header](a.data[:HeaderSize])
	return a, nil
}

func (a *Arena) init(head *Header) {
	copy(a.data[:headerStructSize], utils.PointerToBytes(head, headerStructSize))
	a.head = utils.BytesToPointer[Header](a.data[:HeaderSize])
}

func (a *Arena) validateHead(fileSize int64) (err error) {
	if fileSize < HeaderSize {
		return errors.Wrapf(ErrInvalidHeader, "%s: file too small (%d bytes)", a.path, fileSize)
	}

	if _, err = a.file.Seek(0, io.SeekStart); err != nil {
		return errors.Wrapf(err, "seek %s", a.path)
	}

	b := make([]byte, headerStructSize)

	if _, err = io.ReadFull(a.file, b); err != nil {
		return errors.Wrapf(err, "read header of %s", a.path)
	}

	head := utils.BytesToPointer[Header](b)

	if head.magic != magic {
		return errors.Wrapf(ErrInvalidHeader, "%s: bad magic %q", a.path, head.magic[:])
	}

	if head.version != ProtocolVersion {
		return errors.Wrapf(ErrVersionMismatch, "%s: arena speaks v%d, this build speaks v%d", a.path, head.version, ProtocolVersion)
	}

	if head.headSize != HeaderSize {
		return errors.Wrapf(ErrInvalidHeader, "%s: header size %d, expected %d", a.path, head.headSize, HeaderSize)
	}

	if head.capacity < MinCapacity || head.capacity%16 != 0 {
		return errors.Wrapf(ErrInvalidHeader, "%s: invalid capacity %d", a.path, head.capacity)
	}

	if fileSize != int64(head.headSize)+int64(head.capacity) {
		return errors.Wrapf(ErrInvalidHeader, "%s: file is %d bytes, header describes %d", a.path, fileSize, int64(head.headSize)+int64(head.capacity))
	}

	if head.tail < head.head || head.tail-head.head > uint64(head.capacity) {
		return errors.Wrapf(ErrInvalidHeader, "%s: cursors out of range (tail %d, head %d)", a.path, head.tail, head.head)
	}

	return
}

func ringCapacity(size int64) (uint32, error) {
	capacity := utils.AlignDown(size-HeaderSize, 16)

	if size < HeaderSize || capacity < MinCapacity || capacity > MaxCapacity {
		return 0, errors.Wrapf(ErrInvalidSize, "%d bytes (ring must be %d..%d bytes after a %d byte header)", size, MinCapacity, int64(MaxCapacity), HeaderSize)
	}

	return uint32(capacity), nil
}

func (a *Arena) Name() string {
	return a.name
}

// Path is the backing file, empty for anonymous arenas.
func (a *Arena) Path() string {
	return a.path
}

func (a *Arena) Owner() bool {
	return a.owner
}

func (a *Arena) Header() *Header {
	return a.head
}

func (a *Arena) Capacity() int {
	return int(a.head.capacity)
}

// Ring returns the ring bytes, excluding the header.
func (a *Arena) Ring() []byte {
	return a.data[HeaderSize : HeaderSize+int(a.head.capacity)]
}

// Size is the total mapped size, header included.
func (a *Arena) Size() int {
	return len(a.data)
}

func (a *Arena) Flush() error {
	if a.data == nil {
		return ErrClosed
	}

	return a.data.Flush()
}

// Destroy unlinks the backing object. Only the creating handle may do this.
// Mappings held by other processes stay valid until they close them.
func (a *Arena) Destroy() error {
	if !a.owner {
		return errors.Wrapf(ErrNotOwner, "destroy %s", a.name)
	}

	if a.path == "" {
		return nil
	}

	if err := os.Remove(a.path); err != nil {
		return classify(err, "destroy %s", a.path)
	}

	return nil
}

// Remove unlinks the backing object of a named arena regardless of who
// created it. It is meant for operators cleaning up after a crashed owner.
func Remove(name string, opts ...Option) error {
	path, err := newOptions(opts).path(name)

	if err != nil {
		return err
	}

	if err = os.Remove(path); err != nil {
		return classify(err, "remove %s", path)
	}

	return nil
}

// Close unmaps the arena. The header pointer and ring slices handed out
// earlier must not be used afterwards.
func (a *Arena) Close() error {
	if a.data == nil && a.file == nil {
		return ErrClosed
	}

	return a.release()
}

func (a *Arena) release() (err error) {
	if a.data != nil {
		err = a.data.Unmap()
		a.data = nil
	}

	if a.file != nil {
		if cerr := a.file.Close(); err == nil {
			err = cerr
		}

		a.file = nil
	}

	return
}

func classify(err error, format string, args ...any) error {
	var kind error

	switch {
	case os.IsNotExist(err):
		kind = ErrNotFound
	case os.IsExist(err):
		kind = ErrAlreadyExists
	case os.IsPermission(err):
		kind = ErrPermissionDenied
	case outOfSpace(err):
		kind = ErrOutOfSpace
	default:
		return errors.Wrapf(err, format, args...)
	}

	return errors.Wrapf(kind, format+": %v", append(args, err)...)
}
