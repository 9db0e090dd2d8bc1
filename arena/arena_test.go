package arena

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"testing"
	"unsafe"
)

const testSize = HeaderSize + 65536

func TestHeaderLayout(t *testing.T) {
	if headerStructSize > HeaderSize {
		t.Fatalf("header struct is %d bytes, only %d reserved", headerStructSize, HeaderSize)
	}

	var h Header

	if off := unsafe.Offsetof(h.tail); off%64 != 0 {
		t.Errorf("tail at %d is not cache line aligned", off)
	}

	if off := unsafe.Offsetof(h.head); off%64 != 0 {
		t.Errorf("head at %d is not cache line aligned", off)
	}
}

func TestCreateAttach(t *testing.T) {
	dir := t.TempDir()

	owner, err := Create("/roxy_test", testSize, WithDir(dir))

	if err != nil {
		t.Fatal(err)
	}

	defer owner.Close()

	if !owner.Owner() || owner.Capacity() != 65536 || len(owner.Ring()) != 65536 {
		t.Fatalf("unexpected arena: owner=%v capacity=%d", owner.Owner(), owner.Capacity())
	}

	h := owner.Header()

	if h.Version() != ProtocolVersion || h.Tail() != 0 || h.Head() != 0 || h.WriteSeq() != 0 || h.ReadSeq() != 0 {
		t.Fatal("fresh header not zeroed")
	}

	if h.OwnerPID() != os.Getpid() {
		t.Fatalf("owner pid = %d", h.OwnerPID())
	}

	peer, err := Attach("roxy_test", WithDir(dir))

	if err != nil {
		t.Fatal(err)
	}

	defer peer.Close()

	if peer.Owner() || peer.Capacity() != owner.Capacity() {
		t.Fatal("attached arena differs from the created one")
	}

	// Both views share the same memory.
	owner.Ring()[100] = 0x5A

	if peer.Ring()[100] != 0x5A {
		t.Fatal("attached view does not see owner writes")
	}

	h.CompareAndSwapTail(0, 32)

	if peer.Header().Tail() != 32 || peer.Header().WriteOffset() != 32 {
		t.Fatal("attached header does not see owner updates")
	}
}

func TestCreateExisting(t *testing.T) {
	dir := t.TempDir()

	a, err := Create("dup", testSize, WithDir(dir))

	if err != nil {
		t.Fatal(err)
	}

	defer a.Close()

	if _, err = Create("dup", testSize, WithDir(dir)); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestAttachMissing(t *testing.T) {
	if _, err := Attach("missing", WithDir(t.TempDir())); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreatePermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	dir := t.TempDir()

	if err := os.Chmod(dir, 0500); err != nil {
		t.Fatal(err)
	}

	defer os.Chmod(dir, 0700)

	if _, err := Create("denied", testSize, WithDir(dir)); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestInvalidSize(t *testing.T) {
	for _, size := range []int64{0, HeaderSize, HeaderSize + MinCapacity - 16} {
		if _, err := Create("small", size, WithDir(t.TempDir())); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("size %d: expected ErrInvalidSize, got %v", size, err)
		}
	}
}

func TestCapacityRoundedDown(t *testing.T) {
	a, err := NewAnonymous(HeaderSize + 8191)

	if err != nil {
		t.Fatal(err)
	}

	defer a.Close()

	if a.Capacity() != 8176 {
		t.Fatalf("capacity = %d, want 8176", a.Capacity())
	}
}

func TestInvalidName(t *testing.T) {
	for _, name := range []string{"", "/", "a/b", ".."} {
		if _, err := Create(name, testSize, WithDir(t.TempDir())); !errors.Is(err, ErrInvalidName) {
			t.Errorf("name %q: expected ErrInvalidName, got %v", name, err)
		}
	}
}

func TestAttachVersionMismatch(t *testing.T) {
	dir := t.TempDir()

	a, err := Create("old", testSize, WithDir(dir))

	if err != nil {
		t.Fatal(err)
	}

	// Pretend the arena was created by a v1 build.
	binary.NativeEndian.PutUint32(a.data[8:], ProtocolVersion-1)

	if err = a.Flush(); err != nil {
		t.Fatal(err)
	}

	if err = a.Close(); err != nil {
		t.Fatal(err)
	}

	before, err := os.ReadFile(a.Path())

	if err != nil {
		t.Fatal(err)
	}

	if _, err = Attach("old", WithDir(dir)); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}

	after, err := os.ReadFile(a.Path())

	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(before, after) {
		t.Fatal("failed attach modified the arena")
	}
}

func TestAttachGarbage(t *testing.T) {
	dir := t.TempDir()
	path, err := Path("junk", WithDir(dir))

	if err != nil {
		t.Fatal(err)
	}

	if err = os.WriteFile(path, bytes.Repeat([]byte{0xEE}, testSize), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err = Attach("junk", WithDir(dir)); !errors.Is(err, ErrInvalidHeader) {
		t.Fatalf("expected ErrInvalidHeader, got %v", err)
	}
}

func TestDestroy(t *testing.T) {
	dir := t.TempDir()

	owner, err := Create("gone", testSize, WithDir(dir))

	if err != nil {
		t.Fatal(err)
	}

	defer owner.Close()

	peer, err := Attach("gone", WithDir(dir))

	if err != nil {
		t.Fatal(err)
	}

	defer peer.Close()

	if err = peer.Destroy(); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	if err = owner.Destroy(); err != nil {
		t.Fatal(err)
	}

	if _, err = os.Stat(owner.Path()); !os.IsNotExist(err) {
		t.Fatalf("backing file still present: %v", err)
	}

	// Existing views keep working after the unlink.
	owner.Ring()[0] = 1

	if peer.Ring()[0] != 1 {
		t.Fatal("existing mapping lost after destroy")
	}

	if _, err = Attach("gone", WithDir(dir)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after destroy, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()

	a, err := Create("stale", testSize, WithDir(dir))

	if err != nil {
		t.Fatal(err)
	}

	a.Close()

	if err = Remove("stale", WithDir(dir)); err != nil {
		t.Fatal(err)
	}

	if err = Remove("stale", WithDir(dir)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFlags(t *testing.T) {
	a, err := NewAnonymous(testSize)

	if err != nil {
		t.Fatal(err)
	}

	defer a.Close()

	h := a.Header()

	if h.Poisoned() {
		t.Fatal("fresh arena is poisoned")
	}

	h.SetFlag(FlagPoisoned)
	h.SetFlag(FlagPoisoned)

	if !h.Poisoned() || h.Flags() != FlagPoisoned {
		t.Fatalf("flags = %b", h.Flags())
	}

	if err = a.Close(); err != nil {
		t.Fatal(err)
	}

	if err = a.Close(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestProcessAlive(t *testing.T) {
	if !ProcessAlive(os.Getpid()) {
		t.Fatal("own process reported dead")
	}

	if ProcessAlive(0) || ProcessAlive(-1) {
		t.Fatal("invalid pid reported alive")
	}
}
