package arena

type arenaError string

var _ error = arenaError("")

func (err arenaError) Error() string {
	return string(err)
}

const (
	ErrNotFound         = arenaError("arena not found")
	ErrAlreadyExists    = arenaError("arena already exists")
	ErrVersionMismatch  = arenaError("arena version mismatch")
	ErrPermissionDenied = arenaError("arena permission denied")
	ErrOutOfSpace       = arenaError("out of shared memory")
	ErrInvalidHeader    = arenaError("invalid arena header")
	ErrInvalidSize      = arenaError("invalid arena size")
	ErrInvalidName      = arenaError("invalid arena name")
	ErrNotOwner         = arenaError("arena not owned by this handle")
	ErrClosed           = arenaError("arena closed")
)
