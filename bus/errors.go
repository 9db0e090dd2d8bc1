package bus

type busError string

var _ error = busError("")

func (err busError) Error() string {
	return string(err)
}

const (
	ErrNoPong    = busError("no pong before timeout")
	ErrWriteOnly = busError("client has no reply ring")
	ErrClosed    = busError("client closed")
)
