package bus

import (
	"encoding"
	"encoding/json"
	"time"

	"github.com/markvandendool/roxy-sub003/frame"
	"github.com/pkg/errors"
)

// WriteTyped marshals v and writes it as a frame of type t.
func (c *Client) WriteTyped(t frame.Type, v encoding.BinaryMarshaler) error {
	payload, err := v.MarshalBinary()

	if err != nil {
		return errors.Wrapf(err, "marshal %s payload", t)
	}

	return c.Write(t, payload)
}

// ReadTyped reads the next frame into v. The frame's type is returned so the
// caller can tell what it decoded; on an unmarshal error the frame has still
// been consumed.
func (c *Client) ReadTyped(timeout time.Duration, v encoding.BinaryUnmarshaler) (t frame.Type, ok bool, err error) {
	f, ok, err := c.Read(timeout)

	if !ok || err != nil {
		return
	}

	t = f.Type

	if err = v.UnmarshalBinary(f.Payload); err != nil {
		err = errors.Wrapf(err, "unmarshal %s payload", t)
	}

	return
}

func (c *Client) WriteJSON(t frame.Type, v any) error {
	payload, err := json.Marshal(v)

	if err != nil {
		return errors.Wrapf(err, "marshal %s payload", t)
	}

	return c.Write(t, payload)
}

func (c *Client) ReadJSON(timeout time.Duration, v any) (t frame.Type, ok bool, err error) {
	f, ok, err := c.Read(timeout)

	if !ok || err != nil {
		return
	}

	t = f.Type

	if err = json.Unmarshal(f.Payload, v); err != nil {
		err = errors.Wrapf(err, "unmarshal %s payload", t)
	}

	return
}
