package protocol

import "errors"

// Decoder accumulates bytes read from a stream and cuts complete replies out
// of them. Whatever trails the last complete reply stays buffered until more
// bytes are fed.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf []byte
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends p to the buffer. p may be reused by the caller afterwards.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// NextFrame returns a copy of the bytes of the next complete reply.
//
// It returns ErrIncomplete when no complete reply is buffered. Any other
// error means the stream cannot be resynchronised, so the buffer is dropped.
func (d *Decoder) NextFrame() ([]byte, error) {
	n, err := FrameLength(d.buf)
	if err != nil {
		if !errors.Is(err, ErrIncomplete) {
			d.Reset()
		}
		return nil, err
	}

	frame := make([]byte, n)
	copy(frame, d.buf[:n])
	d.consume(n)

	return frame, nil
}

// Next decodes the next complete reply. Errors are as for NextFrame.
func (d *Decoder) Next() (Reply, error) {
	frame, err := d.NextFrame()
	if err != nil {
		return Reply{}, err
	}

	reply, _, err := ParseReply(frame)
	return reply, err
}

// Buffered returns the number of bytes waiting for the rest of their reply.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Reset drops all buffered bytes.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}

func (d *Decoder) consume(n int) {
	remaining := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:remaining]
}
