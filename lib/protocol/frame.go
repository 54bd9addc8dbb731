// Package protocol defines the framed binary link between an agent on
// the campus network and the server outside it: fixed big-endian
// headers, CBOR payload unions and the stable error codes both ends
// agree on.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxPayloadSize bounds a single frame. Anything larger is a corrupt
// or hostile stream, not a real request.
const MaxPayloadSize = 8 << 20

// Request is a server-to-agent frame:
//
//	seq u64 | size u32 | payload[size]
type Request struct {
	Seq     uint64
	Payload []byte
}

// Response is an agent-to-server frame:
//
//	ack u64 | size u32 | code u16 | payload[size]
//
// Ack echoes the request's Seq so the server can pair them up on a
// multiplexed connection.
type Response struct {
	Ack     uint64
	Code    uint16
	Payload []byte
}

// ReadRequest reads one request frame. A short read mid-frame is a
// hard error, the stream cannot be resynchronized after one.
func ReadRequest(r io.Reader) (*Request, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	req := &Request{Seq: binary.BigEndian.Uint64(header[0:8])}
	size := binary.BigEndian.Uint32(header[8:12])
	if size > MaxPayloadSize {
		return nil, fmt.Errorf("request payload of %d bytes exceeds the frame limit", size)
	}
	if size == 0 {
		return req, nil
	}

	req.Payload = make([]byte, size)
	if _, err := io.ReadFull(r, req.Payload); err != nil {
		return nil, fmt.Errorf("truncated request payload: %w", err)
	}
	return req, nil
}

func (req *Request) WriteTo(w io.Writer) error {
	buf := make([]byte, 12+len(req.Payload))
	binary.BigEndian.PutUint64(buf[0:8], req.Seq)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(req.Payload)))
	copy(buf[12:], req.Payload)

	_, err := w.Write(buf)
	return err
}

// ReadResponse reads one response frame, the mirror of WriteTo on the
// server side.
func ReadResponse(r io.Reader) (*Response, error) {
	var header [14]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	res := &Response{
		Ack:  binary.BigEndian.Uint64(header[0:8]),
		Code: binary.BigEndian.Uint16(header[12:14]),
	}
	size := binary.BigEndian.Uint32(header[8:12])
	if size > MaxPayloadSize {
		return nil, fmt.Errorf("response payload of %d bytes exceeds the frame limit", size)
	}
	if size == 0 {
		return res, nil
	}

	res.Payload = make([]byte, size)
	if _, err := io.ReadFull(r, res.Payload); err != nil {
		return nil, fmt.Errorf("truncated response payload: %w", err)
	}
	return res, nil
}

func (res *Response) WriteTo(w io.Writer) error {
	buf := make([]byte, 14+len(res.Payload))
	binary.BigEndian.PutUint64(buf[0:8], res.Ack)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(res.Payload)))
	binary.BigEndian.PutUint16(buf[12:14], res.Code)
	copy(buf[14:], res.Payload)

	_, err := w.Write(buf)
	return err
}
