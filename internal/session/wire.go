package session

import (
	"encoding/binary"
	"fmt"
	"io"
)

// The protocol exchanges length-delimited UTF-8 text frames: a 2-byte
// big-endian length prefix followed by that many payload bytes. This is the
// layout Java's DataOutputStream.writeUTF produces, which existing clients
// speak.

// maxFrameSize is the largest payload the 2-byte prefix can describe.
const maxFrameSize = 65535

// WriteFrame writes one text frame to w.
func WriteFrame(w io.Writer, s string) error {
	payload := []byte(s)
	if len(payload) > maxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", len(payload))
	}

	var header [2]byte
	binary.BigEndian.PutUint16(header[:], uint16(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one text frame from r. io.EOF on a clean connection end.
func ReadFrame(r io.Reader) (string, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return "", err
	}

	payload := make([]byte, binary.BigEndian.Uint16(header[:]))
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", err
	}
	return string(payload), nil
}
