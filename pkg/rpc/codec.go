package rpc

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// maxMessageSize bounds a single frame, guarding against a peer sending
// a bogus huge length prefix and forcing an unbounded allocation.
const maxMessageSize = 16 << 20

// writeFrame writes an unsigned varint length prefix followed by
// payload, per spec.md §6's message framing.
func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(payload)))
	if _, err := w.Write(lenBuf[:n]); err != nil {
		return errors.Wrap(err, "write frame length")
	}
	if _, err := w.Write(payload); err != nil {
		return errors.Wrap(err, "write frame payload")
	}
	return nil
}

// byteReadReader is what readFrame needs: ReadByte for the varint
// prefix, Read for the bulk payload that follows. *bufio.Reader
// satisfies it directly.
type byteReadReader interface {
	io.Reader
	io.ByteReader
}

// readFrame reads one length-prefixed frame from r.
func readFrame(r byteReadReader) ([]byte, error) {
	length, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, errors.Wrap(err, "read frame length")
	}
	if length > maxMessageSize {
		return nil, errors.Errorf("frame length %d exceeds maximum %d", length, maxMessageSize)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "read frame payload")
	}
	return buf, nil
}

// DecodeRequest unmarshals one frame's payload into a Request.
func DecodeRequest(payload []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.Wrap(err, "decode request")
	}
	return &req, nil
}

// EncodeResponse marshals rsp to its wire payload.
func EncodeResponse(rsp *Response) ([]byte, error) {
	return json.Marshal(rsp)
}
