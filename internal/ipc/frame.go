package ipc

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	frameTransaction uint32 = 1
	frameReply       uint32 = 2

	// flagOneway marks a transaction that gets no reply.
	flagOneway uint32 = 1

	// maxFramePayload caps a single frame's payload. Larger announced
	// lengths are protocol violations and terminate the connection.
	maxFramePayload = 4 << 20

	// headerSize is kind + txn id + target + code + flags.
	headerSize = 4 + 8 + 8 + 4 + 4
)

// FirstCall is the lowest method code; interface operations count up
// from it.
const FirstCall uint32 = 1

type header struct {
	kind   uint32
	txnID  uint64
	target Handle
	code   uint32
	flags  uint32
}

// readFrame reads one length-prefixed frame payload. Transport errors are
// returned as-is so callers can distinguish peer shutdown from violations.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > maxFramePayload {
		return nil, fmt.Errorf("ipc: frame payload of %d bytes exceeds %d: %w", n, maxFramePayload, ErrProtocol)
	}
	if n < headerSize {
		return nil, fmt.Errorf("ipc: frame payload of %d bytes shorter than header: %w", n, ErrProtocol)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// encodeFrame assembles a complete frame: length prefix, header, parcel
// data.
func encodeFrame(h header, data []byte) []byte {
	buf := make([]byte, 0, 4+headerSize+len(data))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(headerSize+len(data)))
	buf = binary.LittleEndian.AppendUint32(buf, h.kind)
	buf = binary.LittleEndian.AppendUint64(buf, h.txnID)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(h.target))
	buf = binary.LittleEndian.AppendUint32(buf, h.code)
	buf = binary.LittleEndian.AppendUint32(buf, h.flags)
	return append(buf, data...)
}

// parsePayload splits a frame payload into header and parcel data. The
// caller guarantees len(p) >= headerSize.
func parsePayload(p []byte) (header, []byte) {
	h := header{
		kind:   binary.LittleEndian.Uint32(p[0:]),
		txnID:  binary.LittleEndian.Uint64(p[4:]),
		target: Handle(binary.LittleEndian.Uint64(p[12:])),
		code:   binary.LittleEndian.Uint32(p[20:]),
		flags:  binary.LittleEndian.Uint32(p[24:]),
	}
	return h, p[headerSize:]
}
