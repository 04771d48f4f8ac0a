package ipc

import "encoding/binary"

// Wire layout for the handshake header and message frame header. All
// multi-byte integers are big-endian.
const (
	handshakeLen = 8
	frameHdrLen  = 1 + 8 // type byte + big-endian u64 length

	frameTypeMsg = 0x01
)

// handshake magic bytes, at positions 0,1,2,3; positions 6,7 are
// reserved and must be zero.
var (
	magicPrefix = [4]byte{0x00, 'S', 'P', 0x00}
)

// buildHandshake writes the 8-byte handshake header for the given
// local protocol ID into buf (which must be at least handshakeLen
// bytes).
func buildHandshake(buf []byte, proto uint16) {
	buf[0] = magicPrefix[0]
	buf[1] = magicPrefix[1]
	buf[2] = magicPrefix[2]
	buf[3] = magicPrefix[3]
	binary.BigEndian.PutUint16(buf[4:6], proto)
	buf[6] = 0
	buf[7] = 0
}

// validateHandshake checks the received 8-byte header against the
// fixed constant bytes and, on success, returns the decoded peer
// protocol ID.
func validateHandshake(buf []byte) (peer uint16, err error) {
	if buf[0] != magicPrefix[0] || buf[1] != magicPrefix[1] ||
		buf[2] != magicPrefix[2] || buf[3] != magicPrefix[3] ||
		buf[6] != 0 || buf[7] != 0 {
		return 0, ErrProtocol
	}
	return binary.BigEndian.Uint16(buf[4:6]), nil
}

// buildFrameHeader writes the 9-byte message frame header: type byte
// 0x01 followed by a big-endian u64 total length.
func buildFrameHeader(buf []byte, length uint64) {
	buf[0] = frameTypeMsg
	binary.BigEndian.PutUint64(buf[1:frameHdrLen], length)
}

// parseFrameHeader validates the type byte and decodes the length
// field of a received 9-byte frame header.
func parseFrameHeader(buf []byte) (length uint64, err error) {
	if buf[0] != frameTypeMsg {
		return 0, ErrProtocol
	}
	return binary.BigEndian.Uint64(buf[1:frameHdrLen]), nil
}
