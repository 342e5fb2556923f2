// Package diagnostics carries STATS telemetry from a sender node to a
// workstation over USB/serial. It is strictly a side channel: nothing
// here touches the radio wire format owned by wireframe, and a node
// with no Reporter attached behaves exactly as if this package did not
// exist (SPEC_FULL §4.5).
//
// Framing reuses the Klipper-protocol primitives this codebase already
// carries — CRC16 and the VLQ varint codec — rather than inventing a
// third wire format for one more byte stream. It deliberately does NOT
// reuse the Klipper transport's own sync-byte-delimited framing:
// that scheme scans for a sync byte at both ends of a message, which is
// unsafe here since an arbitrary VLQ/CRC payload byte can coincidentally
// equal the sync byte. Instead frames are length-prefixed: a leading
// length byte says exactly how many body+CRC bytes follow, and the
// trailing sync byte is only a sanity check, never the thing Monitor
// scans for.
package diagnostics

import (
	"bufio"
	"fmt"
	"io"

	"radioflash/protocol"
	"radioflash/wireframe"
)

const syncByte = 0x7E

// Frame layout: length byte (counts itself plus the VLQ body, not the
// CRC or the trailing sync), VLQ(recID), VLQ(nakRounds),
// VLQ(elapsedMS), VLQ(packetsSent), crc16-hi, crc16-lo, sync. The CRC
// covers the length byte and the VLQ body.
func encodeStatsMessage(s wireframe.Stats) []byte {
	out := protocol.NewScratchOutput()
	out.Output([]byte{0}) // length placeholder, patched below
	protocol.EncodeVLQUint(out, uint32(s.RecID))
	protocol.EncodeVLQUint(out, uint32(s.NAKRounds))
	protocol.EncodeVLQUint(out, s.ElapsedMS)
	protocol.EncodeVLQUint(out, uint32(s.PacketsSent))

	msgLen := out.CurPosition()
	out.Update(0, byte(msgLen))

	crc := protocol.CRC16(out.DataSince(0))
	out.Output([]byte{byte(crc >> 8), byte(crc)})
	out.Output([]byte{syncByte})

	return append([]byte(nil), out.Result()...)
}

// decodeStatsMessage parses one length-prefixed frame (without its
// trailing sync byte, already stripped by the caller).
func decodeStatsMessage(frame []byte) (wireframe.Stats, error) {
	if len(frame) < 1 {
		return wireframe.Stats{}, fmt.Errorf("diagnostics: empty frame")
	}
	msgLen := int(frame[0])
	if msgLen < 1 || msgLen+2 > len(frame) {
		return wireframe.Stats{}, fmt.Errorf("diagnostics: bad length byte %d for %d-byte frame", msgLen, len(frame))
	}

	body := frame[:msgLen]
	gotCRC := uint16(frame[msgLen])<<8 | uint16(frame[msgLen+1])
	if protocol.CRC16(body) != gotCRC {
		return wireframe.Stats{}, fmt.Errorf("diagnostics: crc mismatch")
	}

	rest := body[1:]
	recID, err := protocol.DecodeVLQUint(&rest)
	if err != nil {
		return wireframe.Stats{}, err
	}
	nakRounds, err := protocol.DecodeVLQUint(&rest)
	if err != nil {
		return wireframe.Stats{}, err
	}
	elapsed, err := protocol.DecodeVLQUint(&rest)
	if err != nil {
		return wireframe.Stats{}, err
	}
	packetsSent, err := protocol.DecodeVLQUint(&rest)
	if err != nil {
		return wireframe.Stats{}, err
	}
	return wireframe.Stats{
		RecID:       uint16(recID),
		NAKRounds:   uint16(nakRounds),
		ElapsedMS:   elapsed,
		PacketsSent: uint16(packetsSent),
	}, nil
}

// SerialReporter implements sender.Reporter by writing one framed
// message per STATS frame to an io.Writer (normally a serial.Port).
// Errors are swallowed: a wedged or unplugged diagnostics link must
// never block or fail a firmware flash.
type SerialReporter struct {
	w io.Writer
}

// NewSerialReporter wraps w as a sender.Reporter.
func NewSerialReporter(w io.Writer) *SerialReporter {
	return &SerialReporter{w: w}
}

// Report implements sender.Reporter.
func (s *SerialReporter) Report(stats wireframe.Stats) {
	_, _ = s.w.Write(encodeStatsMessage(stats))
}

// maxMessageLen bounds the length byte so a desynchronized reader
// cannot be made to block waiting for an implausibly large frame.
const maxMessageLen = 32

// Monitor reads framed STATS messages from r and hands each decoded
// Stats to onStats. Framing is length-prefixed (see encodeStatsMessage);
// unlike sync-delimited framing this needs no escaping, since the
// length byte alone tells Monitor how many body+CRC bytes follow. A
// length byte outside the plausible range, or a frame whose expected
// trailing sync byte doesn't show up where expected, means the stream
// is desynchronized: Monitor drops one byte and tries again from
// there. Monitor runs until r returns an error (including io.EOF),
// which it returns to the caller.
func Monitor(r io.Reader, onStats func(wireframe.Stats)) error {
	reader := bufio.NewReader(r)
	for {
		lenByte, err := reader.ReadByte()
		if err != nil {
			return err
		}
		msgLen := int(lenByte)
		if msgLen < 1 || msgLen > maxMessageLen {
			continue
		}

		rest := make([]byte, msgLen-1+2+1) // body tail + crc16 + sync
		if _, err := io.ReadFull(reader, rest); err != nil {
			return err
		}
		if rest[len(rest)-1] != syncByte {
			continue
		}

		frame := append([]byte{lenByte}, rest[:len(rest)-1]...)
		stats, decErr := decodeStatsMessage(frame)
		if decErr != nil {
			continue
		}
		onStats(stats)
	}
}
