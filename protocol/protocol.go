// Package protocol provides small wire-format primitives (a CRC16, a
// VLQ varint codec, and a scratch output buffer) shared by the
// diagnostics telemetry link. It started life as the teacher
// firmware's Klipper transport layer; the command-dispatch transport
// itself was judged a mismatch for a one-way telemetry stream and was
// not carried over (see DESIGN.md) — only these framing primitives
// were kept.
package protocol

// MessageMax bounds ScratchOutput's backing array.
const MessageMax = 512
