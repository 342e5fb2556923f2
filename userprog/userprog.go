// Package userprog supplies the embedded payload image that
// radioflash-send broadcasts; radioflash-send has no option to send a
// different image. It is trivial glue by design: the protocol has no
// opinion on what the transferred bytes mean.
package userprog

import _ "embed"

//go:embed default.bin
var defaultImage []byte

// Default returns the built-in sample payload.
func Default() []byte {
	return append([]byte(nil), defaultImage...)
}
