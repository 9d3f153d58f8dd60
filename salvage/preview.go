package salvage

import (
	"fmt"
	"strings"
)

// Preview renders up to n bytes as text: printable ASCII and tabs as is,
// everything else as <0xNN>.
func Preview(b []byte, n int) string {
	if n > len(b) {
		n = len(b)
	}
	var sb strings.Builder
	for _, c := range b[:n] {
		if (c >= 32 && c < 127) || c == '\t' {
			sb.WriteByte(c)
		} else {
			fmt.Fprintf(&sb, "<0x%02x>", c)
		}
	}
	return sb.String()
}
