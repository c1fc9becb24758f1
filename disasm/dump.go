package disasm

import (
	"bytes"
	"fmt"
	"strings"
)

// DumpWidth is the number of bytes per hex dump row.
const DumpWidth = 16

// HexDump renders data as rows of hex bytes. The byte at mark, if any, is
// shown in reverse video. Runs of zero rows collapse into a single "*".
func HexDump(data []byte, mark int) string {
	out := &strings.Builder{}
	zz := make([]byte, DumpWidth)
	for i := 0; i < len(data); {
		if i%DumpWidth == 0 {
			if i+DumpWidth <= len(data) && bytes.Equal(data[i:i+DumpWidth], zz) && !(mark >= i && mark < i+DumpWidth) {
				fmt.Fprintf(out, "*\n")
				for ; i+DumpWidth <= len(data) && bytes.Equal(data[i:i+DumpWidth], zz); i += DumpWidth {
				}
				continue
			}
			fmt.Fprintf(out, "0x%04X:", i)
		}
		if i%(DumpWidth/2) == 0 {
			fmt.Fprintf(out, " ")
		}
		if i == mark {
			fmt.Fprintf(out, " \033[7m%02x\033[27m", data[i])
		} else {
			fmt.Fprintf(out, " %02x", data[i])
		}
		i++
		if i%DumpWidth == 0 || i == len(data) {
			fmt.Fprintf(out, "\n")
		}
	}
	return out.String()
}
