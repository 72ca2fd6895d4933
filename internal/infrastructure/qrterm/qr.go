// Package qrterm renders QR codes with half-block characters so a pairing URL
// can be scanned straight off the terminal.
package qrterm

import (
	"fmt"
	"io"
	"strings"

	sgr "github.com/foize/go.sgr"
	"rsc.io/qr"
)

// indexed by top pixel (bit 0) and bottom pixel (bit 1)
var halfBlocks = [4]rune{' ', '▀', '▄', '█'}

const quietZone = 2

// Render returns the code for text, two modules per character row.
func Render(text string) (string, error) {
	code, err := qr.Encode(text, qr.L)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}

	black := func(x, y int) bool {
		if x < 0 || y < 0 || x >= code.Size || y >= code.Size {
			return false
		}
		return code.Black(x, y)
	}

	var sb strings.Builder
	for y := -quietZone; y < code.Size+quietZone; y += 2 {
		sb.WriteString(sgr.FgWhite + sgr.BgBlack)
		for x := -quietZone; x < code.Size+quietZone; x++ {
			var idx int
			// inverted so dark terminals show dark modules on a light field
			if !black(x, y) {
				idx |= 1
			}
			if !black(x, y+1) {
				idx |= 2
			}
			sb.WriteRune(halfBlocks[idx])
		}
		sb.WriteString(sgr.Reset)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// Print writes the code followed by the URL in plain text.
func Print(w io.Writer, url string) error {
	art, err := Render(url)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n  %s\n", art, url)
	return err
}
