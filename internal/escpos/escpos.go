// Package escpos builds print jobs for 58mm thermal receipt printers: a
// token builder over the ESC/POS control set, fixed-width layout helpers and
// the two job encoders the shop prints (kitchen ticket and customer bill).
//
// Encoding is pure string construction; nothing here talks to a printer.
package escpos

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// Control sequences understood by the printer firmware.
const (
	ESC = "\x1b"
	GS  = "\x1d"

	Initialize      = ESC + "@"
	AlignLeftCode   = ESC + "a\x00"
	AlignCenterCode = ESC + "a\x01"
	AlignRightCode  = ESC + "a\x02"
	BoldOn          = ESC + "E\x01"
	BoldOff         = ESC + "E\x00"
	Cut             = GS + "V\x41\x00"
)

// LineWidth is the number of columns on a 58mm roll in the default font.
const LineWidth = 32

// Divider is a full-width rule.
var Divider = strings.Repeat("-", LineWidth) + "\n"

// LightDivider separates items on the kitchen ticket.
var LightDivider = strings.Repeat("- ", LineWidth/2) + "\n"

// Alignment is a justification mode set with ESC a.
type Alignment byte

const (
	Left Alignment = iota
	Center
	Right
)

func (a Alignment) code() string {
	switch a {
	case Center:
		return AlignCenterCode
	case Right:
		return AlignRightCode
	}
	return AlignLeftCode
}

// Feed returns the sequence that feeds n lines.
func Feed(n byte) string {
	return ESC + "d" + string([]byte{n})
}

// CenterText pads s with leading spaces so it sits in the middle of the line,
// followed by a newline. Text wider than the line is left as is.
func CenterText(s string) string {
	pad := (LineWidth - runewidth.StringWidth(s)) / 2
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat(" ", pad) + s + "\n"
}

// Pair lays key and value on one line with value's last character in the
// last column. When they do not fit with at least one space between them the
// line falls back to key + " " + value and the printer wraps it.
func Pair(key, value string) string {
	spaces := LineWidth - runewidth.StringWidth(key) - runewidth.StringWidth(value)
	if spaces < 1 {
		return key + " " + value + "\n"
	}
	return key + strings.Repeat(" ", spaces) + value + "\n"
}
