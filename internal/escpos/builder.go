package escpos

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

type token struct {
	ctrl     bool
	setAlign bool
	align    Alignment
	s        string
}

// Builder accumulates a print job as an ordered list of text and control
// tokens. Methods return the builder so calls chain.
type Builder struct {
	tokens []token
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) control(s string) *Builder {
	b.tokens = append(b.tokens, token{ctrl: true, s: s})
	return b
}

// Init resets the printer to its power-on state, which includes left
// alignment.
func (b *Builder) Init() *Builder {
	b.tokens = append(b.tokens, token{ctrl: true, setAlign: true, align: Left, s: Initialize})
	return b
}

// Align switches justification for lines that start after it.
func (b *Builder) Align(a Alignment) *Builder {
	b.tokens = append(b.tokens, token{ctrl: true, setAlign: true, align: a, s: a.code()})
	return b
}

// Bold toggles emphasis.
func (b *Builder) Bold(on bool) *Builder {
	if on {
		return b.control(BoldOn)
	}
	return b.control(BoldOff)
}

// Feed advances the paper n lines.
func (b *Builder) Feed(n byte) *Builder { return b.control(Feed(n)) }

// Cut cuts the paper.
func (b *Builder) Cut() *Builder { return b.control(Cut) }

// Text appends s verbatim.
func (b *Builder) Text(s string) *Builder {
	b.tokens = append(b.tokens, token{s: s})
	return b
}

// Line appends s and a newline.
func (b *Builder) Line(s string) *Builder { return b.Text(s + "\n") }

// BoldLine appends s in bold followed by a newline.
func (b *Builder) BoldLine(s string) *Builder {
	return b.Bold(true).Text(s).Bold(false).Text("\n")
}

// Pair appends a key/value line.
func (b *Builder) Pair(key, value string) *Builder { return b.Text(Pair(key, value)) }

// Divider appends a full-width rule.
func (b *Builder) Divider() *Builder { return b.Text(Divider) }

// LightDivider appends a dashed separator.
func (b *Builder) LightDivider() *Builder { return b.Text(LightDivider) }

// String returns the job with control codes.
func (b *Builder) String() string {
	var sb strings.Builder
	for _, t := range b.tokens {
		sb.WriteString(t.s)
	}
	return sb.String()
}

// Bytes returns the job as sent to the printer.
func (b *Builder) Bytes() []byte {
	return []byte(b.String())
}

// Plain returns the job's text with every control code dropped.
func (b *Builder) Plain() string {
	var sb strings.Builder
	for _, t := range b.tokens {
		if !t.ctrl {
			sb.WriteString(t.s)
		}
	}
	return sb.String()
}

// Preview renders the job as the printer would lay it out on a LineWidth
// column roll. The alignment in effect when a line's first character arrives
// applies to the whole line, as on the device.
func (b *Builder) Preview() string {
	var (
		out       strings.Builder
		line      strings.Builder
		cur       = Left
		lineAlign = Left
		started   bool
	)
	flush := func() {
		s := line.String()
		pad := 0
		switch w := runewidth.StringWidth(s); lineAlign {
		case Center:
			pad = (LineWidth - w) / 2
		case Right:
			pad = LineWidth - w
		}
		if pad > 0 {
			out.WriteString(strings.Repeat(" ", pad))
		}
		out.WriteString(s)
		out.WriteByte('\n')
		line.Reset()
		started = false
	}

	for _, t := range b.tokens {
		if t.ctrl {
			if t.setAlign {
				cur = t.align
			}
			continue
		}
		for _, r := range t.s {
			if r == '\n' {
				if !started {
					lineAlign = cur
				}
				flush()
				continue
			}
			if !started {
				lineAlign = cur
				started = true
			}
			line.WriteRune(r)
		}
	}
	if started {
		flush()
	}
	return out.String()
}
