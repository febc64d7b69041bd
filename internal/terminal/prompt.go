// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package terminal reads interactive input and cleans it off the screen.
package terminal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"atomicgo.dev/cursor"
	"golang.org/x/term"
)

// Prompter reads answers from an input stream.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
	tty bool
}

// NewPrompter reads from stdin and writes prompts to stdout.
func NewPrompter() *Prompter {
	fd := int(os.Stdin.Fd())
	return &Prompter{in: bufio.NewReader(os.Stdin), out: os.Stdout, fd: fd, tty: term.IsTerminal(fd)}
}

// NewPrompterFrom reads from r. Secrets are read as plain lines.
func NewPrompterFrom(r io.Reader, w io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(r), out: w}
}

// Line prints prompt and returns the trimmed answer. The prompt and answer
// are cleared from a terminal afterwards.
func (p *Prompter) Line(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	s, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	s = strings.TrimSpace(s)
	if p.tty {
		ClearPreviousLines(len(prompt) + len(s))
	}
	return s, nil
}

// Secret is Line without echo when attached to a terminal.
func (p *Prompter) Secret(prompt string) (string, error) {
	if !p.tty {
		return p.Line(prompt)
	}
	fmt.Fprint(p.out, prompt)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	ClearPreviousLines(len(prompt))
	return strings.TrimSpace(string(b)), nil
}

// ClearPreviousLines removes textLength characters of wrapped output plus the
// line the cursor moved to after Enter.
func ClearPreviousLines(textLength int) {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	lines := (textLength + width - 1) / width
	if lines < 1 {
		lines = 1
	}
	cursor.ClearLinesUp(lines)
	cursor.StartOfLine()
}
