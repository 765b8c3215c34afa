/*
 * RSX - Command parser.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package parser implements the interactive console's command language:
// inspecting FIFO/register/ZCULL state, single-stepping, and repositioning
// the get pointer, standing in for the guest CPU this module does not
// model.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-rsx/rsxcore/rsx/backend"
	"github.com/go-rsx/rsxcore/rsx/capture"
	"github.com/go-rsx/rsxcore/rsx/fifo"
	"github.com/go-rsx/rsxcore/rsx/register"
	"github.com/go-rsx/rsxcore/rsx/zcull"
)

// Session is the console's view of a running interpreter.
type Session struct {
	Interp  *fifo.Interpreter
	Regs    *register.File
	Zcull   *zcull.Controller
	Capture *capture.Sink
	Backend backend.Backend
}

type cmd struct {
	name     string
	min      int
	process  func(*cmdLine, *Session) (bool, error)
	complete func(*cmdLine) []string
}

type cmdLine struct {
	line string
	pos  int
}

var cmdList = []cmd{
	{name: "quit", min: 1, process: quit},
	{name: "stop", min: 2, process: stop},
	{name: "start", min: 3, process: start},
	{name: "continue", min: 4, process: cont},
	{name: "step", min: 2, process: step},
	{name: "show", min: 2, process: show, complete: showComplete},
	{name: "sync", min: 2, process: syncReports},
	{name: "inject", min: 2, process: inject},
	{name: "register", min: 3, process: showRegister},
	{name: "capture", min: 3, process: captureCmd, complete: captureComplete},
	{name: "snapshot", min: 2, process: snapshot},
}

// ProcessCommand executes one command line against sess.
func ProcessCommand(commandLine string, sess *Session) (bool, error) {
	line := cmdLine{line: commandLine}
	name := line.getWord()

	match := matchList(name)
	switch {
	case len(match) == 0:
		return false, errors.New("command not found: " + name)
	case len(match) > 1:
		return false, errors.New("ambiguous command: " + name)
	}
	return match[0].process(&line, sess)
}

// CompleteCmd returns completion candidates for line editing.
func CompleteCmd(commandLine string) []string {
	line := cmdLine{line: commandLine}
	name := line.getWord()

	if !line.isEOL() && line.line[line.pos-1] == ' ' {
		line.skipSpace()
		match := matchList(name)
		if len(match) != 1 || match[0].complete == nil {
			return nil
		}
		return match[0].complete(&line)
	}

	match := matchList(name)
	out := make([]string, len(match))
	for i, m := range match {
		out[i] = m.name
	}
	return out
}

func matchCommand(c cmd, name string) bool {
	if len(name) > len(c.name) {
		return false
	}
	for i := 0; i < len(name); i++ {
		if c.name[i] != name[i] {
			return false
		}
	}
	return len(name) >= c.min
}

func matchList(name string) []cmd {
	if name == "" {
		return nil
	}
	var out []cmd
	for _, c := range cmdList {
		if matchCommand(c, name) {
			out = append(out, c)
		}
	}
	return out
}

func (l *cmdLine) skipSpace() {
	for l.pos < len(l.line) && unicode.IsSpace(rune(l.line[l.pos])) {
		l.pos++
	}
}

func (l *cmdLine) isEOL() bool {
	return l.pos >= len(l.line) || l.line[l.pos] == '#'
}

func (l *cmdLine) getWord() string {
	l.skipSpace()
	start := l.pos
	for l.pos < len(l.line) && !unicode.IsSpace(rune(l.line[l.pos])) && l.line[l.pos] != '#' {
		l.pos++
	}
	return strings.ToLower(l.line[start:l.pos])
}

func quit(_ *cmdLine, _ *Session) (bool, error) { return true, nil }

func stop(_ *cmdLine, s *Session) (bool, error) {
	s.Interp.Stop()
	return false, nil
}

func start(_ *cmdLine, s *Session) (bool, error) {
	s.Interp.Start()
	return false, nil
}

func cont(_ *cmdLine, s *Session) (bool, error) {
	s.Interp.Start()
	return false, nil
}

func step(_ *cmdLine, s *Session) (bool, error) {
	if err := s.Interp.Step(); err != nil {
		return false, err
	}
	fmt.Printf("get=%#x\n", s.Interp.Get())
	return false, nil
}

func show(l *cmdLine, s *Session) (bool, error) {
	what := l.getWord()
	switch what {
	case "fifo":
		fmt.Printf("get=%#x\n", s.Interp.Get())
	case "zcull":
		fmt.Printf("active=%v pending=%d\n", s.Zcull.Active(), s.Zcull.PendingCount())
	default:
		return false, fmt.Errorf("show: unknown item %q", what)
	}
	return false, nil
}

func showComplete(_ *cmdLine) []string {
	return []string{"fifo", "zcull"}
}

func captureCmd(l *cmdLine, s *Session) (bool, error) {
	switch what := l.getWord(); what {
	case "on":
		s.Capture.Start()
	case "off":
		s.Capture.Stop()
		fmt.Printf("captured %d draws, %d register writes\n", len(s.Capture.Draws), len(s.Capture.Trace))
	default:
		return false, fmt.Errorf("capture: want on or off, got %q", what)
	}
	return false, nil
}

func captureComplete(_ *cmdLine) []string {
	return []string{"on", "off"}
}

// snapshot asks the backend to copy its render targets and depth/stencil
// buffer back into guest memory.
func snapshot(_ *cmdLine, s *Session) (bool, error) {
	s.Backend.CopyRenderTargetsToMemory()
	s.Backend.CopyDepthStencilBufferToMemory()
	return false, nil
}

func syncReports(_ *cmdLine, s *Session) (bool, error) {
	s.Zcull.Sync()
	fmt.Printf("pending=%d\n", s.Zcull.PendingCount())
	return false, nil
}

func showRegister(l *cmdLine, s *Session) (bool, error) {
	word := l.getWord()
	reg, err := strconv.ParseUint(word, 0, 32)
	if err != nil {
		return false, fmt.Errorf("register: bad register id %q: %w", word, err)
	}
	fmt.Printf("reg[%#x] = %#x\n", reg, s.Regs.Get(uint32(reg)))
	return false, nil
}

func inject(l *cmdLine, s *Session) (bool, error) {
	word := l.getWord()
	addr, err := strconv.ParseUint(word, 0, 32)
	if err != nil {
		return false, fmt.Errorf("inject: bad address %q: %w", word, err)
	}
	s.Interp.SetGet(uint32(addr))
	return false, nil
}
