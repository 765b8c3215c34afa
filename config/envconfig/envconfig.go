/*
 * RSX - Configuration file reader.
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

// Package envconfig reads the Environment configuration from a small
// line-oriented `key value` config file: #-comments, quoted strings, and
// a flat option set.
package envconfig

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/xyproto/env/v2"
)

// Environment holds the interpreter's tunable options.
type Environment struct {
	ThreadSchedulerEnabled  bool
	FrameSkipEnabled        bool
	ConsecutiveFramesToDraw uint32
	ConsecutiveFramesToSkip uint32
	DisableZcullQueries     bool
	MinScalableDimension    uint32
	ResolutionScale         float32
}

// Default returns the Environment's baseline values.
func Default() Environment {
	return Environment{
		ThreadSchedulerEnabled:  true,
		ConsecutiveFramesToDraw: 1,
		MinScalableDimension:    16,
		ResolutionScale:         1.0,
	}
}

// line is the scanner cursor over one config-file line.
type line struct {
	text string
	pos  int
}

func (l *line) skipSpace() {
	for l.pos < len(l.text) && (l.text[l.pos] == ' ' || l.text[l.pos] == '\t') {
		l.pos++
	}
}

func (l *line) eol() bool {
	return l.pos >= len(l.text)
}

// token reads the next whitespace-delimited field, honoring a '"'-quoted
// string.
func (l *line) token() string {
	l.skipSpace()
	if l.eol() {
		return ""
	}
	if l.text[l.pos] == '"' {
		start := l.pos + 1
		end := strings.IndexByte(l.text[start:], '"')
		if end < 0 {
			tok := l.text[start:]
			l.pos = len(l.text)
			return tok
		}
		l.pos = start + end + 1
		return l.text[start : start+end]
	}
	start := l.pos
	for l.pos < len(l.text) && l.text[l.pos] != ' ' && l.text[l.pos] != '\t' {
		l.pos++
	}
	return l.text[start:l.pos]
}

// Load parses an Environment out of r, starting from defaults for any
// option the file doesn't mention.
func Load(r io.Reader) (Environment, error) {
	env := Default()
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		if idx := strings.IndexByte(raw, '#'); idx >= 0 {
			raw = raw[:idx]
		}
		l := &line{text: raw}
		key := l.token()
		if key == "" {
			continue
		}
		value := l.token()
		if err := apply(&env, key, value); err != nil {
			return env, fmt.Errorf("envconfig: line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return env, err
	}
	return env, nil
}

func apply(e *Environment, key, value string) error {
	switch strings.ToLower(key) {
	case "thread_scheduler_enabled":
		return setBool(&e.ThreadSchedulerEnabled, value)
	case "frame_skip_enabled":
		return setBool(&e.FrameSkipEnabled, value)
	case "consecutive_frames_to_draw":
		return setUint32(&e.ConsecutiveFramesToDraw, value)
	case "consecutive_frames_to_skip":
		return setUint32(&e.ConsecutiveFramesToSkip, value)
	case "disable_zcull_queries":
		return setBool(&e.DisableZcullQueries, value)
	case "min_scalable_dimension":
		return setUint32(&e.MinScalableDimension, value)
	case "resolution_scale":
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return err
		}
		e.ResolutionScale = float32(f)
		return nil
	default:
		return fmt.Errorf("unknown option %q", key)
	}
}

func setBool(dst *bool, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func setUint32(dst *uint32, value string) error {
	n, err := strconv.ParseUint(value, 0, 32)
	if err != nil {
		return err
	}
	*dst = uint32(n)
	return nil
}

// LoadFile opens path and parses it as an Environment.
func LoadFile(path string) (Environment, error) {
	f, err := os.Open(path)
	if err != nil {
		return Default(), err
	}
	defer f.Close()
	return Load(f)
}

// ConfigPath resolves the config file path, letting RSX_CONFIG override
// the flag-supplied default.
func ConfigPath(flagValue string) string {
	return env.Str("RSX_CONFIG", flagValue)
}

// LogPath resolves the log file destination, letting RSX_LOG override the
// flag-supplied default.
func LogPath(flagValue string) string {
	return env.Str("RSX_LOG", flagValue)
}
