// Package sse assembles raw byte chunks from a streaming HTTP response body
// into complete Server-Sent-Events blocks. Chunk boundaries are arbitrary:
// a multi-byte UTF-8 character or an event delimiter may be split across any
// number of reads.
package sse

import (
	"bytes"
	"io"
	"unicode/utf8"

	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/logging"
)

const readBufferSize = 4096

// Assembler turns an arbitrary-chunked byte stream into blank-line-delimited
// SSE event blocks. It is owned by a single stream session and is not safe
// for concurrent use.
type Assembler struct {
	reader  io.Reader
	readBuf []byte

	// pending holds a truncated multi-byte sequence carried across reads,
	// bounded by maxPending; text holds decoded output not yet split into
	// events.
	pending    []byte
	text       []byte
	maxPending int

	events  []string
	readErr error
}

// NewAssembler wraps a reader with the default held-back tail bound of one
// UTF-8 encoding unit.
func NewAssembler(reader io.Reader) *Assembler {
	return NewAssemblerSize(reader, utf8.UTFMax)
}

// NewAssemblerSize wraps a reader with an explicit bound on how many
// undecoded trailing bytes may be held back between reads. Tails growing
// past the bound are flushed with undecodable bytes replaced.
func NewAssemblerSize(reader io.Reader, maxPending int) *Assembler {
	if maxPending <= 0 {
		maxPending = utf8.UTFMax
	}
	return &Assembler{
		reader:     reader,
		readBuf:    make([]byte, readBufferSize),
		maxPending: maxPending,
	}
}

// Next returns the next complete event block with its trailing blank-line
// delimiter removed. It returns io.EOF once the stream is exhausted; a
// dangling partial event at end of stream is discarded, never synthesized.
func (a *Assembler) Next() (string, error) {
	for {
		if len(a.events) > 0 {
			event := a.events[0]
			a.events = a.events[1:]
			return event, nil
		}
		if a.readErr != nil {
			return "", a.readErr
		}
		a.fill()
	}
}

// fill performs one read and advances the decode/split pipeline.
func (a *Assembler) fill() {
	n, err := a.reader.Read(a.readBuf)
	if n > 0 {
		a.pending = append(a.pending, a.readBuf[:n]...)
		a.flushDecodable()
		a.splitEvents()
	}
	if err == nil {
		return
	}
	if err == io.EOF {
		if len(a.pending) > 0 {
			logging.Debug("sse", "discarding %d undecoded trailing bytes at end of stream", len(a.pending))
			a.pending = nil
		}
		if len(a.text) > 0 {
			logging.Debug("sse", "discarding dangling partial event (%d bytes) at end of stream", len(a.text))
			a.text = nil
		}
	}
	a.readErr = err
}

// flushDecodable moves everything decodable from pending into the text
// buffer. Only a truncated multi-byte sequence at the tail is held back; a
// tail past the configured bound is flushed leniently with undecodable
// bytes replaced.
func (a *Assembler) flushDecodable() {
	tail := trailingIncomplete(a.pending)
	if tail > a.maxPending {
		tail = 0
	}
	head := a.pending[:len(a.pending)-tail]
	if len(head) > 0 {
		if !utf8.Valid(head) {
			logging.Debug("sse", "replacing undecodable bytes in stream chunk")
			head = bytes.ToValidUTF8(head, []byte("�"))
		}
		a.text = append(a.text, head...)
	}
	if tail > 0 {
		a.pending = append(a.pending[:0], a.pending[len(a.pending)-tail:]...)
		return
	}
	a.pending = a.pending[:0]
}

// splitEvents cuts complete blank-line-delimited events off the front of the
// text buffer. Empty events (consecutive delimiters) are dropped.
func (a *Assembler) splitEvents() {
	for {
		block, rest, found := cutDelimiter(a.text)
		if !found {
			return
		}
		if len(block) > 0 {
			a.events = append(a.events, string(block))
		}
		a.text = rest
	}
}

// cutDelimiter finds the earliest event delimiter, either "\n\n" or
// "\r\n\r\n", and cuts the buffer around it.
func cutDelimiter(buffer []byte) (block []byte, rest []byte, found bool) {
	lf := bytes.Index(buffer, []byte("\n\n"))
	crlf := bytes.Index(buffer, []byte("\r\n\r\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return buffer[:crlf], buffer[crlf+4:], true
	case lf >= 0:
		return buffer[:lf], buffer[lf+2:], true
	default:
		return nil, buffer, false
	}
}

// trailingIncomplete returns the length of a truncated multi-byte UTF-8
// sequence at the end of the buffer, or zero when the buffer ends on a rune
// boundary or with bytes that cannot be completed by further input.
func trailingIncomplete(buffer []byte) int {
	end := len(buffer)
	start := end - 1
	for start >= 0 && end-start <= utf8.UTFMax && !utf8.RuneStart(buffer[start]) {
		start--
	}
	if start < 0 || end-start > utf8.UTFMax {
		return 0
	}

	lead := buffer[start]
	var width int
	switch {
	case lead < utf8.RuneSelf:
		width = 1
	case lead&0xE0 == 0xC0:
		width = 2
	case lead&0xF0 == 0xE0:
		width = 3
	case lead&0xF8 == 0xF0:
		width = 4
	default:
		return 0
	}
	if end-start >= width {
		return 0
	}
	for _, c := range buffer[start+1 : end] {
		if c&0xC0 != 0x80 {
			return 0
		}
	}
	return end - start
}
