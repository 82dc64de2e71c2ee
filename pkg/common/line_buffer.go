package common

import (
	"bytes"
	"io"
	"iter"
	"sync"
)

// LineBuffer keeps the most recent lines written to it. Content beyond
// maxLineLength is dropped until the next line starts.
type LineBuffer struct {
	maxLineLength int

	mutex   sync.Mutex
	lines   [][]byte
	next    int
	full    bool
	partial []byte
}

func NewLineBuffer(maxLines, maxLineLength int) *LineBuffer {
	return &LineBuffer{
		maxLineLength: maxLineLength,
		lines:         make([][]byte, maxLines),
	}
}

func (this *LineBuffer) Write(p []byte) (int, error) {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	rest := p
	for len(rest) > 0 {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			this.appendPartial(rest)
			break
		}
		this.appendPartial(rest[:i])
		this.push()
		rest = rest[i+1:]
	}
	return len(p), nil
}

func (this *LineBuffer) appendPartial(p []byte) {
	if free := this.maxLineLength - len(this.partial); free < len(p) {
		p = p[:max(free, 0)]
	}
	this.partial = append(this.partial, p...)
}

func (this *LineBuffer) push() {
	if len(this.lines) == 0 {
		this.partial = this.partial[:0]
		return
	}
	this.lines[this.next] = bytes.Clone(this.partial)
	this.partial = this.partial[:0]
	this.next++
	if this.next == len(this.lines) {
		this.next = 0
		this.full = true
	}
}

func (this *LineBuffer) Len() int {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	if this.full {
		return len(this.lines)
	}
	return this.next
}

// Lines yields the complete lines, oldest first. A line which is still
// being written is not part of it.
func (this *LineBuffer) Lines() iter.Seq[[]byte] {
	this.mutex.Lock()
	var result [][]byte
	if this.full {
		result = append(result, this.lines[this.next:]...)
	}
	result = append(result, this.lines[:this.next]...)
	this.mutex.Unlock()

	return Iter(result...)
}

func (this *LineBuffer) WriteTo(w io.Writer) (n int64, err error) {
	for line := range this.Lines() {
		wn, wErr := w.Write(append(bytes.Clone(line), '\n'))
		n += int64(wn)
		if wErr != nil {
			return n, wErr
		}
	}
	return n, nil
}
