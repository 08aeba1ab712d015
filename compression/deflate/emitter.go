/*
   Copyright The Ungzip Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package deflate

import (
	"fmt"
	"io"
)

// pageSize is how many decoded bytes are collected before the sink sees them.
const pageSize = 8192

// emitter routes every decoded byte through the sliding window and a
// fixed-size output page. The page is flushed to the sink when full and
// once more at end of stream; the decoder never reads it back.
type emitter struct {
	win  window
	page [pageSize]byte
	n    int
	sink io.Writer
}

func newEmitter(sink io.Writer) *emitter {
	return &emitter{sink: sink}
}

func (e *emitter) emit(b byte) error {
	e.win.push(b)
	e.page[e.n] = b
	e.n++
	if e.n == pageSize {
		return e.flush()
	}
	return nil
}

func (e *emitter) emitAll(p []byte) error {
	for _, b := range p {
		if err := e.emit(b); err != nil {
			return err
		}
	}
	return nil
}

// copyFromWindow emits length bytes starting distance bytes behind the
// window's write index. When length exceeds distance the read cursor wraps
// back to the start of the copy once it reaches the write index, cyclically
// repeating the pattern just written; the bytes are staged in a scratch
// buffer first so the writes cannot disturb the reads.
func (e *emitter) copyFromWindow(length, distance int) error {
	start, err := e.win.sourceIndex(distance)
	if err != nil {
		return err
	}

	var scratch [maxMatchLength]byte
	src := start
	for i := 0; i < length; i++ {
		scratch[i] = e.win.buf[src]
		src = (src + 1) % windowSize
		if src == e.win.pos {
			src = start
		}
	}
	return e.emitAll(scratch[:length])
}

// flush hands the buffered page to the sink. The sink must accept the whole
// page; a short write fails the stream.
func (e *emitter) flush() error {
	if e.n == 0 {
		return nil
	}
	n, err := e.sink.Write(e.page[:e.n])
	if err != nil {
		return fmt.Errorf("flushing output page: %w", err)
	}
	if n < e.n {
		return ErrSinkWriteShort
	}
	e.n = 0
	return nil
}
