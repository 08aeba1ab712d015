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

// Package deflate implements a DEFLATE (RFC 1951) bit-stream decoder over
// an in-memory buffer. Decoded bytes pass through a 32 KiB sliding window
// for back-references and are flushed to the caller's sink in fixed pages.
package deflate

import (
	"errors"
	"io"
	"sync"
)

const (
	endOfBlock     = 256
	maxMatchLength = 258

	maxLitLenCodes     = 286
	maxDistCodes       = 32
	numDistCodes       = 30
	numCodeLengthCodes = 19
	codeLengthLimit    = 7
)

// Base values and extra bit counts for length codes 257..285.
// ref: https://www.ietf.org/rfc/rfc1951.txt section 3.2.5
var lengthBases = [29]uint16{
	3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31, 35, 43,
	51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258,
}

var lengthExtras = [29]uint8{
	0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2, 3, 3,
	3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0,
}

// Base values and extra bit counts for distance codes 0..29.
var distanceBases = [numDistCodes]uint16{
	1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193,
	257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145, 8193,
	12289, 16385, 24577,
}

var distanceExtras = [numDistCodes]uint8{
	0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6,
	7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
}

// Transmission order of the code length alphabet's own code lengths.
// ref: https://www.ietf.org/rfc/rfc1951.txt section 3.2.7
var codeLengthOrder = [numCodeLengthCodes]uint8{
	16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15,
}

var (
	fixedOnce       sync.Once
	fixedLitLenTree *node
	fixedDistTree   *node
)

// fixedTrees returns the decode trees for BTYPE 01 blocks. The code length
// vectors are fixed by RFC 1951 section 3.2.6 and always build cleanly.
func fixedTrees() (*node, *node) {
	fixedOnce.Do(func() {
		var lens [288]uint8
		for i := 0; i < 144; i++ {
			lens[i] = 8
		}
		for i := 144; i < 256; i++ {
			lens[i] = 9
		}
		for i := 256; i < 280; i++ {
			lens[i] = 7
		}
		for i := 280; i < 288; i++ {
			lens[i] = 8
		}
		fixedLitLenTree, _ = buildTree(lens[:], maxCodeLength)

		var dlens [numDistCodes]uint8
		for i := range dlens {
			dlens[i] = 5
		}
		fixedDistTree, _ = buildTree(dlens[:], maxCodeLength)
	})
	return fixedLitLenTree, fixedDistTree
}

// decoder holds the state of one DEFLATE stream: its position in the input
// bit stream and the window/output side of the session.
type decoder struct {
	br *bitReader
	em *emitter
}

// Decompress decodes one complete DEFLATE stream from buf starting at byte
// offset off, writing the uncompressed bytes to w. It consumes blocks until
// the block marked final, flushes the residual output page, aligns the
// reader to the next byte boundary and returns the offset of the first
// unconsumed byte.
func Decompress(buf []byte, off int, w io.Writer) (int, error) {
	d := &decoder{
		br: newBitReader(buf, off),
		em: newEmitter(w),
	}
	if err := d.decodeBlocks(); err != nil {
		return 0, err
	}
	return d.br.pos, nil
}

func (d *decoder) decodeBlocks() error {
	for {
		final, err := d.br.readBit()
		if err != nil {
			return err
		}
		blockType, err := d.br.readBits(2)
		if err != nil {
			return err
		}

		switch blockType {
		case 0:
			err = d.storedBlock()
		case 1:
			lit, dist := fixedTrees()
			err = d.symbolLoop(lit, dist)
		case 2:
			err = d.dynamicBlock()
		default:
			return offsetErr(ErrReservedBlockType, d.br.offset())
		}
		if err != nil {
			return err
		}

		if final == 1 {
			break
		}
	}

	if err := d.em.flush(); err != nil {
		return err
	}
	d.br.alignToByte()
	return nil
}

// storedBlock copies LEN literal bytes that follow the block header on the
// next byte boundary. NLEN is the one's complement of LEN.
func (d *decoder) storedBlock() error {
	d.br.alignToByte()

	length, err := d.br.readBits(16)
	if err != nil {
		return err
	}
	nlength, err := d.br.readBits(16)
	if err != nil {
		return err
	}
	if length != ^nlength {
		return offsetErr(ErrStoredLengthMismatch, d.br.offset())
	}

	data, err := d.br.bytes(int(length))
	if err != nil {
		return err
	}
	return d.em.emitAll(data)
}

// dynamicBlock reads the block's own Huffman code definitions and then runs
// the symbol loop over them. The literal/length and distance code lengths
// arrive as one flat sequence compressed with the code length alphabet;
// repeat codes may straddle the boundary between the two regions.
func (d *decoder) dynamicBlock() error {
	hlit, err := d.br.readBits(5)
	if err != nil {
		return err
	}
	hdist, err := d.br.readBits(5)
	if err != nil {
		return err
	}
	hclen, err := d.br.readBits(4)
	if err != nil {
		return err
	}

	litLenCount := int(hlit) + 257
	distCount := int(hdist) + 1
	codeLenCount := int(hclen) + 4
	if litLenCount > maxLitLenCodes || distCount > maxDistCodes || codeLenCount > numCodeLengthCodes {
		return offsetErr(ErrDynamicHeader, d.br.offset())
	}

	var clLens [numCodeLengthCodes]uint8
	for i := 0; i < codeLenCount; i++ {
		l, err := d.br.readBits(3)
		if err != nil {
			return err
		}
		clLens[codeLengthOrder[i]] = uint8(l)
	}
	clTree, err := buildTree(clLens[:], codeLengthLimit)
	if err != nil {
		return offsetErr(err, d.br.offset())
	}

	total := litLenCount + distCount
	lengths := make([]uint8, total)
	previous := uint8(0)
	for i := 0; i < total; {
		sym, err := clTree.decodeSymbol(d.br)
		if err != nil {
			return err
		}
		switch {
		case sym <= 15:
			lengths[i] = uint8(sym)
			previous = uint8(sym)
			i++
		case sym == 16:
			if i == 0 {
				return offsetErr(ErrNoPreviousLength, d.br.offset())
			}
			i, err = d.repeat(lengths, i, previous, 3, 2)
			if err != nil {
				return err
			}
		case sym == 17:
			previous = 0
			i, err = d.repeat(lengths, i, 0, 3, 3)
			if err != nil {
				return err
			}
		default: // 18
			previous = 0
			i, err = d.repeat(lengths, i, 0, 11, 7)
			if err != nil {
				return err
			}
		}
	}

	litTree, err := buildTree(lengths[:litLenCount], maxCodeLength)
	if err != nil {
		return offsetErr(err, d.br.offset())
	}
	distTree, err := buildTree(lengths[litLenCount:], maxCodeLength)
	if err != nil {
		return offsetErr(err, d.br.offset())
	}
	return d.symbolLoop(litTree, distTree)
}

// repeat fills lengths[i:] with value, base plus extraBits stream bits
// times, and returns the new fill index.
func (d *decoder) repeat(lengths []uint8, i int, value uint8, base int, extraBits uint8) (int, error) {
	extra, err := d.br.readBits(extraBits)
	if err != nil {
		return 0, err
	}
	count := base + int(extra)
	if i+count > len(lengths) {
		return 0, offsetErr(ErrRepeatOverflow, d.br.offset())
	}
	for j := 0; j < count; j++ {
		lengths[i+j] = value
	}
	return i + count, nil
}

// symbolLoop decodes literal/length symbols until the end-of-block marker,
// emitting literals directly and resolving length/distance pairs through
// the window.
func (d *decoder) symbolLoop(litTree, distTree *node) error {
	for {
		sym, err := litTree.decodeSymbol(d.br)
		if err != nil {
			return err
		}

		switch {
		case sym < endOfBlock:
			if err := d.em.emit(byte(sym)); err != nil {
				return err
			}
		case sym == endOfBlock:
			return nil
		case sym <= 285:
			length, err := d.matchLength(sym)
			if err != nil {
				return err
			}
			distance, err := d.matchDistance(distTree)
			if err != nil {
				return err
			}
			if err := d.em.copyFromWindow(length, distance); err != nil {
				if errors.Is(err, ErrInvalidDistance) {
					return offsetErr(err, d.br.offset())
				}
				return err
			}
		default:
			return offsetErr(ErrInvalidSymbol, d.br.offset())
		}
	}
}

// matchLength resolves length code sym (257..285) to a match length in 3..258.
func (d *decoder) matchLength(sym int) (int, error) {
	idx := sym - 257
	extra, err := d.br.readBits(lengthExtras[idx])
	if err != nil {
		return 0, err
	}
	// Code 284 with all extra bits set would encode length 258, which has
	// its own code, 285.
	if sym == 284 && extra == 31 {
		return 0, offsetErr(ErrInvalidLengthExtra, d.br.offset())
	}
	return int(lengthBases[idx]) + int(extra), nil
}

// matchDistance decodes a distance code and its extra bits, yielding a
// distance in 1..32768.
func (d *decoder) matchDistance(distTree *node) (int, error) {
	sym, err := distTree.decodeSymbol(d.br)
	if err != nil {
		return 0, err
	}
	if sym >= numDistCodes {
		return 0, offsetErr(ErrInvalidSymbol, d.br.offset())
	}
	extra, err := d.br.readBits(distanceExtras[sym])
	if err != nil {
		return 0, err
	}
	return int(distanceBases[sym]) + int(extra), nil
}
