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
	"errors"
	"fmt"
)

// Decoding errors. Every failure is fatal to the stream being decoded;
// callers match them with errors.Is.
var (
	// ErrTruncated is returned when the input ends before a required
	// field was fully read.
	ErrTruncated = errors.New("truncated input")

	// ErrReservedBlockType is returned for blocks with BTYPE 11.
	ErrReservedBlockType = errors.New("reserved block type")

	// ErrStoredLengthMismatch is returned when a stored block's LEN field
	// does not match the complement of its NLEN field.
	ErrStoredLengthMismatch = errors.New("stored block length mismatch")

	// ErrDynamicHeader is returned when HLIT, HDIST or HCLEN is out of range.
	ErrDynamicHeader = errors.New("invalid dynamic block header")

	// ErrNoPreviousLength is returned when repeat code 16 appears before
	// any code length has been decoded.
	ErrNoPreviousLength = errors.New("repeat code without previous code length")

	// ErrRepeatOverflow is returned when a repeat code would write past the
	// end of the code length sequence.
	ErrRepeatOverflow = errors.New("code length repeat overflows sequence")

	// ErrInvalidLengths is returned when a code length exceeds the limit of
	// its alphabet.
	ErrInvalidLengths = errors.New("code length exceeds limit")

	// ErrMalformedCodes is returned when a set of canonical codes cannot
	// form a valid decode tree, or when the stream contains a code that is
	// not in the tree.
	ErrMalformedCodes = errors.New("malformed huffman codes")

	// ErrInvalidSymbol is returned when a decoded symbol is outside its
	// alphabet.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrInvalidLengthExtra is returned for length code 284 with extra bits
	// value 31: length 258 has its own code, 285.
	ErrInvalidLengthExtra = errors.New("invalid extra bits for length code")

	// ErrInvalidDistance is returned when a back-reference reaches into the
	// part of the window that has not been written yet.
	ErrInvalidDistance = errors.New("invalid back-reference distance")

	// ErrSinkWriteShort is returned when the output sink accepts fewer
	// bytes than were flushed to it.
	ErrSinkWriteShort = errors.New("short write to output sink")
)

// offsetErr annotates err with the input byte offset at the time of failure.
func offsetErr(err error, offset int64) error {
	return fmt.Errorf("%w (input offset %d)", err, offset)
}
