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

// Package compression decompresses gzip (RFC 1952) files held in memory.
// A gzip file is a sequence of members, each wrapping one DEFLATE stream
// between a header and a trailer; members are decompressed back to back
// until the input is exhausted.
package compression

import (
	"context"
	"encoding/binary"
	"hash"
	"hash/crc32"
	"io"

	"github.com/containerd/log"
	"github.com/ungzip/ungzip/compression/deflate"
	"github.com/ungzip/ungzip/util/ioutils"
)

const (
	gzipID1           = 0x1f
	gzipID2           = 0x8b
	gzipMethodDeflate = 8

	// Header flag bits. Bits 5..7 are reserved and must be zero.
	flagText      = 1 << 0
	flagHeaderCRC = 1 << 1
	flagExtra     = 1 << 2
	flagName      = 1 << 3
	flagComment   = 1 << 4

	memberHeaderSize  = 10
	memberTrailerSize = 8
)

// GzipHeader holds the parsed fields of one member header. The optional
// sections are skipped over in the input either way; name and comment are
// captured along the way.
type GzipHeader struct {
	// ModTime is the MTIME field, seconds since the Unix epoch, 0 if unset.
	ModTime uint32
	// OS identifies the filesystem the member was created on (0xff unknown).
	OS byte
	// Name is the original file name from the FNAME section, if present.
	Name string
	// Comment is the FCOMMENT section content, if present.
	Comment string
	// Text reports the FTEXT hint.
	Text bool
}

// GzipTrailer is the 8-byte member trailer.
type GzipTrailer struct {
	CRC32 uint32
	Size  uint32
}

type decompressConfig struct {
	verifyChecksums bool
}

// DecompressOption adjusts how DecompressGzip treats the input.
type DecompressOption func(*decompressConfig)

// WithChecksumVerification makes DecompressGzip check each member's output
// against the trailer CRC-32 and ISIZE fields. Mismatches fail with
// ErrChecksumMismatch and ErrSizeMismatch respectively.
func WithChecksumVerification() DecompressOption {
	return func(c *decompressConfig) {
		c.verifyChecksums = true
	}
}

// DecompressGzip decompresses every gzip member in buf, in order, writing
// the uncompressed bytes to w. It returns the total number of bytes written.
// On any failure the output already handed to w must be discarded by the
// caller; no partial success is reported.
func DecompressGzip(ctx context.Context, buf []byte, w io.Writer, opts ...DecompressOption) (int64, error) {
	var cfg decompressConfig
	for _, o := range opts {
		o(&cfg)
	}

	out := ioutils.NewPositionTrackerWriter(w)
	pos := 0
	for member := 0; ; member++ {
		hdr, next, err := parseMemberHeader(buf, pos)
		if err != nil {
			return 0, err
		}

		var crc hash.Hash32
		var sink io.Writer = out
		if cfg.verifyChecksums {
			crc = crc32.NewIEEE()
			sink = io.MultiWriter(out, crc)
		}

		memberStart := out.CurrentPos()
		next, err = deflate.Decompress(buf, next, sink)
		if err != nil {
			return 0, err
		}
		memberSize := out.CurrentPos() - memberStart

		trailer, trailerEnd, err := parseMemberTrailer(buf, next)
		if err != nil {
			return 0, err
		}
		if cfg.verifyChecksums {
			if crc.Sum32() != trailer.CRC32 {
				return 0, offsetErr(ErrChecksumMismatch, int64(next))
			}
			if uint32(memberSize) != trailer.Size {
				return 0, offsetErr(ErrSizeMismatch, int64(next))
			}
		}

		log.G(ctx).WithFields(log.Fields{
			"member":           member,
			"name":             hdr.Name,
			"compressedEnd":    trailerEnd,
			"uncompressedSize": memberSize,
		}).Debug("decompressed gzip member")

		pos = trailerEnd
		if pos == len(buf) {
			return out.CurrentPos(), nil
		}
	}
}

// parseMemberHeader parses one member header starting at pos and returns
// the header and the offset of the first byte of the member's DEFLATE
// stream.
func parseMemberHeader(buf []byte, pos int) (GzipHeader, int, error) {
	var hdr GzipHeader

	if len(buf)-pos < memberHeaderSize {
		return hdr, 0, offsetErr(deflate.ErrTruncated, int64(len(buf)))
	}
	if buf[pos] != gzipID1 || buf[pos+1] != gzipID2 {
		return hdr, 0, offsetErr(ErrBadMagic, int64(pos))
	}
	if buf[pos+2] != gzipMethodDeflate {
		return hdr, 0, offsetErr(ErrUnsupportedMethod, int64(pos+2))
	}
	flags := buf[pos+3]
	if flags&0xe0 != 0 {
		return hdr, 0, offsetErr(ErrReservedFlagBits, int64(pos+3))
	}
	hdr.Text = flags&flagText != 0
	hdr.ModTime = binary.LittleEndian.Uint32(buf[pos+4 : pos+8])
	// XFL at pos+8 is parsed and ignored.
	hdr.OS = buf[pos+9]
	pos += memberHeaderSize

	if flags&flagExtra != 0 {
		if len(buf)-pos < 2 {
			return hdr, 0, offsetErr(deflate.ErrTruncated, int64(len(buf)))
		}
		xlen := int(binary.LittleEndian.Uint16(buf[pos : pos+2]))
		pos += 2
		if len(buf)-pos < xlen {
			return hdr, 0, offsetErr(deflate.ErrTruncated, int64(len(buf)))
		}
		pos += xlen
	}

	var err error
	if flags&flagName != 0 {
		if hdr.Name, pos, err = parseCString(buf, pos); err != nil {
			return hdr, 0, err
		}
	}
	if flags&flagComment != 0 {
		if hdr.Comment, pos, err = parseCString(buf, pos); err != nil {
			return hdr, 0, err
		}
	}

	if flags&flagHeaderCRC != 0 {
		if len(buf)-pos < 2 {
			return hdr, 0, offsetErr(deflate.ErrTruncated, int64(len(buf)))
		}
		pos += 2
	}

	return hdr, pos, nil
}

// parseCString consumes bytes up to and including the first 0x00 and
// returns the preceding bytes as a string.
func parseCString(buf []byte, pos int) (string, int, error) {
	start := pos
	for pos < len(buf) {
		if buf[pos] == 0 {
			return string(buf[start:pos]), pos + 1, nil
		}
		pos++
	}
	return "", 0, offsetErr(deflate.ErrTruncated, int64(len(buf)))
}

// parseMemberTrailer parses the byte-aligned 8-byte trailer at pos.
func parseMemberTrailer(buf []byte, pos int) (GzipTrailer, int, error) {
	if len(buf)-pos < memberTrailerSize {
		return GzipTrailer{}, 0, offsetErr(deflate.ErrTruncated, int64(len(buf)))
	}
	trailer := GzipTrailer{
		CRC32: binary.LittleEndian.Uint32(buf[pos : pos+4]),
		Size:  binary.LittleEndian.Uint32(buf[pos+4 : pos+8]),
	}
	return trailer, pos + memberTrailerSize, nil
}
