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

package compression_test

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/klauspost/compress/gzip"
	"github.com/ungzip/ungzip/compression"
	"github.com/ungzip/ungzip/compression/deflate"
	"golang.org/x/sync/errgroup"
)

// storedHelloMember is a complete single-member gzip file whose one DEFLATE
// block is stored: header, LEN/NLEN, "hello", CRC-32, ISIZE.
var storedHelloMember = []byte{
	0x1f, 0x8b, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03,
	0x01, 0x05, 0x00, 0xfa, 0xff,
	'h', 'e', 'l', 'l', 'o',
	0x86, 0xa6, 0x10, 0x36,
	0x05, 0x00, 0x00, 0x00,
}

func member(t *testing.T) []byte {
	t.Helper()
	return append([]byte{}, storedHelloMember...)
}

func TestDecompressStoredMember(t *testing.T) {
	var out bytes.Buffer
	n, err := compression.DecompressGzip(context.Background(), member(t), &out)
	if err != nil {
		t.Fatalf("DecompressGzip: %v", err)
	}
	if out.String() != "hello" {
		t.Fatalf("output = %q, expected %q", out.String(), "hello")
	}
	if n != 5 {
		t.Fatalf("reported %d bytes written, expected 5", n)
	}
}

func TestHeaderErrors(t *testing.T) {
	testCases := []struct {
		name     string
		mutate   func([]byte) []byte
		expected error
	}{
		{
			name:     "empty input",
			mutate:   func([]byte) []byte { return nil },
			expected: deflate.ErrTruncated,
		},
		{
			name:     "truncated header",
			mutate:   func(m []byte) []byte { return m[:6] },
			expected: deflate.ErrTruncated,
		},
		{
			name: "bad first magic byte",
			mutate: func(m []byte) []byte {
				m[0] = 0x1e
				return m
			},
			expected: compression.ErrBadMagic,
		},
		{
			name: "bad second magic byte",
			mutate: func(m []byte) []byte {
				m[1] = 0x8c
				return m
			},
			expected: compression.ErrBadMagic,
		},
		{
			name: "unsupported compression method",
			mutate: func(m []byte) []byte {
				m[2] = 0x09
				return m
			},
			expected: compression.ErrUnsupportedMethod,
		},
		{
			name: "reserved flag bit 5",
			mutate: func(m []byte) []byte {
				m[3] = 0x20
				return m
			},
			expected: compression.ErrReservedFlagBits,
		},
		{
			name: "reserved flag bit 7",
			mutate: func(m []byte) []byte {
				m[3] = 0x80
				return m
			},
			expected: compression.ErrReservedFlagBits,
		},
		{
			name:     "truncated trailer",
			mutate:   func(m []byte) []byte { return m[:len(m)-3] },
			expected: deflate.ErrTruncated,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			_, err := compression.DecompressGzip(context.Background(), tc.mutate(member(t)), &out)
			if !errors.Is(err, tc.expected) {
				t.Fatalf("expected %v, got %v", tc.expected, err)
			}
		})
	}
}

func TestOptionalHeaderSections(t *testing.T) {
	// All optional sections at once: FTEXT, FHCRC, FEXTRA, FNAME, FCOMMENT.
	input := []byte{
		0x1f, 0x8b, 0x08, 0x1f, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03,
		0x02, 0x00, 0xab, 0xcd, // XLEN = 2 plus extra payload
		'h', 'i', 0x00, // FNAME
		'o', 'k', 0x00, // FCOMMENT
		0x12, 0x34, // FHCRC, skipped
		0x01, 0x05, 0x00, 0xfa, 0xff,
		'h', 'e', 'l', 'l', 'o',
		0x86, 0xa6, 0x10, 0x36,
		0x05, 0x00, 0x00, 0x00,
	}

	var out bytes.Buffer
	if _, err := compression.DecompressGzip(context.Background(), input, &out); err != nil {
		t.Fatalf("DecompressGzip: %v", err)
	}
	if out.String() != "hello" {
		t.Fatalf("output = %q, expected %q", out.String(), "hello")
	}
}

func TestOptionalSectionsTruncated(t *testing.T) {
	// FNAME whose terminator never arrives.
	input := []byte{
		0x1f, 0x8b, 0x08, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03,
		'h', 'i',
	}
	var out bytes.Buffer
	_, err := compression.DecompressGzip(context.Background(), input, &out)
	if !errors.Is(err, deflate.ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestChecksumVerification(t *testing.T) {
	corruptCRC := member(t)
	corruptCRC[20] ^= 0xff

	corruptSize := member(t)
	corruptSize[24] = 0x06

	testCases := []struct {
		name     string
		input    []byte
		verify   bool
		expected error
	}{
		{name: "bad crc ignored by default", input: corruptCRC},
		{name: "bad size ignored by default", input: corruptSize},
		{name: "good trailer verifies", input: member(t), verify: true},
		{name: "bad crc rejected", input: corruptCRC, verify: true, expected: compression.ErrChecksumMismatch},
		{name: "bad size rejected", input: corruptSize, verify: true, expected: compression.ErrSizeMismatch},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var opts []compression.DecompressOption
			if tc.verify {
				opts = append(opts, compression.WithChecksumVerification())
			}
			var out bytes.Buffer
			_, err := compression.DecompressGzip(context.Background(), tc.input, &out, opts...)
			if tc.expected == nil {
				if err != nil {
					t.Fatalf("DecompressGzip: %v", err)
				}
				if out.String() != "hello" {
					t.Fatalf("output = %q, expected %q", out.String(), "hello")
				}
			} else if !errors.Is(err, tc.expected) {
				t.Fatalf("expected %v, got %v", tc.expected, err)
			}
		})
	}
}

// gzipCompress produces a member with a conformant encoder, exercising the
// header fields real producers set.
func gzipCompress(t *testing.T, data []byte, name string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	w.Name = name
	w.Comment = "test member"
	w.ModTime = time.Unix(1_700_000_000, 0)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("compressing test data: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing compressor: %v", err)
	}
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	random := make([]byte, 200_000)
	rng.Read(random)
	repetitive := bytes.Repeat([]byte("gzip wraps one or more members. "), 8192)

	testCases := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "random", data: random},
		{name: "repetitive", data: repetitive},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			input := gzipCompress(t, tc.data, tc.name+".txt")

			var out bytes.Buffer
			n, err := compression.DecompressGzip(context.Background(), input, &out,
				compression.WithChecksumVerification())
			if err != nil {
				t.Fatalf("DecompressGzip: %v", err)
			}
			if n != int64(len(tc.data)) {
				t.Fatalf("reported %d bytes written, expected %d", n, len(tc.data))
			}
			if diff := cmp.Diff(tc.data, out.Bytes(), cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMultiMember(t *testing.T) {
	first := gzipCompress(t, []byte("first member|"), "a")
	second := gzipCompress(t, bytes.Repeat([]byte("second member|"), 1000), "b")
	input := append(append([]byte{}, first...), second...)

	var out bytes.Buffer
	if _, err := compression.DecompressGzip(context.Background(), input, &out,
		compression.WithChecksumVerification()); err != nil {
		t.Fatalf("DecompressGzip: %v", err)
	}

	want := append([]byte("first member|"), bytes.Repeat([]byte("second member|"), 1000)...)
	if !bytes.Equal(out.Bytes(), want) {
		t.Fatalf("multi-member output mismatch: got %d bytes, expected %d", out.Len(), len(want))
	}
}

func TestNoBackReferenceAcrossMembers(t *testing.T) {
	// The second member opens with a length 3 / distance 1 back-reference.
	// The window starts fresh per member, so the first member's output must
	// not satisfy it.
	secondMember := []byte{
		0x1f, 0x8b, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03,
		0x03, 0x02,
	}
	input := append(member(t), secondMember...)

	var out bytes.Buffer
	_, err := compression.DecompressGzip(context.Background(), input, &out)
	if !errors.Is(err, deflate.ErrInvalidDistance) {
		t.Fatalf("expected ErrInvalidDistance, got %v", err)
	}
}

func TestTrailingGarbage(t *testing.T) {
	input := append(member(t), make([]byte, 16)...)
	var out bytes.Buffer
	_, err := compression.DecompressGzip(context.Background(), input, &out)
	if !errors.Is(err, compression.ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic for trailing garbage, got %v", err)
	}
}

func TestIdempotent(t *testing.T) {
	input := gzipCompress(t, bytes.Repeat([]byte("same bytes every time "), 2048), "c")

	var first bytes.Buffer
	if _, err := compression.DecompressGzip(context.Background(), input, &first); err != nil {
		t.Fatalf("DecompressGzip: %v", err)
	}
	var second bytes.Buffer
	if _, err := compression.DecompressGzip(context.Background(), input, &second); err != nil {
		t.Fatalf("DecompressGzip: %v", err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Fatal("two decompressions of the same input differ")
	}
}

func TestParallelSessions(t *testing.T) {
	// Sessions share nothing but the read-only input, so decompressions may
	// run concurrently.
	data := bytes.Repeat([]byte("parallel sessions share no state "), 4096)
	input := gzipCompress(t, data, "d")

	outputs := make([]bytes.Buffer, 8)
	var eg errgroup.Group
	for i := range outputs {
		eg.Go(func() error {
			_, err := compression.DecompressGzip(context.Background(), input, &outputs[i],
				compression.WithChecksumVerification())
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("parallel DecompressGzip: %v", err)
	}
	for i := range outputs {
		if !bytes.Equal(outputs[i].Bytes(), data) {
			t.Fatalf("session %d produced %d bytes, expected %d", i, outputs[i].Len(), len(data))
		}
	}
}
