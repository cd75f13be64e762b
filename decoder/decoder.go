// Package decoder checks the quality of received non-ECM page data. It
// splits the T.4 stream at EOL codes and verifies each coded row, counting
// rows that fail to decode.
package decoder

import (
	"bytes"
	"errors"
	"io"

	"golang.org/x/image/ccitt"

	"gofaxmodem/t30"
)

// ErrNoData is returned when the stream holds no EOL at all.
var ErrNoData = errors.New("decoder: no coded rows in page data")

// eolZeros is the number of zero bits in an EOL code before its final one.
const eolZeros = 11

// rtcEOLs is the number of consecutive EOLs that end a page.
const rtcEOLs = 6

// Quality summarizes a received page.
type Quality struct {
	Rows               int
	BadRows            int
	ConsecutiveBadRows int
}

// Good reports whether the page satisfies the minimum percentage of good
// rows and the maximum run of consecutive bad rows.
func (q Quality) Good(percentGood, maxConsecutiveBad int) bool {
	if q.Rows == 0 {
		return false
	}
	good := q.Rows - q.BadRows
	if good*100 < percentGood*q.Rows {
		return false
	}
	return q.ConsecutiveBadRows <= maxConsecutiveBad
}

// LineDecoder scores the data of one page.
type LineDecoder interface {
	Decode(data []byte, p t30.Params) (Quality, error)
}

// RowVerifier reports whether a one-dimensionally coded row of width pixels
// decodes cleanly. row holds the row bits packed first bit in bit 0.
type RowVerifier func(row []byte, width int) bool

// G3Decoder implements LineDecoder for MH and MR coded data.
type G3Decoder struct {
	Verify RowVerifier
}

// New returns a decoder verifying rows with VerifyMH.
func New() *G3Decoder {
	return &G3Decoder{Verify: VerifyMH}
}

// VerifyMH decodes a single MH row.
func VerifyMH(row []byte, width int) bool {
	r := ccitt.NewReader(bytes.NewReader(row), ccitt.LSB, ccitt.Group3, width, 1, &ccitt.Options{})
	n, err := io.Copy(io.Discard, r)
	return err == nil && n == int64((width+7)/8)
}

type bitReader struct {
	data []byte
	pos  int
}

func (r *bitReader) bits() int { return len(r.data) * 8 }

func (r *bitReader) bit(i int) byte {
	return r.data[i/8] >> uint(i%8) & 1
}

// extract packs bits [from, to) into a new slice, first bit in bit 0.
func (r *bitReader) extract(from, to int) []byte {
	out := make([]byte, (to-from+7)/8)
	for i := from; i < to; i++ {
		if r.bit(i) != 0 {
			k := i - from
			out[k/8] |= 1 << uint(k%8)
		}
	}
	return out
}

// Decode walks the EOL structure of data. Bits before the first EOL are
// ignored and decoding stops at RTC or at the end of data.
func (d *G3Decoder) Decode(data []byte, p t30.Params) (Quality, error) {
	var q Quality
	if p.DF != t30.DFMH && p.DF != t30.DFMR {
		return q, nil
	}
	verify := d.Verify
	if verify == nil {
		verify = VerifyMH
	}
	width := p.PageWidth()
	r := &bitReader{data: data}

	zeros := 0
	rowStart := -1
	oneD := true
	empty := 0
	badRun := 0
	row := func(end int) {
		if end <= rowStart {
			empty++
			return
		}
		empty = 0
		q.Rows++
		ok := true
		if oneD {
			ok = verify(r.extract(rowStart, end), width)
		}
		if ok {
			badRun = 0
			return
		}
		q.BadRows++
		badRun++
		if badRun > q.ConsecutiveBadRows {
			q.ConsecutiveBadRows = badRun
		}
	}

	for i := 0; i < r.bits(); i++ {
		if r.bit(i) == 0 {
			zeros++
			continue
		}
		if zeros < eolZeros {
			zeros = 0
			continue
		}
		if rowStart >= 0 {
			row(i - eolZeros)
		}
		zeros = 0
		rowStart = i + 1
		if p.DF == t30.DFMR && rowStart < r.bits() {
			oneD = r.bit(rowStart) == 1
			rowStart++
			i++
		}
		if empty >= rtcEOLs-1 {
			break
		}
	}
	if rowStart < 0 {
		return q, ErrNoData
	}
	return q, nil
}
