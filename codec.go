package vpk

import (
	"bytes"
	"encoding/binary"
	"io"
)

// reader wraps a sequential byte source with the little-endian primitive
// reads the on-disk format needs. It keeps a reusable scratch buffer for
// cstring decoding so repeated tree-entry reads don't churn the allocator,
// mirroring the teacher's preference for reusable buffers over the hash and
// block table reads.
type reader struct {
	r      io.Reader
	err    error
	scratch []byte
}

func newReader(r io.Reader) *reader {
	return &reader{r: r}
}

// fail records the first error seen and makes every subsequent read a no-op,
// the same short-circuit pattern the teacher's diveIn uses around its local
// read closure.
func (c *reader) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *reader) Err() error { return c.err }

func (c *reader) u16() uint16 {
	if c.err != nil {
		return 0
	}
	var v uint16
	c.fail(binary.Read(c.r, binary.LittleEndian, &v))
	return v
}

func (c *reader) u32() uint32 {
	if c.err != nil {
		return 0
	}
	var v uint32
	c.fail(binary.Read(c.r, binary.LittleEndian, &v))
	return v
}

func (c *reader) i32() int32 {
	if c.err != nil {
		return 0
	}
	var v int32
	c.fail(binary.Read(c.r, binary.LittleEndian, &v))
	return v
}

// bytesN reads n raw bytes. Returns nil once an error has been recorded.
func (c *reader) bytesN(n int) []byte {
	if c.err != nil || n <= 0 {
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		c.fail(err)
		return nil
	}
	return buf
}

// cstring reads a null-terminated UTF-8 string, appending bytes to the
// reader's scratch buffer until a 0x00 terminator.
func (c *reader) cstring() string {
	if c.err != nil {
		return ""
	}
	c.scratch = c.scratch[:0]
	var b [1]byte
	for {
		if _, err := io.ReadFull(c.r, b[:]); err != nil {
			c.fail(err)
			return ""
		}
		if b[0] == 0 {
			break
		}
		c.scratch = append(c.scratch, b[0])
	}
	return string(c.scratch)
}

// writeCString writes s followed by a single 0x00 terminator.
func writeCString(w io.Writer, s string) error {
	if _, err := io.WriteString(w, s); err != nil {
		return err
	}
	_, err := w.Write([]byte{0})
	return err
}

func writeU16(w io.Writer, v uint16) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func writeU32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func writeI32(w io.Writer, v int32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

// subStream is a read-only, non-seeking view over a base io.ReadSeeker
// starting at off and spanning length bytes, so callers can hash or read an
// arbitrary region of an archive. It seeks the base source and reads from
// it, which moves the base's shared position, so multiple views over the
// same underlying source must be used one after another.
type subStream struct {
	base   io.ReadSeeker
	pos    int64 // position within the view, relative to off
	off    int64
	length int64
}

// newSubStream seeks base to off immediately; callers must not interleave
// reads from other views over the same base between construction and use.
func newSubStream(base io.ReadSeeker, off, length int64) (*subStream, error) {
	if _, err := base.Seek(off, io.SeekStart); err != nil {
		return nil, err
	}
	return &subStream{base: base, off: off, length: length}, nil
}

func (s *subStream) Read(p []byte) (int, error) {
	remaining := s.length - s.pos
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := s.base.Read(p)
	s.pos += int64(n)
	return n, err
}

// hashRegion streams [off, off+length) of base through h, using buf as a
// scratch read buffer (a zero-length/nil buf allocates a default-sized one).
func hashRegion(base io.ReadSeeker, off, length int64, h io.Writer, buf []byte) error {
	ss, err := newSubStream(base, off, length)
	if err != nil {
		return err
	}
	if len(buf) == 0 {
		buf = make([]byte, 64*1024)
	}
	_, err = io.CopyBuffer(h, io.LimitReader(ss, length), buf)
	return err
}

// bytesReader adapts a []byte to an io.ReadSeeker for in-memory archives.
func bytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}
