package wire

import (
	"encoding/binary"
	"fmt"
)

// NBT holds the raw bytes of one named binary tag value: a tag type byte,
// followed for any type other than TAG_End by a u16-prefixed root name and the
// tag payload. The codec validates structure but never interprets content.
type NBT []byte

const (
	tagEnd byte = iota
	tagByte
	tagShort
	tagInt
	tagLong
	tagFloat
	tagDouble
	tagByteArray
	tagString
	tagList
	tagCompound
	tagIntArray
	tagLongArray
)

// MaxNBTDepth bounds compound and list nesting.
const MaxNBTDepth = 512

// Empty reports whether the value is the single-byte TAG_End root.
func (n NBT) Empty() bool {
	return len(n) == 0 || (len(n) == 1 && n[0] == tagEnd)
}

// scanNBT returns the byte length of the NBT value at the front of buf.
// Structural problems, including truncation, are reported as ErrMalformed
// since an NBT value is only ever scanned inside a complete frame.
func scanNBT(buf []byte) (int, error) {
	s := nbtScanner{buf: buf}
	if err := s.root(); err != nil {
		return 0, fmt.Errorf("%w: nbt: %v", ErrMalformed, err)
	}
	return s.pos, nil
}

type nbtScanner struct {
	buf []byte
	pos int
}

func (s *nbtScanner) skip(n int) error {
	if n < 0 || len(s.buf)-s.pos < n {
		return ErrNotEnoughBytes
	}
	s.pos += n
	return nil
}

func (s *nbtScanner) next() (byte, error) {
	if s.pos >= len(s.buf) {
		return 0, ErrNotEnoughBytes
	}
	b := s.buf[s.pos]
	s.pos++
	return b, nil
}

func (s *nbtScanner) length(width int) (int, error) {
	if len(s.buf)-s.pos < width {
		return 0, ErrNotEnoughBytes
	}
	var n int
	if width == 2 {
		n = int(binary.BigEndian.Uint16(s.buf[s.pos:]))
	} else {
		v := int32(binary.BigEndian.Uint32(s.buf[s.pos:]))
		if v < 0 {
			return 0, fmt.Errorf("negative length %d", v)
		}
		n = int(v)
	}
	s.pos += width
	return n, nil
}

func (s *nbtScanner) str() error {
	n, err := s.length(2)
	if err != nil {
		return err
	}
	return s.skip(n)
}

func (s *nbtScanner) root() error {
	tag, err := s.next()
	if err != nil {
		return err
	}
	if tag == tagEnd {
		return nil
	}
	if err := s.str(); err != nil {
		return err
	}
	return s.payload(tag, 0)
}

func (s *nbtScanner) payload(tag byte, depth int) error {
	if depth > MaxNBTDepth {
		return fmt.Errorf("nesting deeper than %d", MaxNBTDepth)
	}
	switch tag {
	case tagByte:
		return s.skip(1)
	case tagShort:
		return s.skip(2)
	case tagInt, tagFloat:
		return s.skip(4)
	case tagLong, tagDouble:
		return s.skip(8)
	case tagByteArray, tagIntArray, tagLongArray:
		n, err := s.length(4)
		if err != nil {
			return err
		}
		width := 1
		switch tag {
		case tagIntArray:
			width = 4
		case tagLongArray:
			width = 8
		}
		if n > (len(s.buf)-s.pos)/width {
			return ErrNotEnoughBytes
		}
		return s.skip(n * width)
	case tagString:
		return s.str()
	case tagList:
		elem, err := s.next()
		if err != nil {
			return err
		}
		n, err := s.length(4)
		if err != nil {
			return err
		}
		if elem == tagEnd {
			if n != 0 {
				return fmt.Errorf("list of TAG_End with %d elements", n)
			}
			return nil
		}
		if n > len(s.buf)-s.pos {
			return ErrNotEnoughBytes
		}
		for i := 0; i < n; i++ {
			if err := s.payload(elem, depth+1); err != nil {
				return err
			}
		}
		return nil
	case tagCompound:
		for {
			child, err := s.next()
			if err != nil {
				return err
			}
			if child == tagEnd {
				return nil
			}
			if err := s.str(); err != nil {
				return err
			}
			if err := s.payload(child, depth+1); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown tag type %d", tag)
	}
}
