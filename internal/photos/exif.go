package photos

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"time"
)

// exifScanLimit bounds how much of a file is searched for the APP1 segment.
const exifScanLimit = 128 * 1024

const (
	tagDateTime         = 0x0132
	tagExifIFDPointer   = 0x8769
	tagDateTimeOriginal = 0x9003
)

var exifDatePattern = regexp.MustCompile(`^(\d{4}):(\d{2}):(\d{2})\s+(\d{2}):(\d{2}):(\d{2})$`)

// ExifDate is when a photo was taken, in the camera's wall clock.
type ExifDate struct {
	Time time.Time
	// Key is the calendar day, "YYYY-MM-DD".
	Key string
}

// ExtractDate reads DateTimeOriginal from a JPEG's EXIF block, falling back to
// the IFD0 DateTime. It never fails; unreadable input yields false.
func ExtractDate(data []byte) (ExifDate, bool) {
	if len(data) > exifScanLimit {
		data = data[:exifScanLimit]
	}
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return ExifDate{}, false
	}

	offset := 2
	for offset+4 <= len(data) {
		marker := binary.BigEndian.Uint16(data[offset:])
		if marker&0xFF00 != 0xFF00 {
			break
		}
		length := int(binary.BigEndian.Uint16(data[offset+2:]))
		if length < 2 {
			break
		}
		if marker == 0xFFE1 {
			end := min(offset+2+length, len(data))
			if d, ok := parseExif(data[offset+4 : end]); ok {
				return d, true
			}
		}
		offset += 2 + length
	}
	return ExifDate{}, false
}

// tiff is a TIFF structure addressed relative to its header.
type tiff struct {
	b     []byte
	order binary.ByteOrder
}

func parseExif(seg []byte) (ExifDate, bool) {
	if len(seg) < 14 || string(seg[:4]) != "Exif" {
		return ExifDate{}, false
	}
	t := tiff{b: seg[6:]}
	switch string(t.b[:2]) {
	case "II":
		t.order = binary.LittleEndian
	case "MM":
		t.order = binary.BigEndian
	default:
		return ExifDate{}, false
	}
	if t.order.Uint16(t.b[2:]) != 42 {
		return ExifDate{}, false
	}
	ifd0 := t.order.Uint32(t.b[4:])

	if ptr, ok := t.lookup(ifd0, tagExifIFDPointer); ok {
		if v, ok := t.lookup(ptr, tagDateTimeOriginal); ok {
			if d, ok := t.dateAt(v); ok {
				return d, true
			}
		}
	}
	if v, ok := t.lookup(ifd0, tagDateTime); ok {
		return t.dateAt(v)
	}
	return ExifDate{}, false
}

// lookup returns the value/offset field of tag in the IFD at ifd.
func (t tiff) lookup(ifd uint32, tag uint16) (uint32, bool) {
	start := int(ifd)
	if start < 0 || start+2 > len(t.b) {
		return 0, false
	}
	n := int(t.order.Uint16(t.b[start:]))
	for i := 0; i < n; i++ {
		entry := start + 2 + i*12
		if entry+12 > len(t.b) {
			break
		}
		if t.order.Uint16(t.b[entry:]) == tag {
			return t.order.Uint32(t.b[entry+8:]), true
		}
	}
	return 0, false
}

func (t tiff) dateAt(offset uint32) (ExifDate, bool) {
	start := int(offset)
	if start < 0 || start >= len(t.b) {
		return ExifDate{}, false
	}
	end := min(start+19, len(t.b))
	raw := t.b[start:end]
	for i, c := range raw {
		if c == 0 {
			raw = raw[:i]
			break
		}
	}
	return parseExifDate(string(raw))
}

func parseExifDate(s string) (ExifDate, bool) {
	m := exifDatePattern.FindStringSubmatch(s)
	if m == nil {
		return ExifDate{}, false
	}
	ts, err := time.Parse("2006:01:02 15:04:05", fmt.Sprintf("%s:%s:%s %s:%s:%s", m[1], m[2], m[3], m[4], m[5], m[6]))
	if err != nil {
		return ExifDate{}, false
	}
	return ExifDate{Time: ts, Key: m[1] + "-" + m[2] + "-" + m[3]}, true
}

// Earliest returns the earliest capture date among files that have one.
func Earliest(files ...[]byte) (ExifDate, bool) {
	var (
		best  ExifDate
		found bool
	)
	for _, f := range files {
		d, ok := ExtractDate(f)
		if !ok {
			continue
		}
		if !found || d.Time.Before(best.Time) {
			best, found = d, true
		}
	}
	return best, found
}
