package photos

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value uint32
}

func putIFD(b []byte, order binary.ByteOrder, off int, entries []ifdEntry) {
	order.PutUint16(b[off:], uint16(len(entries)))
	for i, e := range entries {
		p := off + 2 + i*12
		order.PutUint16(b[p:], e.tag)
		order.PutUint16(b[p+2:], e.typ)
		order.PutUint32(b[p+4:], e.count)
		order.PutUint32(b[p+8:], e.value)
	}
}

// tiffBlock builds a minimal TIFF with an optional IFD0 DateTime and an
// optional Exif IFD holding DateTimeOriginal.
func tiffBlock(order binary.ByteOrder, original, dateTime string) []byte {
	n0 := 0
	if dateTime != "" {
		n0++
	}
	if original != "" {
		n0++
	}
	exifOff := 8 + 2 + n0*12 + 4
	dataOff := exifOff
	if original != "" {
		dataOff += 2 + 12 + 4
	}

	var (
		strs []byte
		ifd0 []ifdEntry
		exif []ifdEntry
	)
	if dateTime != "" {
		ifd0 = append(ifd0, ifdEntry{tagDateTime, 2, 20, uint32(dataOff + len(strs))})
		strs = append(strs, append([]byte(dateTime), 0)...)
	}
	if original != "" {
		ifd0 = append(ifd0, ifdEntry{tagExifIFDPointer, 4, 1, uint32(exifOff)})
		exif = append(exif, ifdEntry{tagDateTimeOriginal, 2, 20, uint32(dataOff + len(strs))})
		strs = append(strs, append([]byte(original), 0)...)
	}

	b := make([]byte, dataOff)
	if order == binary.LittleEndian {
		copy(b, "II")
	} else {
		copy(b, "MM")
	}
	order.PutUint16(b[2:], 42)
	order.PutUint32(b[4:], 8)
	putIFD(b, order, 8, ifd0)
	if original != "" {
		putIFD(b, order, exifOff, exif)
	}
	return append(b, strs...)
}

func app1(tiff []byte) []byte {
	payload := append([]byte("Exif\x00\x00"), tiff...)
	seg := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))
	return append(seg, payload...)
}

func jpegWithExif(tiff []byte) []byte {
	out := []byte{0xFF, 0xD8}
	// APP0 JFIF segment to be skipped.
	out = append(out, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0, 1, 1, 0, 0, 1, 0, 1, 0, 0)
	out = append(out, app1(tiff)...)
	return append(out, 0xFF, 0xD9)
}

func TestExtractDate_LittleEndianOriginal(t *testing.T) {
	data := jpegWithExif(tiffBlock(binary.LittleEndian, "2026:01:25 14:03:07", ""))

	d, ok := ExtractDate(data)
	require.True(t, ok)
	assert.Equal(t, "2026-01-25", d.Key)
	assert.Equal(t, time.Date(2026, 1, 25, 14, 3, 7, 0, time.UTC), d.Time)
}

func TestExtractDate_OriginalBeatsDateTime(t *testing.T) {
	data := jpegWithExif(tiffBlock(binary.BigEndian, "2026:02:04 07:30:00", "2026:03:01 10:00:00"))

	d, ok := ExtractDate(data)
	require.True(t, ok)
	assert.Equal(t, "2026-02-04", d.Key)
}

func TestExtractDate_FallsBackToDateTime(t *testing.T) {
	data := jpegWithExif(tiffBlock(binary.BigEndian, "", "2026:02:09 16:45:12"))

	d, ok := ExtractDate(data)
	require.True(t, ok)
	assert.Equal(t, "2026-02-09", d.Key)
}

func TestExtractDate_Rejects(t *testing.T) {
	valid := jpegWithExif(tiffBlock(binary.LittleEndian, "2026:01:25 14:03:07", ""))

	tests := map[string][]byte{
		"empty":       nil,
		"png header":  {0x89, 'P', 'N', 'G', 0x0D, 0x0A},
		"no exif":     {0xFF, 0xD8, 0xFF, 0xD9},
		"short app1":  {0xFF, 0xD8, 0xFF, 0xE1, 0x00, 0x00, 0x00, 0x00},
		"app1 len 1":  {0xFF, 0xD8, 0xFF, 0xE1, 0x00, 0x01, 0x00, 0x00},
		"truncated":   valid[:40],
		"bad date":    jpegWithExif(tiffBlock(binary.LittleEndian, "2026:13:45 99:00:00", "")),
		"not a date":  jpegWithExif(tiffBlock(binary.LittleEndian, "yesterday", "")),
		"bad tiff id": jpegWithExif(append([]byte("XX"), tiffBlock(binary.LittleEndian, "2026:01:25 14:03:07", "")[2:]...)),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, ok := ExtractDate(data)
			assert.False(t, ok)
		})
	}
}

func TestEarliest(t *testing.T) {
	later := jpegWithExif(tiffBlock(binary.LittleEndian, "2026:01:26 08:00:00", ""))
	earlier := jpegWithExif(tiffBlock(binary.BigEndian, "2026:01:25 23:59:59", ""))

	d, ok := Earliest(later, []byte("junk"), earlier)
	require.True(t, ok)
	assert.Equal(t, "2026-01-25", d.Key)

	_, ok = Earliest([]byte("junk"))
	assert.False(t, ok)
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x += 7 {
		img.Set(x, x%h, color.RGBA{R: 200, G: 80, B: 20, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCompress(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{"landscape", 2400, 1600, 1200, 800},
		{"portrait", 900, 1800, 600, 1200},
		{"small untouched", 300, 200, 300, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Compress(encodePNG(t, tt.w, tt.h))
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, out.Width)
			assert.Equal(t, tt.wantH, out.Height)

			cfg, err := jpeg.DecodeConfig(bytes.NewReader(out.Data))
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, cfg.Width)
			assert.Equal(t, tt.wantH, cfg.Height)
		})
	}

	_, err := Compress([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

type fakeObjects struct {
	puts    map[string][]byte
	deleted []string
	err     error
}

func (f *fakeObjects) Put(_ context.Context, path string, data []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[path] = data
	return "https://cdn.example/" + path, nil
}

func (f *fakeObjects) Delete(_ context.Context, path string) error {
	f.deleted = append(f.deleted, path)
	return nil
}

func TestUploader_Upload(t *testing.T) {
	var raw bytes.Buffer
	require.NoError(t, jpeg.Encode(&raw, image.NewRGBA(image.Rect(0, 0, 1600, 1200)), nil))
	encoded := raw.Bytes()

	// Splice an APP1 segment right after SOI.
	withExif := append([]byte{0xFF, 0xD8}, app1(tiffBlock(binary.LittleEndian, "2026:01:29 06:12:00", ""))...)
	withExif = append(withExif, encoded[2:]...)

	objects := &fakeObjects{}
	u := NewUploader(objects, nil)
	u.now = func() time.Time { return time.UnixMilli(1769700000000) }

	got, err := u.Upload(context.Background(), withExif, "Harry", "2026-01-29")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-29", got.TakenOn)
	assert.Equal(t, 1200, got.Photo.Width)
	assert.Equal(t, 900, got.Photo.Height)
	assert.Regexp(t, `^photos/2026-01-29/Harry_1769700000000_[0-9a-f]{6}\.jpg$`, got.Photo.Path)
	assert.Equal(t, "https://cdn.example/"+got.Photo.Path, got.Photo.URL)
	assert.Contains(t, objects.puts, got.Photo.Path)

	require.NoError(t, u.Delete(context.Background(), got.Photo.Path))
	assert.Equal(t, []string{got.Photo.Path}, objects.deleted)
}

func TestUploader_PutFailure(t *testing.T) {
	u := NewUploader(&fakeObjects{err: errors.New("bucket missing")}, nil)

	_, err := u.Upload(context.Background(), encodePNG(t, 10, 10), "Trent", "2026-02-01")
	assert.ErrorContains(t, err, "bucket missing")
}
