package processor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// DefaultICOSizes are the square resolutions embedded in every icon.
var DefaultICOSizes = []int{16, 32, 48, 64, 128, 256}

const (
	icoHeaderSize = 6
	icoEntrySize  = 16
)

type ICOConverter struct {
	Sizes []int
}

func NewICOConverter(sizes []int) *ICOConverter {
	if len(sizes) == 0 {
		sizes = DefaultICOSizes
	}
	return &ICOConverter{Sizes: sizes}
}

// Convert resamples img independently at every size and packs the PNG-encoded
// frames into a single ICO container.
func (c *ICOConverter) Convert(img image.Image) ([]byte, error) {
	frames := make([][]byte, 0, len(c.Sizes))
	for _, size := range c.Sizes {
		if size < 1 || size > 256 {
			return nil, fmt.Errorf("ico size %d out of range", size)
		}
		resized := imaging.Resize(img, size, size, imaging.Lanczos)
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
			return nil, fmt.Errorf("encode %dx%d frame: %w", size, size, err)
		}
		frames = append(frames, buf.Bytes())
	}

	var out bytes.Buffer
	header := []uint16{0, 1, uint16(len(frames))}
	if err := binary.Write(&out, binary.LittleEndian, header); err != nil {
		return nil, err
	}

	offset := uint32(icoHeaderSize + icoEntrySize*len(frames))
	for i, frame := range frames {
		dim := byte(c.Sizes[i] % 256) // 0 encodes 256
		entry := struct {
			Width, Height, Colors, Reserved byte
			Planes, BitCount                uint16
			BytesInRes, ImageOffset         uint32
		}{dim, dim, 0, 0, 1, 32, uint32(len(frame)), offset}
		if err := binary.Write(&out, binary.LittleEndian, entry); err != nil {
			return nil, err
		}
		offset += uint32(len(frame))
	}
	for _, frame := range frames {
		out.Write(frame)
	}
	return out.Bytes(), nil
}

// ICOSizes lists the frame dimensions declared in an ICO container.
func ICOSizes(data []byte) ([]int, error) {
	if len(data) < icoHeaderSize {
		return nil, errors.New("ico: short header")
	}
	if binary.LittleEndian.Uint16(data[0:2]) != 0 || binary.LittleEndian.Uint16(data[2:4]) != 1 {
		return nil, errors.New("ico: bad header")
	}
	count := int(binary.LittleEndian.Uint16(data[4:6]))
	if len(data) < icoHeaderSize+count*icoEntrySize {
		return nil, errors.New("ico: short directory")
	}

	sizes := make([]int, 0, count)
	for i := 0; i < count; i++ {
		entry := data[icoHeaderSize+i*icoEntrySize:]
		w := int(entry[0])
		if w == 0 {
			w = 256
		}
		length := binary.LittleEndian.Uint32(entry[8:12])
		offset := binary.LittleEndian.Uint32(entry[12:16])
		if uint64(offset)+uint64(length) > uint64(len(data)) {
			return nil, fmt.Errorf("ico: frame %d out of bounds", i)
		}
		sizes = append(sizes, w)
	}
	return sizes, nil
}
