package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Raster payloads are fixed-layout float32 planes, serialized as a small
// little-endian header followed by the raw planes.

var imageMagic = [4]byte{'P', 'E', 'I', 'M'}

const codecVersion uint16 = 1

type imageHeader struct {
	Magic    [4]byte
	Version  uint16
	Channels uint32
	Rows     uint32
	Cols     uint32
	ScaleX   float64
	ScaleY   float64
	CSLen    uint16
}

// MarshalSpatialImage serializes a spatial image.
func MarshalSpatialImage(img *SpatialImage) ([]byte, error) {
	want := img.Channels * img.Rows * img.Cols
	if len(img.Data) != want {
		return nil, fmt.Errorf("data has %d values, shape (%d,%d,%d) needs %d",
			len(img.Data), img.Channels, img.Rows, img.Cols, want)
	}

	var buf bytes.Buffer
	hdr := imageHeader{
		Magic:    imageMagic,
		Version:  codecVersion,
		Channels: uint32(img.Channels),
		Rows:     uint32(img.Rows),
		Cols:     uint32(img.Cols),
		ScaleX:   img.ScaleX,
		ScaleY:   img.ScaleY,
		CSLen:    uint16(len(img.CoordinateSystem)),
	}
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return nil, err
	}
	buf.WriteString(img.CoordinateSystem)

	payload := make([]byte, 4*len(img.Data))
	for i, v := range img.Data {
		binary.LittleEndian.PutUint32(payload[4*i:], math.Float32bits(v))
	}
	buf.Write(payload)
	return buf.Bytes(), nil
}

// UnmarshalSpatialImage deserializes a spatial image.
func UnmarshalSpatialImage(data []byte) (*SpatialImage, error) {
	r := bytes.NewReader(data)
	var hdr imageHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("truncated spatial image header: %w", err)
	}
	if hdr.Magic != imageMagic {
		return nil, fmt.Errorf("bad spatial image magic %q", hdr.Magic[:])
	}
	if hdr.Version != codecVersion {
		return nil, fmt.Errorf("unsupported spatial image version %d", hdr.Version)
	}

	cs := make([]byte, hdr.CSLen)
	if _, err := r.Read(cs); err != nil && hdr.CSLen > 0 {
		return nil, fmt.Errorf("truncated coordinate system: %w", err)
	}

	n := int(hdr.Channels) * int(hdr.Rows) * int(hdr.Cols)
	payload := make([]byte, 4*n)
	read, err := r.Read(payload)
	if err != nil || read != len(payload) {
		return nil, fmt.Errorf("truncated spatial image payload: read %d of %d bytes", read, len(payload))
	}
	values := make([]float32, n)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[4*i:]))
	}

	return &SpatialImage{
		Channels:         int(hdr.Channels),
		Rows:             int(hdr.Rows),
		Cols:             int(hdr.Cols),
		ScaleX:           hdr.ScaleX,
		ScaleY:           hdr.ScaleY,
		CoordinateSystem: string(cs),
		Data:             values,
	}, nil
}
