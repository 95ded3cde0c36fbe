// Package pmtiles writes single-directory PMTiles v3 archives.
//
// Archive layout: https://github.com/protomaps/PMTiles/blob/main/spec/v3/spec.md
package pmtiles

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/klauspost/compress/gzip"
)

// Compression identifiers used in the header.
type Compression uint8

const (
	UnknownCompression Compression = 0
	NoCompression      Compression = 1
	Gzip               Compression = 2
)

// TileType identifies the tile payload format.
type TileType uint8

const (
	UnknownTileType TileType = 0
	Mvt             TileType = 1
)

// HeaderLen is the fixed size of the binary header.
const HeaderLen = 127

var magic = []byte("PMTiles")

// Header is the archive header.
type Header struct {
	RootOffset          uint64
	RootLength          uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	AddressedTilesCount uint64
	TileEntriesCount    uint64
	TileContentsCount   uint64
	Clustered           bool
	InternalCompression Compression
	TileCompression     Compression
	TileType            TileType
	MinZoom             uint8
	MaxZoom             uint8
	MinLonE7            int32
	MinLatE7            int32
	MaxLonE7            int32
	MaxLatE7            int32
	CenterZoom          uint8
	CenterLonE7         int32
	CenterLatE7         int32
}

// Entry is one directory entry.
type Entry struct {
	TileID    uint64
	Offset    uint64
	Length    uint32
	RunLength uint32
}

// Tile is an encoded tile addressed by z/x/y.
type Tile struct {
	Z    uint8
	X, Y uint32
	Data []byte
}

// Bounds is a lon/lat bounding box.
type Bounds struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// Archive describes everything but the tile payloads.
type Archive struct {
	Name     string
	MinZoom  uint8
	MaxZoom  uint8
	Bounds   Bounds
	Metadata map[string]any
}

// TileID maps z/x/y onto the Hilbert curve ordering used by the format.
func TileID(z uint8, x, y uint32) uint64 {
	if z == 0 {
		return 0
	}
	id := (uint64(1)<<(2*uint(z)) - 1) / 3
	n := uint32(z - 1)
	for s := uint32(1) << n; s > 0; s >>= 1 {
		rx, ry := s&x, s&y
		id += uint64((3*rx)^ry) << n
		x, y = rotate(s, x, y, rx, ry)
		n--
	}
	return id
}

func rotate(n, x, y, rx, ry uint32) (uint32, uint32) {
	if ry != 0 {
		return x, y
	}
	if rx != 0 {
		x, y = n-1-x, n-1-y
	}
	return y, x
}

// Write encodes tiles as a clustered archive with a single root directory.
// Tile payloads are stored as given and are expected to be gzipped MVT.
func Write(w io.Writer, a Archive, tiles []Tile) error {
	if len(tiles) == 0 {
		return errors.New("pmtiles: no tiles to write")
	}

	sorted := make([]Tile, len(tiles))
	copy(sorted, tiles)
	slices.SortFunc(sorted, func(a, b Tile) int {
		ia, ib := TileID(a.Z, a.X, a.Y), TileID(b.Z, b.X, b.Y)
		switch {
		case ia < ib:
			return -1
		case ia > ib:
			return 1
		}
		return 0
	})

	entries := make([]Entry, 0, len(sorted))
	var data bytes.Buffer
	for _, t := range sorted {
		id := TileID(t.Z, t.X, t.Y)
		if n := len(entries); n > 0 && entries[n-1].TileID == id {
			return fmt.Errorf("pmtiles: duplicate tile %d/%d/%d", t.Z, t.X, t.Y)
		}
		entries = append(entries, Entry{
			TileID:    id,
			Offset:    uint64(data.Len()),
			Length:    uint32(len(t.Data)),
			RunLength: 1,
		})
		data.Write(t.Data)
	}

	meta := map[string]any{
		"name":        a.Name,
		"format":      "pbf",
		"compression": "gzip",
		"minzoom":     a.MinZoom,
		"maxzoom":     a.MaxZoom,
	}
	for k, v := range a.Metadata {
		meta[k] = v
	}
	metaBytes, err := encodeMetadata(meta)
	if err != nil {
		return err
	}
	root, err := encodeDirectory(entries)
	if err != nil {
		return err
	}

	h := Header{
		RootOffset:          HeaderLen,
		RootLength:          uint64(len(root)),
		MetadataOffset:      HeaderLen + uint64(len(root)),
		MetadataLength:      uint64(len(metaBytes)),
		TileDataLength:      uint64(data.Len()),
		AddressedTilesCount: uint64(len(entries)),
		TileEntriesCount:    uint64(len(entries)),
		TileContentsCount:   uint64(len(entries)),
		Clustered:           true,
		InternalCompression: Gzip,
		TileCompression:     Gzip,
		TileType:            Mvt,
		MinZoom:             a.MinZoom,
		MaxZoom:             a.MaxZoom,
		MinLonE7:            e7(a.Bounds.MinLon),
		MinLatE7:            e7(a.Bounds.MinLat),
		MaxLonE7:            e7(a.Bounds.MaxLon),
		MaxLatE7:            e7(a.Bounds.MaxLat),
		CenterZoom:          a.MinZoom,
		CenterLonE7:         e7((a.Bounds.MinLon + a.Bounds.MaxLon) / 2),
		CenterLatE7:         e7((a.Bounds.MinLat + a.Bounds.MaxLat) / 2),
	}
	h.TileDataOffset = h.MetadataOffset + h.MetadataLength

	for _, part := range [][]byte{EncodeHeader(h), root, metaBytes, data.Bytes()} {
		if _, err := w.Write(part); err != nil {
			return fmt.Errorf("pmtiles: write: %w", err)
		}
	}
	return nil
}

func e7(deg float64) int32 { return int32(deg * 1e7) }

// EncodeHeader serializes h into its fixed binary form.
func EncodeHeader(h Header) []byte {
	b := make([]byte, HeaderLen)
	copy(b, magic)
	b[7] = 3
	le := binary.LittleEndian
	for i, v := range []uint64{
		h.RootOffset, h.RootLength, h.MetadataOffset, h.MetadataLength,
		0, 0, // leaf directories
		h.TileDataOffset, h.TileDataLength,
		h.AddressedTilesCount, h.TileEntriesCount, h.TileContentsCount,
	} {
		le.PutUint64(b[8+8*i:], v)
	}
	if h.Clustered {
		b[96] = 1
	}
	b[97] = byte(h.InternalCompression)
	b[98] = byte(h.TileCompression)
	b[99] = byte(h.TileType)
	b[100] = h.MinZoom
	b[101] = h.MaxZoom
	le.PutUint32(b[102:], uint32(h.MinLonE7))
	le.PutUint32(b[106:], uint32(h.MinLatE7))
	le.PutUint32(b[110:], uint32(h.MaxLonE7))
	le.PutUint32(b[114:], uint32(h.MaxLatE7))
	b[118] = h.CenterZoom
	le.PutUint32(b[119:], uint32(h.CenterLonE7))
	le.PutUint32(b[123:], uint32(h.CenterLatE7))
	return b
}

// DecodeHeader parses the fixed binary header.
func DecodeHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderLen {
		return h, errors.New("pmtiles: header too short")
	}
	if !bytes.Equal(b[:7], magic) {
		return h, errors.New("pmtiles: bad magic")
	}
	if b[7] != 3 {
		return h, fmt.Errorf("pmtiles: unsupported version %d", b[7])
	}
	le := binary.LittleEndian
	u := func(i int) uint64 { return le.Uint64(b[8+8*i:]) }
	h.RootOffset, h.RootLength = u(0), u(1)
	h.MetadataOffset, h.MetadataLength = u(2), u(3)
	h.TileDataOffset, h.TileDataLength = u(6), u(7)
	h.AddressedTilesCount, h.TileEntriesCount, h.TileContentsCount = u(8), u(9), u(10)
	h.Clustered = b[96] == 1
	h.InternalCompression = Compression(b[97])
	h.TileCompression = Compression(b[98])
	h.TileType = TileType(b[99])
	h.MinZoom, h.MaxZoom = b[100], b[101]
	h.MinLonE7 = int32(le.Uint32(b[102:]))
	h.MinLatE7 = int32(le.Uint32(b[106:]))
	h.MaxLonE7 = int32(le.Uint32(b[110:]))
	h.MaxLatE7 = int32(le.Uint32(b[114:]))
	h.CenterZoom = b[118]
	h.CenterLonE7 = int32(le.Uint32(b[119:]))
	h.CenterLatE7 = int32(le.Uint32(b[123:]))
	return h, nil
}

func encodeMetadata(meta map[string]any) ([]byte, error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("pmtiles: metadata: %w", err)
	}
	return gzipBytes(raw)
}

// encodeDirectory writes entries column-wise as varints: count, id deltas,
// run lengths, lengths, then offsets (0 meaning contiguous with the previous).
func encodeDirectory(entries []Entry) ([]byte, error) {
	var raw []byte
	raw = binary.AppendUvarint(raw, uint64(len(entries)))

	var last uint64
	for _, e := range entries {
		raw = binary.AppendUvarint(raw, e.TileID-last)
		last = e.TileID
	}
	for _, e := range entries {
		raw = binary.AppendUvarint(raw, uint64(e.RunLength))
	}
	for _, e := range entries {
		raw = binary.AppendUvarint(raw, uint64(e.Length))
	}
	for i, e := range entries {
		if i > 0 && e.Offset == entries[i-1].Offset+uint64(entries[i-1].Length) {
			raw = binary.AppendUvarint(raw, 0)
		} else {
			raw = binary.AppendUvarint(raw, e.Offset+1)
		}
	}
	return gzipBytes(raw)
}

// DecodeDirectory reverses encodeDirectory.
func DecodeDirectory(b []byte) ([]Entry, error) {
	raw, err := gunzip(b)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(raw)
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("pmtiles: directory: %w", err)
	}

	entries := make([]Entry, n)
	read := func(set func(i int, v uint64)) error {
		for i := range entries {
			v, err := binary.ReadUvarint(r)
			if err != nil {
				return fmt.Errorf("pmtiles: directory: %w", err)
			}
			set(i, v)
		}
		return nil
	}

	var last uint64
	steps := []func(i int, v uint64){
		func(i int, v uint64) { last += v; entries[i].TileID = last },
		func(i int, v uint64) { entries[i].RunLength = uint32(v) },
		func(i int, v uint64) { entries[i].Length = uint32(v) },
		func(i int, v uint64) {
			if v == 0 && i > 0 {
				entries[i].Offset = entries[i-1].Offset + uint64(entries[i-1].Length)
			} else {
				entries[i].Offset = v - 1
			}
		},
	}
	for _, step := range steps {
		if err := read(step); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func gzipBytes(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzip(b []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("pmtiles: gunzip: %w", err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
