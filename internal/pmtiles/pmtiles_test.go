package pmtiles

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileID(t *testing.T) {
	tests := []struct {
		z    uint8
		x, y uint32
		want uint64
	}{
		{0, 0, 0, 0},
		{1, 0, 0, 1},
		{1, 0, 1, 2},
		{1, 1, 1, 3},
		{1, 1, 0, 4},
		{2, 0, 0, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TileID(tt.z, tt.x, tt.y), "%d/%d/%d", tt.z, tt.x, tt.y)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		RootOffset:          HeaderLen,
		RootLength:          40,
		MetadataOffset:      167,
		MetadataLength:      90,
		TileDataOffset:      257,
		TileDataLength:      1000,
		AddressedTilesCount: 3,
		TileEntriesCount:    3,
		TileContentsCount:   3,
		Clustered:           true,
		InternalCompression: Gzip,
		TileCompression:     Gzip,
		TileType:            Mvt,
		MinZoom:             2,
		MaxZoom:             14,
		MinLonE7:            -1_390_000_000,
		MaxLatE7:            600_000_000,
	}
	got, err := DecodeHeader(EncodeHeader(h))
	require.NoError(t, err)
	assert.Equal(t, h, got)

	_, err = DecodeHeader([]byte("nope"))
	assert.Error(t, err)
}

func TestWrite(t *testing.T) {
	tiles := []Tile{
		{Z: 1, X: 1, Y: 0, Data: []byte("dddd")},
		{Z: 0, X: 0, Y: 0, Data: []byte("a")},
		{Z: 1, X: 0, Y: 0, Data: []byte("bb")},
	}

	var buf bytes.Buffer
	err := Write(&buf, Archive{
		Name:     "rec-resources",
		MaxZoom:  1,
		Bounds:   Bounds{MinLon: -130, MinLat: 48, MaxLon: -114, MaxLat: 60},
		Metadata: map[string]any{"attribution": "test"},
	}, tiles)
	require.NoError(t, err)

	b := buf.Bytes()
	h, err := DecodeHeader(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), h.TileEntriesCount)
	assert.Equal(t, int32(-1_300_000_000), h.MinLonE7)
	assert.Equal(t, uint64(len(b)), h.TileDataOffset+h.TileDataLength)

	entries, err := DecodeDirectory(b[h.RootOffset : h.RootOffset+h.RootLength])
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []uint64{0, 1, 4}, []uint64{entries[0].TileID, entries[1].TileID, entries[2].TileID})

	data := b[h.TileDataOffset:]
	assert.Equal(t, "a", string(data[entries[0].Offset:entries[0].Offset+uint64(entries[0].Length)]))
	assert.Equal(t, "dddd", string(data[entries[2].Offset:entries[2].Offset+uint64(entries[2].Length)]))

	raw, err := gunzip(b[h.MetadataOffset : h.MetadataOffset+h.MetadataLength])
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, "rec-resources", meta["name"])
	assert.Equal(t, "test", meta["attribution"])
}

func TestWriteRejects(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Write(&buf, Archive{}, nil))

	dup := []Tile{{Z: 3, X: 1, Y: 1}, {Z: 3, X: 1, Y: 1}}
	assert.Error(t, Write(&buf, Archive{}, dup))
}
