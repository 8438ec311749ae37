package storage

import (
	"bytes"
	"fmt"
	"usd/internal/storage/interfaces"
	"usd/internal/structures"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

type ZstdCompression struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func (z *ZstdCompression) Compress(val []byte) ([]byte, error) {
	return z.encoder.EncodeAll(val, make([]byte, 0, len(val)/2)), nil
}

// Decompress passes plain snapshots through untouched; files written with
// either storage.compress setting stay readable.
func (z *ZstdCompression) Decompress(val []byte) ([]byte, error) {
	if !bytes.HasPrefix(val, zstdMagic) {
		return val, nil
	}
	return z.decoder.DecodeAll(val, nil)
}

func (z *ZstdCompression) Close() {
	_ = z.encoder.Close()
	z.decoder.Close()
}

func NewZstdCompressor() (interfaces.CompressorInterface, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &ZstdCompression{encoder: encoder, decoder: decoder}, nil
}

// PlainCompression stores snapshots as-is. It still reads zstd frames.
type PlainCompression struct {
	reader *ZstdCompression
}

func (p *PlainCompression) Compress(val []byte) ([]byte, error) {
	return val, nil
}

func (p *PlainCompression) Decompress(val []byte) ([]byte, error) {
	return p.reader.Decompress(val)
}

func (p *PlainCompression) Close() {
	p.reader.Close()
}

func NewCompressor(conf *structures.Config) (interfaces.CompressorInterface, error) {
	zc, err := NewZstdCompressor()
	if err != nil {
		return nil, err
	}
	if conf.Storage.Compress {
		return zc, nil
	}
	return &PlainCompression{reader: zc.(*ZstdCompression)}, nil
}
