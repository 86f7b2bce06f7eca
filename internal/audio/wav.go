package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const wavHeaderSize = 44

var ErrEmptyAudio = errors.New("audio: empty pcm")

type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// WriteWAV writes canonical PCM as a mono 16-bit RIFF/WAVE stream.
func WriteWAV(w io.Writer, pcm []byte) error {
	if len(pcm) == 0 {
		return ErrEmptyAudio
	}

	dataSize := uint32(len(pcm))
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    SampleRate,
		ByteRate:      BytesPerSecond,
		BlockAlign:    BytesPerSample,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}
