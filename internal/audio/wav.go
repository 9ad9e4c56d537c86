package audio

import (
	"fmt"
	"io"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV encodes the buffer as a 16-bit PCM WAV file, entirely in memory.
func (b Buffer) WAV() ([]byte, error) {
	if b.Empty() {
		return nil, fmt.Errorf("no samples to encode")
	}

	ws := &memWriteSeeker{}
	enc := wav.NewEncoder(ws, b.SampleRate, 16, b.Channels, 1)

	data := make([]int, len(b.Samples))
	for i, s := range b.Samples {
		data[i] = int(s)
	}
	ibuf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: b.Channels, SampleRate: b.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	if err := enc.Write(ibuf); err != nil {
		return nil, fmt.Errorf("wav write failed: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("wav close failed: %w", err)
	}

	return ws.buf, nil
}

// memWriteSeeker adapts a byte slice to io.WriteSeeker so the WAV encoder can
// patch the header without touching disk.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if need := m.pos + len(p); need > len(m.buf) {
		if need > cap(m.buf) {
			grown := make([]byte, len(m.buf), need*2)
			copy(grown, m.buf)
			m.buf = grown
		}
		m.buf = m.buf[:need]
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(m.pos) + offset
	case io.SeekEnd:
		pos = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence: %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative seek position: %d", pos)
	}
	m.pos = int(pos)
	return pos, nil
}
