package miclevel

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

// wavSource replays a WAV file in a loop at real-time speed.
type wavSource struct {
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func openWAVSource(path string, chunk time.Duration, feed Feed) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, errors.New("not a valid WAV file: " + path)
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, errors.New("empty WAV file: " + path)
	}

	perChunk := int(float64(buf.Format.NumChannels*buf.Format.SampleRate) * chunk.Seconds())
	if perChunk <= 0 {
		return nil, fmt.Errorf("non-positive samples per chunk for %s", path)
	}

	s := &wavSource{stopCh: make(chan struct{})}
	s.wg.Add(1)
	go s.play(buf.Data, buf.SourceBitDepth, perChunk, chunk, feed)
	return s, nil
}

func (s *wavSource) play(data []int, bitDepth, perChunk int, chunk time.Duration, feed Feed) {
	defer s.wg.Done()

	ticker := time.NewTicker(chunk)
	defer ticker.Stop()

	pos := 0
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}
		end := min(pos+perChunk, len(data))
		feed(peakInt(data[pos:end], bitDepth))
		pos = end
		if pos >= len(data) {
			pos = 0
		}
	}
}

func (s *wavSource) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
	})
	return nil
}
