// Package wav reads RIFF/WAVE headers of normalized PCM audio.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Info describes the format and data chunk of a PCM WAV file.
type Info struct {
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16
	DataOffset    int64
	DataSize      int64
}

// Duration returns the clip length in seconds.
func (i Info) Duration() float64 {
	bytesPerSecond := int64(i.SampleRate) * int64(i.Channels) * int64(i.BitsPerSample/8)
	if bytesPerSecond == 0 {
		return 0
	}
	return float64(i.DataSize) / float64(bytesPerSecond)
}

// Inspect walks the RIFF chunks up to the data chunk.
func Inspect(r io.ReadSeeker) (Info, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		return Info{}, fmt.Errorf("read riff header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return Info{}, errors.New("not a WAV file")
	}

	var info Info
	offset := int64(12)
	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r, chunkHeader[:]); err != nil {
			return Info{}, fmt.Errorf("read chunk header: %w", err)
		}
		offset += 8
		chunkID := string(chunkHeader[0:4])
		chunkSize := int64(binary.LittleEndian.Uint32(chunkHeader[4:8]))

		switch chunkID {
		case "fmt ":
			buf := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, buf); err != nil {
				return Info{}, fmt.Errorf("read fmt chunk: %w", err)
			}
			if len(buf) < 16 {
				return Info{}, errors.New("invalid fmt chunk")
			}
			info.Channels = binary.LittleEndian.Uint16(buf[2:4])
			info.SampleRate = binary.LittleEndian.Uint32(buf[4:8])
			info.BitsPerSample = binary.LittleEndian.Uint16(buf[14:16])
			offset += chunkSize
			if chunkSize%2 == 1 {
				if _, err := r.Seek(1, io.SeekCurrent); err != nil {
					return Info{}, err
				}
				offset++
			}
		case "data":
			if info.SampleRate == 0 || info.Channels == 0 || info.BitsPerSample == 0 {
				return Info{}, errors.New("missing audio format information")
			}
			info.DataOffset = offset
			info.DataSize = chunkSize
			// Streaming writers leave 0 or 0xFFFFFFFF; fall back to the remaining length.
			if chunkSize == 0 || chunkSize == 0xFFFFFFFF {
				end, err := r.Seek(0, io.SeekEnd)
				if err != nil {
					return Info{}, err
				}
				info.DataSize = end - offset
				if _, err := r.Seek(offset, io.SeekStart); err != nil {
					return Info{}, err
				}
			}
			return info, nil
		default:
			skip := chunkSize
			if skip%2 == 1 {
				skip++
			}
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return Info{}, err
			}
			offset += skip
		}
	}
}

// InspectFile opens path and inspects its header.
func InspectFile(path string) (Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer file.Close()
	return Inspect(file)
}

// DataReader returns a reader over the PCM samples of the open file.
func DataReader(r io.ReadSeeker) (io.Reader, Info, error) {
	info, err := Inspect(r)
	if err != nil {
		return nil, Info{}, err
	}
	if _, err := r.Seek(info.DataOffset, io.SeekStart); err != nil {
		return nil, Info{}, err
	}
	return io.LimitReader(r, info.DataSize), info, nil
}
