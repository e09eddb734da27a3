package wav

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"

	"nexus/internal/testsupport"
)

func TestInspectNormalizedWAV(t *testing.T) {
	data := testsupport.WAVBytes(testsupport.Tone(16000, 3))
	info, err := Inspect(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Fatalf("unexpected format %+v", info)
	}
	if info.DataOffset != 44 || info.DataSize != 32000 {
		t.Fatalf("unexpected data chunk %+v", info)
	}
	if math.Abs(info.Duration()-1.0) > 1e-9 {
		t.Fatalf("duration = %v", info.Duration())
	}
}

func TestDataReaderSkipsExtraChunks(t *testing.T) {
	base := testsupport.WAVBytes([]int16{1, 2, 3})
	// Insert a LIST chunk between fmt and data.
	var buf bytes.Buffer
	buf.Write(base[:36])
	buf.WriteString("LIST")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.Write([]byte{'a', 'b', 'c', 0})
	buf.Write(base[36:])

	r, info, err := DataReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("DataReader: %v", err)
	}
	samples, _ := io.ReadAll(r)
	if len(samples) != 6 || info.DataSize != 6 {
		t.Fatalf("unexpected samples %v (%+v)", samples, info)
	}
	if !bytes.Equal(samples, base[44:]) {
		t.Fatalf("sample bytes differ")
	}
}

func TestInspectRejectsNonWAV(t *testing.T) {
	if _, err := Inspect(bytes.NewReader([]byte("ID3\x03not a wav file"))); err == nil {
		t.Fatal("expected error for non-WAV input")
	}
}
