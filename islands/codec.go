package islands

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/pthm-cable/sightfield/vision"
)

// Baked volume container: a small binary header plus the raw cell payload,
// the whole stream zstd-compressed. This is the format the offline baker
// emits; the runtime only ever reads it, Save exists for round-trip fixtures.

const (
	fieldMagic   = 0x53464c44 // "SFLD"
	fieldVersion = 1
)

type fieldHeader struct {
	Magic       uint32
	Version     uint32
	Resolution  uint32
	HalfExtents vision.Vec3
}

// Save writes a field to path in the baked container format.
func Save(path string, f *Field) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("islands: create dir: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("islands: create %s: %w", path, err)
	}
	defer out.Close()

	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("islands: zstd writer: %w", err)
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	if err := Encode(bw, f); err != nil {
		return err
	}
	return bw.Flush()
}

// Load reads a baked field container from path.
func Load(path string) (*Field, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("islands: open %s: %w", path, err)
	}
	defer in.Close()

	dec, err := zstd.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("islands: zstd reader: %w", err)
	}
	defer dec.Close()

	return Decode(bufio.NewReaderSize(dec, 64*1024))
}

// Encode writes the uncompressed container body to w.
func Encode(w io.Writer, f *Field) error {
	hdr := fieldHeader{
		Magic:       fieldMagic,
		Version:     fieldVersion,
		Resolution:  uint32(f.Resolution),
		HalfExtents: f.HalfExtents,
	}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("islands: write header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, f.Cells); err != nil {
		return fmt.Errorf("islands: write cells: %w", err)
	}
	return nil
}

// Decode reads the uncompressed container body from r.
func Decode(r io.Reader) (*Field, error) {
	var hdr fieldHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("islands: read header: %w", err)
	}
	if hdr.Magic != fieldMagic {
		return nil, fmt.Errorf("islands: bad magic %#x", hdr.Magic)
	}
	if hdr.Version != fieldVersion {
		return nil, fmt.Errorf("islands: unsupported version %d", hdr.Version)
	}
	if hdr.Resolution < 2 || hdr.Resolution > 512 {
		return nil, fmt.Errorf("islands: implausible resolution %d", hdr.Resolution)
	}

	f := &Field{
		Resolution:  int(hdr.Resolution),
		HalfExtents: hdr.HalfExtents,
		Cells:       make([]float32, int(hdr.Resolution)*int(hdr.Resolution)*int(hdr.Resolution)),
	}
	if err := binary.Read(r, binary.LittleEndian, f.Cells); err != nil {
		return nil, fmt.Errorf("islands: read cells: %w", err)
	}
	return f, nil
}
