package fits

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/robert-malhotra/go-mwalib/internal/binary"
)

// writeSample writes a primary header, a float image, a scaled int32 image
// and a binary table.
func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.fits")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	primary := NewHeader()
	primary.Set("GPSTIME", 1101503312, "obsid")
	primary.Set("NAXIS", 7, "ignored, written by the writer")
	if err := w.WritePrimary(primary); err != nil {
		t.Fatalf("WritePrimary() error = %v", err)
	}

	img := NewHeader()
	img.Set("MARKER", 1, "")
	data := make([]float32, 12)
	for i := range data {
		data[i] = float32(i) - 0.5
	}
	if err := w.WriteImage(img, []int{4, 3}, data); err != nil {
		t.Fatalf("WriteImage() error = %v", err)
	}

	scaled := NewHeader()
	scaled.Set("BSCALE", 2.0, "")
	scaled.Set("BZERO", 1.0, "")
	if err := w.WriteImageInt32(scaled, []int{3}, []int32{-1, 0, 3}); err != nil {
		t.Fatalf("WriteImageInt32() error = %v", err)
	}

	tbl := NewHeader()
	tbl.Set("EXTNAME", "TILEDATA", "")
	err = w.WriteTable(tbl, []TableColumn{
		{Name: "Input", Format: "1I", Values: []int16{0, 1, 2}},
		{Name: "TileName", Format: "8A", Values: []string{"Tile011", "Tile012", "Tile013"}},
		{Name: "Flag", Format: "1L", Values: []bool{false, true, false}},
		{Name: "North", Format: "1E", Unit: "m", Values: []float32{1.5, -2, 0}},
		{Name: "Length", Format: "1D", Values: []float64{10.25, 0, 3}},
		{Name: "Rx", Format: "1J", Values: []int32{10, 10, 11}},
	})
	if err != nil {
		t.Fatalf("WriteTable() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	return path
}

func TestWriteAndRead(t *testing.T) {
	path := writeSample(t)
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size()%binary.BlockSize != 0 {
		t.Errorf("file size %d is not a whole number of blocks", info.Size())
	}
	if f.NumHDUs() != 4 {
		t.Fatalf("NumHDUs() = %d, want 4", f.NumHDUs())
	}

	primary := f.Primary()
	if primary.Kind() != KindPrimary || primary.NumElements() != 0 {
		t.Errorf("primary kind = %v, elements = %d", primary.Kind(), primary.NumElements())
	}
	if v, err := primary.Header.Int("GPSTIME"); err != nil || v != 1101503312 {
		t.Errorf("GPSTIME = %d, %v", v, err)
	}
	if v, _ := primary.Header.Int("NAXIS"); v != 0 {
		t.Errorf("NAXIS = %d, want 0", v)
	}

	t.Run("float image", func(t *testing.T) {
		h, err := f.HDU(1)
		if err != nil {
			t.Fatal(err)
		}
		if !h.IsImage() || h.Bitpix() != -32 {
			t.Fatalf("kind = %v, bitpix = %d", h.Kind(), h.Bitpix())
		}
		if !reflect.DeepEqual(h.Shape(), []int{4, 3}) {
			t.Errorf("Shape() = %v, want [4 3]", h.Shape())
		}
		got := make([]float32, h.NumElements())
		if err := h.ReadFloat32(got, nil); err != nil {
			t.Fatalf("ReadFloat32() error = %v", err)
		}
		for i, v := range got {
			if want := float32(i) - 0.5; v != want {
				t.Errorf("got[%d] = %v, want %v", i, v, want)
			}
		}
		if err := h.ReadFloat32(make([]float32, 5), nil); !errors.Is(err, ErrSizeMismatch) {
			t.Errorf("short buffer error = %v, want ErrSizeMismatch", err)
		}
	})

	t.Run("scaled image", func(t *testing.T) {
		h, err := f.HDU(2)
		if err != nil {
			t.Fatal(err)
		}
		got := make([]float32, 3)
		if err := h.ReadFloat32(got, nil); err != nil {
			t.Fatalf("ReadFloat32() error = %v", err)
		}
		if want := []float32{-1, 1, 7}; !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("table", func(t *testing.T) {
		h, err := f.HDU(3)
		if err != nil {
			t.Fatal(err)
		}
		if !h.IsTable() || h.Name() != "TILEDATA" {
			t.Fatalf("kind = %v, name = %q", h.Kind(), h.Name())
		}
		if err := h.ReadFloat32(nil, nil); !errors.Is(err, ErrNotImage) {
			t.Errorf("ReadFloat32 on table error = %v, want ErrNotImage", err)
		}
		tbl, err := h.ReadTable()
		if err != nil {
			t.Fatalf("ReadTable() error = %v", err)
		}
		if tbl.NumRows() != 3 {
			t.Fatalf("rows = %d, want 3", tbl.NumRows())
		}

		col := func(name string) int {
			i, err := tbl.ColumnIndex(name)
			if err != nil {
				t.Fatalf("ColumnIndex(%q) error = %v", name, err)
			}
			return i
		}
		if v, err := tbl.Int(2, col("Input")); err != nil || v != 2 {
			t.Errorf("Input[2] = %d, %v", v, err)
		}
		if v, err := tbl.Text(1, col("tilename")); err != nil || v != "Tile012" {
			t.Errorf("TileName[1] = %q, %v", v, err)
		}
		if v, err := tbl.Bool(1, col("Flag")); err != nil || !v {
			t.Errorf("Flag[1] = %v, %v", v, err)
		}
		if v, err := tbl.Float(1, col("North")); err != nil || v != -2 {
			t.Errorf("North[1] = %v, %v", v, err)
		}
		if v, err := tbl.Float(0, col("Length")); err != nil || v != 10.25 {
			t.Errorf("Length[0] = %v, %v", v, err)
		}
		if v, err := tbl.Float(2, col("Rx")); err != nil || v != 11 {
			t.Errorf("Rx[2] = %v, %v", v, err)
		}
		if _, err := tbl.Text(0, col("Rx")); !errors.Is(err, ErrBadValue) {
			t.Errorf("Text on J column error = %v, want ErrBadValue", err)
		}
		if _, err := tbl.ColumnIndex("Gains"); !errors.Is(err, ErrNoSuchColumn) {
			t.Errorf("ColumnIndex(Gains) error = %v, want ErrNoSuchColumn", err)
		}
		if _, err := tbl.Int(3, 0); !errors.Is(err, ErrBadValue) {
			t.Errorf("Int past last row error = %v, want ErrBadValue", err)
		}
	})

	t.Run("datasum", func(t *testing.T) {
		for i := 0; i < f.NumHDUs(); i++ {
			h, _ := f.HDU(i)
			if !h.Header.Has("DATASUM") {
				t.Errorf("HDU %d has no DATASUM", i)
			}
			if err := h.VerifyDataSum(); err != nil {
				t.Errorf("HDU %d VerifyDataSum() error = %v", i, err)
			}
		}
	})

	if _, err := f.HDU(4); !errors.Is(err, ErrNoSuchHDU) {
		t.Errorf("HDU(4) error = %v, want ErrNoSuchHDU", err)
	}
}

func TestDataSumDetectsCorruption(t *testing.T) {
	path := writeSample(t)
	f, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	h, _ := f.HDU(1)
	offset := h.dataOffset
	f.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	raw[offset+5] ^= 0x40
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	f, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	h, _ = f.HDU(1)
	if err := h.VerifyDataSum(); !errors.Is(err, ErrChecksum) {
		t.Errorf("VerifyDataSum() error = %v, want ErrChecksum", err)
	}
}

func TestOpenInvalid(t *testing.T) {
	notSimple := bytes.Repeat([]byte(" "), binary.BlockSize)
	copy(notSimple, padCard("SIMPLE  =                    F"))
	copy(notSimple[cardLen:], padCard("END"))

	tests := []struct {
		name    string
		content []byte
		want    error
	}{
		{"empty file", nil, ErrNotFITS},
		{"text file", []byte("This is not a FITS file"), ErrNotFITS},
		{"binary garbage", bytes.Repeat([]byte{0xFF}, 2*binary.BlockSize), ErrNotFITS},
		{"SIMPLE false", notSimple, ErrNotFITS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.fits")
			if err := os.WriteFile(path, tt.content, 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Open(path); !errors.Is(err, tt.want) {
				t.Errorf("Open() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOpenTruncated(t *testing.T) {
	path := writeSample(t)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	// Drop the table's data block.
	if err := os.Truncate(path, info.Size()-binary.BlockSize); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); !errors.Is(err, ErrTruncated) {
		t.Errorf("Open() error = %v, want ErrTruncated", err)
	}
}

func TestReadAfterClose(t *testing.T) {
	f, err := Open(writeSample(t))
	if err != nil {
		t.Fatal(err)
	}
	h, _ := f.HDU(1)
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if err := h.ReadFloat32(make([]float32, 12), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadFloat32() after Close error = %v, want ErrClosed", err)
	}
}

func TestNewFileFromMemory(t *testing.T) {
	raw, err := os.ReadFile(writeSample(t))
	if err != nil {
		t.Fatal(err)
	}
	f, err := NewFile("memory", bytes.NewReader(raw), int64(len(raw)), nil)
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	if f.NumHDUs() != 4 || f.Name() != "memory" {
		t.Errorf("NumHDUs() = %d, Name() = %q", f.NumHDUs(), f.Name())
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestDecodeFloat32(t *testing.T) {
	tests := []struct {
		name   string
		raw    []byte
		bitpix int
		scale  float64
		zero   float64
		want   []float32
	}{
		{"uint8", []byte{0, 255}, 8, 1, 0, []float32{0, 255}},
		{"int16 scaled", []byte{0xFF, 0xFF, 0x00, 0x03}, 16, 2, 1, []float32{-1, 7}},
		{"int64", []byte{0, 0, 0, 0, 0, 0, 0, 9}, 64, 1, 0, []float32{9}},
		{"float32 with zero", []byte{0x3F, 0x80, 0x00, 0x00}, -32, 1, 0.5, []float32{1.5}},
		{"float64", []byte{0x40, 0x00, 0, 0, 0, 0, 0, 0}, -64, 1, 0, []float32{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := make([]float32, len(tt.want))
			if err := DecodeFloat32(tt.raw, tt.bitpix, tt.scale, tt.zero, got); err != nil {
				t.Fatalf("DecodeFloat32() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if err := DecodeFloat32([]byte{1, 2, 3}, -32, 1, 0, make([]float32, 1)); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("odd length error = %v, want ErrSizeMismatch", err)
	}
}
