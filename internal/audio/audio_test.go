package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// pcmWAV builds a 16-bit mono PCM WAV of the given length.
func pcmWAV(sampleRate, seconds int) []byte {
	dataSize := sampleRate * 2 * seconds
	buf := make([]byte, 44+dataSize)
	copy(buf[0:], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(36+dataSize))
	copy(buf[8:], "WAVE")
	copy(buf[12:], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:], 2)
	binary.LittleEndian.PutUint16(buf[34:], 16)
	copy(buf[36:], "data")
	binary.LittleEndian.PutUint32(buf[40:], uint32(dataSize))
	return buf
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestDuration(t *testing.T) {
	dir := t.TempDir()
	wavPath := writeFile(t, dir, "answer.wav", pcmWAV(8000, 3))
	// 48000 bytes of an ID3-tagged mp3 is estimated at 3 seconds.
	mp3 := make([]byte, 48000)
	copy(mp3, "ID3\x03\x00\x00\x00\x00\x00\x00")
	mp3Path := writeFile(t, dir, "answer.mp3", mp3)

	tests := []struct {
		name  string
		path  string
		want  float64
		exact bool
	}{
		{"wav is measured", wavPath, 3, true},
		{"compressed is estimated", mp3Path, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, exact, err := Duration(tt.path)
			if err != nil {
				t.Fatalf("Duration: %v", err)
			}
			if math.Abs(got-tt.want) > 0.01 {
				t.Errorf("got %.3fs, want %.3fs", got, tt.want)
			}
			if exact != tt.exact {
				t.Errorf("exact = %v, want %v", exact, tt.exact)
			}
		})
	}

	if _, _, err := Duration(filepath.Join(dir, "missing.wav")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFormat(t *testing.T) {
	dir := t.TempDir()
	ogg := append([]byte("OggS\x00\x02"), make([]byte, 64)...)
	tests := []struct {
		name string
		path string
		want string
	}{
		{"wav content", writeFile(t, dir, "a.bin", pcmWAV(8000, 1)), "wav"},
		{"mp3 content", writeFile(t, dir, "b.mp3", append([]byte("ID3\x03\x00"), make([]byte, 64)...)), "mp3"},
		{"ogg content", writeFile(t, dir, "c.ogg", ogg), "ogg"},
		{"extension fallback", writeFile(t, dir, "d.m4a", []byte("not really audio")), "mp4"},
		{"last resort", writeFile(t, dir, "e.dat", []byte("???")), "webm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.path); got != tt.want {
				t.Errorf("Format = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLocal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "r.wav", pcmWAV(16000, 2))
	l := Local{Root: dir}
	if !l.Exists("r.wav") {
		t.Error("expected r.wav to exist")
	}
	if l.Exists("other.wav") || l.Exists("") {
		t.Error("unexpected existence")
	}
	sec, exact, err := l.Duration("r.wav")
	if err != nil || !exact || math.Abs(sec-2) > 0.01 {
		t.Errorf("Duration = %v, %v, %v", sec, exact, err)
	}
}

func TestLocalRejectsOutsideRoot(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "uploads")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	secret := writeFile(t, dir, "secret.wav", pcmWAV(16000, 1))
	writeFile(t, root, "inside.wav", pcmWAV(16000, 1))
	l := Local{Root: root}

	tests := []struct {
		name string
		ref  string
	}{
		{"absolute", secret},
		{"absolute inside root", filepath.Join(root, "inside.wav")},
		{"parent", "../secret.wav"},
		{"nested parent", "a/../../secret.wav"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if p := l.Path(tt.ref); p != "" {
				t.Errorf("Path(%q) = %q, want empty", tt.ref, p)
			}
			if l.Exists(tt.ref) {
				t.Errorf("Exists(%q) = true", tt.ref)
			}
			if _, _, err := l.Duration(tt.ref); !errors.Is(err, ErrInvalidRef) {
				t.Errorf("Duration(%q) error = %v, want ErrInvalidRef", tt.ref, err)
			}
		})
	}
}

func TestSave(t *testing.T) {
	l := Local{Root: filepath.Join(t.TempDir(), "uploads")}
	data := pcmWAV(8000, 1)

	ref, err := l.Save("sess-1", "A1-OR-001", "answer.WAV", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(ref, "sess-1_A1-OR-001_") || !strings.HasSuffix(ref, ".wav") {
		t.Errorf("unexpected ref %q", ref)
	}
	if !l.Exists(ref) {
		t.Fatalf("saved file %q not found", ref)
	}
	if sec, exact, err := l.Duration(ref); err != nil || !exact || math.Abs(sec-1) > 1e-9 {
		t.Errorf("duration = %v, %v, %v", sec, exact, err)
	}

	ref, err = l.Save("../../etc", "x/y", "", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(ref, "etc_xy_") || !strings.HasSuffix(ref, ".webm") || strings.Contains(ref, "/") {
		t.Errorf("reference not sanitized: %q", ref)
	}
}

func TestSaveTooLarge(t *testing.T) {
	l := Local{Root: t.TempDir()}
	big := bytes.NewReader(make([]byte, MaxUploadBytes+1))
	if _, err := l.Save("s", "q", "a.webm", big); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	entries, _ := os.ReadDir(l.Root)
	if len(entries) != 0 {
		t.Errorf("oversized upload left %d files behind", len(entries))
	}
}
