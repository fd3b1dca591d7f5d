// Package audio answers the two questions scoring asks about stored
// response audio: does it exist, and how long is it.
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

// DefaultDurationSec is assumed when a file's length cannot be determined.
const DefaultDurationSec = 30.0

// compressedBytesPerSecond is a rough bitrate used to estimate the length of
// compressed recordings.
const compressedBytesPerSecond = 16000

// MaxUploadBytes bounds a stored recording.
const MaxUploadBytes = 50 << 20

// ErrTooLarge is returned by Save for recordings above MaxUploadBytes.
var ErrTooLarge = errors.New("audio file too large")

// ErrInvalidRef is returned for references that are absolute or escape Root.
var ErrInvalidRef = errors.New("invalid audio reference")

// Local resolves audio references against a directory on disk.
type Local struct {
	Root string
}

// Path resolves a reference to a file path under Root. References that are
// absolute or climb out of Root resolve to "".
func (l Local) Path(ref string) string {
	if !filepath.IsLocal(ref) {
		return ""
	}
	if l.Root == "" {
		return ref
	}
	return filepath.Join(l.Root, ref)
}

// Exists reports whether the referenced file exists under Root and is a
// regular file.
func (l Local) Exists(ref string) bool {
	path := l.Path(ref)
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Save stores an uploaded recording under Root as
// <session>_<question>_<uuid>.<ext> and returns its reference.
func (l Local) Save(sessionID, questionID, filename string, r io.Reader) (string, error) {
	ext := sanitize(strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."))
	if ext == "" {
		ext = "webm"
	}
	ref := fmt.Sprintf("%s_%s_%s.%s", sanitize(sessionID), sanitize(questionID),
		strings.ReplaceAll(uuid.NewString(), "-", ""), ext)

	if l.Root != "" {
		if err := os.MkdirAll(l.Root, 0o755); err != nil {
			return "", fmt.Errorf("create audio dir: %w", err)
		}
	}
	path := l.Path(ref)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, MaxUploadBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > MaxUploadBytes {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write audio file: %w", err)
	}
	return ref, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-') {
			return r
		}
		return -1
	}, s)
}

// Duration returns the length of the referenced recording in seconds and
// whether the figure is exact. WAV files are measured from their frame
// count; other formats are estimated from their size.
func (l Local) Duration(ref string) (float64, bool, error) {
	path := l.Path(ref)
	if path == "" {
		return 0, false, fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return Duration(path)
}

// Duration measures the file at path. See Local.Duration.
func Duration(path string) (float64, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false, fmt.Errorf("stat audio: %w", err)
	}
	if Format(path) == "wav" {
		if sec, err := wavDuration(path); err == nil && sec > 0 {
			return sec, true, nil
		}
	}
	if info.Size() == 0 {
		return 0, false, errors.New("empty audio file")
	}
	return float64(info.Size()) / compressedBytesPerSecond, false, nil
}

func wavDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if err := d.FwdToPCM(); err != nil {
		return 0, fmt.Errorf("read wav header: %w", err)
	}
	frameBytes := int(d.NumChans) * int(d.BitDepth) / 8
	if d.SampleRate == 0 || frameBytes == 0 {
		return 0, errors.New("wav header has no sample layout")
	}
	frames := float64(d.PCMSize) / float64(frameBytes)
	return frames / float64(d.SampleRate), nil
}

var extFormats = map[string]string{
	".wav":  "wav",
	".webm": "webm",
	".mp3":  "mp3",
	".mp4":  "mp4",
	".m4a":  "mp4",
	".ogg":  "ogg",
	".oga":  "ogg",
	".opus": "ogg",
}

// Format names the container of an audio file as the assessment provider
// expects it: wav, webm, mp3, mp4 or ogg. The content is sniffed first, then
// the extension is consulted; webm is the last resort since browsers record
// in it by default.
func Format(path string) string {
	if mt, err := mimetype.DetectFile(path); err == nil {
		for m := mt; m != nil; m = m.Parent() {
			if f, ok := extFormats[m.Extension()]; ok {
				return f
			}
		}
	}
	if f, ok := extFormats[strings.ToLower(filepath.Ext(path))]; ok {
		return f
	}
	return "webm"
}
