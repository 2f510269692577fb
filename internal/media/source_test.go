package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
)

func writeIVF(t *testing.T, fourCC string, frames int) string {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("DKIF")
	binary.Write(&buf, binary.LittleEndian, uint16(0))  // version
	binary.Write(&buf, binary.LittleEndian, uint16(32)) // header size
	buf.WriteString(fourCC)
	binary.Write(&buf, binary.LittleEndian, uint16(640))
	binary.Write(&buf, binary.LittleEndian, uint16(480))
	binary.Write(&buf, binary.LittleEndian, uint32(30)) // timebase denominator
	binary.Write(&buf, binary.LittleEndian, uint32(1))  // timebase numerator
	binary.Write(&buf, binary.LittleEndian, uint32(frames))
	binary.Write(&buf, binary.LittleEndian, uint32(0))

	for i := 0; i < frames; i++ {
		payload := bytes.Repeat([]byte{byte(i + 1)}, 10)
		binary.Write(&buf, binary.LittleEndian, uint32(len(payload)))
		binary.Write(&buf, binary.LittleEndian, uint64(i))
		buf.Write(payload)
	}

	path := filepath.Join(t.TempDir(), "in.ivf")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestIVFSourceTracks(t *testing.T) {
	path := writeIVF(t, "VP80", 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &IVFSource{Path: path}
	tracks, err := src.Tracks(ctx)
	if err != nil {
		t.Fatalf("Tracks failed: %v", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("got %d tracks, want 1", len(tracks))
	}

	track, ok := tracks[0].(*webrtc.TrackLocalStaticSample)
	if !ok {
		t.Fatalf("track type = %T", tracks[0])
	}
	if track.Kind() != webrtc.RTPCodecTypeVideo {
		t.Errorf("kind = %s, want video", track.Kind())
	}
	if track.Codec().MimeType != webrtc.MimeTypeVP8 {
		t.Errorf("codec = %s", track.Codec().MimeType)
	}

	// let the pump loop over the end of the file at least once
	time.Sleep(200 * time.Millisecond)
}

func TestIVFSourceErrors(t *testing.T) {
	ctx := context.Background()

	if _, err := (&IVFSource{Path: filepath.Join(t.TempDir(), "missing.ivf")}).Tracks(ctx); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v", err)
	}

	path := writeIVF(t, "H264", 1)
	if _, err := (&IVFSource{Path: path}).Tracks(ctx); !errors.Is(err, ErrUnsupportedCodec) {
		t.Errorf("unsupported codec err = %v", err)
	}

	garbage := filepath.Join(t.TempDir(), "garbage.ivf")
	os.WriteFile(garbage, []byte("not an ivf file at all, not even close"), 0644)
	if _, err := (&IVFSource{Path: garbage}).Tracks(ctx); err == nil {
		t.Error("expected header error for garbage input")
	}
}

func TestFrameDuration(t *testing.T) {
	tests := []struct {
		den, num uint32
		want     time.Duration
	}{
		{30, 1, time.Second / 30},
		{0, 1, defaultFrameDuration},
		{90000, 1, defaultFrameDuration},
		{1000, 40, 40 * time.Millisecond},
	}
	for _, tt := range tests {
		h := &ivfreader.IVFFileHeader{TimebaseDenominator: tt.den, TimebaseNumerator: tt.num}
		if got := frameDuration(h); got != tt.want {
			t.Errorf("frameDuration(%d/%d) = %v, want %v", tt.num, tt.den, got, tt.want)
		}
	}
}
