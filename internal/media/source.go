package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/rs/zerolog/log"
)

const defaultFrameDuration = 33 * time.Millisecond

var ErrUnsupportedCodec = errors.New("unsupported ivf codec")

// IVFSource plays an IVF file in a loop into one shared video track.
type IVFSource struct {
	Path string
}

// Tracks opens the file and starts pacing its frames into the returned track
// until ctx is done.
func (s *IVFSource) Tracks(ctx context.Context) ([]webrtc.TrackLocal, error) {
	file, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}

	reader, header, err := ivfreader.NewWith(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read ivf header: %w", err)
	}

	mimeType, err := mimeTypeFor(header.FourCC)
	if err != nil {
		file.Close()
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mimeType}, "video", "broadcast")
	if err != nil {
		file.Close()
		return nil, err
	}

	go s.pump(ctx, file, reader, frameDuration(header), track)

	log.Info().Str("path", s.Path).Str("codec", mimeType).Msg("Streaming IVF file")
	return []webrtc.TrackLocal{track}, nil
}

func (s *IVFSource) pump(ctx context.Context, file *os.File, reader *ivfreader.IVFReader, d time.Duration, track *webrtc.TrackLocalStaticSample) {
	defer file.Close()

	ticker := time.NewTicker(d)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				log.Error().Err(err).Msg("Failed to rewind IVF file")
				return
			}
			if reader, _, err = ivfreader.NewWith(file); err != nil {
				log.Error().Err(err).Msg("Failed to reopen IVF file")
				return
			}
			continue
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to read IVF frame")
			return
		}

		if err := track.WriteSample(pionmedia.Sample{Data: frame, Duration: d}); err != nil {
			log.Error().Err(err).Msg("Failed to write sample")
			return
		}
	}
}

func mimeTypeFor(fourCC string) (string, error) {
	switch fourCC {
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	case "AV01":
		return webrtc.MimeTypeAV1, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCodec, fourCC)
	}
}

func frameDuration(h *ivfreader.IVFFileHeader) time.Duration {
	if h.TimebaseDenominator == 0 || h.TimebaseNumerator == 0 {
		return defaultFrameDuration
	}
	d := time.Duration(h.TimebaseNumerator) * time.Second / time.Duration(h.TimebaseDenominator)
	if d < time.Millisecond {
		return defaultFrameDuration
	}
	return d
}
