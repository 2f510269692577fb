package media

import (
	"os"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/rs/zerolog/log"
)

// IVFSink records the first remote VP8 video track into an IVF file and
// drains everything else, including VP8 tracks that arrive later.
type IVFSink struct {
	Path string

	mu        sync.Mutex
	recording bool
}

// claim reports whether the caller may record into Path. Only the first
// call wins.
func (s *IVFSink) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recording {
		return false
	}
	s.recording = true
	return true
}

func (s *IVFSink) HandleTrack(track *webrtc.TrackRemote) {
	l := log.With().Str("track_id", track.ID()).Str("codec", track.Codec().MimeType).Logger()

	if track.Codec().MimeType != webrtc.MimeTypeVP8 {
		l.Info().Msg("Draining track that cannot be recorded")
		drain(track)
		return
	}
	if !s.claim() {
		l.Info().Str("path", s.Path).Msg("Already recording, draining track")
		drain(track)
		return
	}

	file, err := os.Create(s.Path)
	if err != nil {
		l.Error().Err(err).Msg("Failed to create output file")
		drain(track)
		return
	}

	writer, err := ivfwriter.NewWith(file)
	if err != nil {
		file.Close()
		l.Error().Err(err).Msg("Failed to create ivf writer")
		drain(track)
		return
	}
	defer writer.Close()

	l.Info().Str("path", s.Path).Msg("Recording remote track")
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			l.Info().Err(err).Msg("Remote track ended")
			return
		}
		if err := writer.WriteRTP(pkt); err != nil {
			l.Error().Err(err).Msg("Failed to write RTP packet")
			return
		}
	}
}

// DiscardSink reads remote tracks and throws the media away.
type DiscardSink struct{}

func (DiscardSink) HandleTrack(track *webrtc.TrackRemote) {
	log.Info().Str("track_id", track.ID()).Str("kind", track.Kind().String()).Msg("Receiving remote track")
	drain(track)
}

func drain(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}
