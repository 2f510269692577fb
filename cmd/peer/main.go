// Command peer joins a room as the broadcaster or as a viewer.
//
//	peer -role broadcaster -room R42 -name Carl -ivf video.ivf
//	peer -role viewer -room R42 -name Ann -out received.ivf
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mossy-p/webrtc-broadcast/config"
	"github.com/mossy-p/webrtc-broadcast/internal/media"
	"github.com/mossy-p/webrtc-broadcast/internal/role"
	"github.com/mossy-p/webrtc-broadcast/internal/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Load()

	mode := flag.String("role", "viewer", "broadcaster or viewer")
	room := flag.String("room", "", "room to join")
	name := flag.String("name", "", "display name")
	signalURL := flag.String("signal", cfg.Peer.SignalURL, "relay websocket URL")
	ice := flag.String("ice", strings.Join(cfg.Peer.ICEServers, ","), "comma-separated ICE server URLs")
	timeout := flag.Duration("timeout", cfg.Peer.NegotiationTimeout, "give up on a peer that is not connected within this time")
	ivf := flag.String("ivf", "", "IVF file to broadcast (broadcaster)")
	out := flag.String("out", "", "IVF file to record into (viewer, default discard)")
	flag.Parse()

	zerolog.SetGlobalLevel(cfg.LogLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *mode, *room, *name, *signalURL, splitList(*ice), *timeout, *ivf, *out); err != nil {
		log.Fatal().Err(err).Msg("Peer stopped")
	}
}

func run(ctx context.Context, mode, room, name, signalURL string, iceServers []string, timeout time.Duration, ivf, out string) error {
	if err := role.Validate(room, name); err != nil {
		return err
	}
	switch {
	case mode != "broadcaster" && mode != "viewer":
		return errors.New("-role must be broadcaster or viewer")
	case mode == "broadcaster" && ivf == "":
		return errors.New("-ivf is required to broadcast")
	}

	factory, err := media.NewFactory(iceServers, log.Logger.Level(zerolog.WarnLevel))
	if err != nil {
		return err
	}

	var sink role.TrackSink = media.DiscardSink{}
	if out != "" {
		sink = &media.IVFSink{Path: out}
	}

	t, err := transport.Dial(ctx, signalURL)
	if err != nil {
		return err
	}
	defer t.Close()

	controller := role.New(t, factory, sink, timeout)
	defer func() {
		leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		controller.Leave(leaveCtx)
	}()

	if mode == "broadcaster" {
		err = controller.Broadcast(ctx, room, name, &media.IVFSource{Path: ivf})
	} else {
		err = controller.View(ctx, room, name)
	}
	if err != nil {
		return err
	}

	err = t.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func splitList(s string) []string {
	var list []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			list = append(list, part)
		}
	}
	return list
}
