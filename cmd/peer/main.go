// Headless peer: connects to the relay, searches for a partner,
// negotiates a call, and bridges chat to stdin/stdout. Type a line to
// send it; /next re-rolls the partner; /quit exits.
package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/paircast/paircast/internal/config"
	"github.com/paircast/paircast/internal/domain"
	"github.com/paircast/paircast/internal/media"
	"github.com/paircast/paircast/internal/relay"
	"github.com/paircast/paircast/internal/rtc"
	"github.com/paircast/paircast/internal/session"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	conn, err := relay.Dial(ctx, cfg.RelayURL, relay.Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		WriteTimeout: cfg.WriteTimeout,
		SendBuffer:   cfg.SendBuffer,
	})
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.RelayURL).Msg("relay dial")
	}
	defer conn.Close()

	var source media.Source = media.NewDevices()
	if os.Getenv("PAIRCAST_NO_CAPTURE") != "" {
		source = media.NewStatic()
	}

	ctl := session.New(conn, conn.Events(), source,
		session.PionEngines(rtc.Configuration(cfg.StunURLs)),
		session.Options{
			RematchDelay:    cfg.RematchDelay,
			RematchMaxDelay: cfg.RematchMaxDelay,
		})

	ctl.OnState = func(s domain.State) {
		log.Info().Str("state", s.String()).Msg("session")
	}
	ctl.OnChatMessage = func(msg domain.ChatMessage) {
		log.Info().Str("author", msg.Author).Str("text", msg.Text).Msg("chat")
	}
	ctl.OnRemoteTrack = func(track *webrtc.TrackRemote) {
		log.Info().Str("kind", track.Kind().String()).Msg("receiving remote media")
	}
	ctl.OnError = func(err error) {
		log.Error().Err(err).Msg("session error")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctl.Run(ctx)
	}()

	if err := ctl.Find(); err != nil {
		log.Error().Err(err).Msg("find")
	}

	go readInput(cancel, ctl)

	<-done
	log.Info().Msg("bye")
}

func readInput(cancel context.CancelFunc, ctl *session.Controller) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit":
			cancel()
			return
		case line == "/next":
			ctl.Stop()
			if err := ctl.Find(); err != nil {
				log.Error().Err(err).Msg("find")
			}
		default:
			if err := ctl.SendChat(line); err != nil {
				log.Warn().Err(err).Msg("chat not sent")
			}
		}
	}
}
