package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/pion/logging"
	"github.com/pterm/pterm"

	"peerkey/native/internal/app"
	"peerkey/native/internal/config"
	"peerkey/native/internal/domain"
	"peerkey/native/internal/negotiator"
	"peerkey/native/internal/webrtc"
)

const helpText = `peerkey - Serverless WebRTC calls set up by copying and pasting keys

Usage:
  peerkey [offer|answer]

One side runs "peerkey offer" and sends the printed key to the other side,
which runs "peerkey answer", pastes it and sends the answer key back.
Without arguments peerkey asks for the role and media interactively.

Environment Variables (optional, also read from .env):
  PEERKEY_MEDIA            audio+video (default), audio, video or none
  PEERKEY_ICE_SERVERS      Comma separated STUN/TURN URLs, or "none"
  PEERKEY_ICE_USERNAME     TURN username
  PEERKEY_ICE_CREDENTIAL   TURN credential
  PEERKEY_GATHER_TIMEOUT   Max wait for ICE gathering (default 10s)
  PEERKEY_CONNECT_TIMEOUT  Max wait for the link after keys are exchanged (default 30s)
  PEERKEY_VIDEO_SOURCE     Annex-B H264 file to send as video
  PEERKEY_AUDIO_SOURCE     Ogg Opus file to send as audio
  PEERKEY_VIDEO_OUT        Write received H264 here ("-" for stdout)
  PEERKEY_AUDIO_OUT        Write received Opus as Ogg here ("-" for stdout)
  PEERKEY_DEBUG            Enable debug logging

Examples:
  # Start a call and play the peer's video
  PEERKEY_VIDEO_OUT=- peerkey offer | ffplay -f h264 -

  # Join a call sending a prerecorded clip
  PEERKEY_VIDEO_SOURCE=clip.h264 PEERKEY_AUDIO_SOURCE=clip.ogg peerkey answer

Options:
  -h, --help  Show this help message
`

const (
	roleOffer  = "offer"
	roleAnswer = "answer"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		fmt.Print(helpText)
		os.Exit(0)
	}

	role := ""
	if len(os.Args) > 1 {
		role = os.Args[1]
	}
	if role != "" && role != roleOffer && role != roleAnswer {
		fmt.Fprintf(os.Stderr, "unknown role %q\n\n%s", role, helpText)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
	lf := cfg.LoggerFactory()
	log := lf.NewLogger("main")

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	video, err := openOutput(cfg.VideoOut)
	if err != nil {
		log.Errorf("video output: %v", err)
		os.Exit(1)
	}
	defer video.Close()
	audio, err := openOutput(cfg.AudioOut)
	if err != nil {
		log.Errorf("audio output: %v", err)
		os.Exit(1)
	}
	defer audio.Close()
	if cfg.VideoOut == "-" || cfg.AudioOut == "-" {
		pterm.SetDefaultOutput(os.Stderr)
	}

	term := newTerminal(role == "")
	state := app.NewState()
	go state.Watch(ctx, term.appState)

	ctl := app.NewController(
		&webrtc.Factory{Config: webrtc.PeerConfig{
			ICEServers:    cfg.ICEServers,
			LoggerFactory: lf,
		}},
		negotiator.Config{
			Devices: &webrtc.Devices{
				VideoSource:   cfg.VideoSource,
				AudioSource:   cfg.AudioSource,
				LoggerFactory: lf,
			},
			Remote:        webrtc.NewRemoteSink(video.writer(), audio.writer(), lf),
			Keys:          term,
			App:           state,
			GatherTimeout: cfg.GatherTimeout,
			LoggerFactory: lf,
		},
	)
	defer ctl.Close()

	if role != "" {
		if err := run(ctx, ctl, term, role, cfg.Media, cfg.ConnectTimeout, log); err != nil {
			log.Errorf("%v", err)
			os.Exit(1)
		}
		return
	}

	// Interactive mode returns to the start screen after a failed attempt.
	for ctx.Err() == nil {
		role, media := term.askSetup(cfg.Media)
		err := run(ctx, ctl, term, role, media, cfg.ConnectTimeout, log)
		if err == nil || ctx.Err() != nil {
			return
		}
		term.failed(err)
	}
}

// run performs one attempt and holds the call until ctx is done or the
// link fails.
func run(ctx context.Context, ctl *app.Controller, term *terminal, role string, media domain.MediaOption, connectTimeout time.Duration, log logging.LeveledLogger) error {
	n := ctl.NewSession(media)
	log.Infof("session %s: %s with %s", n.ID(), role, media)

	switch role {
	case roleOffer:
		term.working("Gathering connection candidates")
		if err := n.StartAsInitiator(ctx); err != nil {
			return err
		}
		if err := term.awaitSent(); err != nil {
			return err
		}
		if err := n.Advance(); err != nil {
			return err
		}
		if _, err := accept(ctx, n, term, "Paste the answer key"); err != nil {
			return err
		}

	case roleAnswer:
		answer, err := accept(ctx, n, term, "Paste the offer key")
		if err != nil {
			return err
		}
		term.ShowLocalKey(answer)
	}

	waitCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	term.working("Waiting for the peer")
	if err := n.WaitConnected(waitCtx); err != nil {
		return fmt.Errorf("wait for link: %w", err)
	}
	term.connected()

	select {
	case <-ctx.Done():
		log.Infof("session %s: shutting down", n.ID())
		return nil
	case <-n.Done():
		if err := n.Err(); err != nil {
			return err
		}
		return nil
	}
}

// accept prompts for the remote key until it is accepted or the attempt
// fails. Blank and unreadable keys are asked for again.
func accept(ctx context.Context, n *negotiator.Negotiator, term *terminal, prompt string) (string, error) {
	for {
		text, err := term.readKey(prompt)
		if err != nil {
			return "", err
		}
		out, err := n.AcceptAsResponder(ctx, text)
		if errors.Is(err, domain.ErrEmptyInput) || errors.Is(err, domain.ErrMalformedInput) {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		return out, err
	}
}

// output is an optional sink for received media.
type output struct {
	w      io.Writer
	closer io.Closer
}

func openOutput(path string) (*output, error) {
	switch path {
	case "":
		return &output{}, nil
	case "-":
		return &output{w: os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &output{w: f, closer: f}, nil
}

func (o *output) writer() io.Writer {
	if o.w == nil {
		return nil
	}
	return o.w
}

func (o *output) Close() error {
	if o.closer == nil {
		return nil
	}
	return o.closer.Close()
}
