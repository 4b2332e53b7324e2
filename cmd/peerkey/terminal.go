package main

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"github.com/pterm/pterm"

	"peerkey/native/internal/domain"
)

// terminal is the key surface of the CLI. Interactive mode uses pterm
// prompts; otherwise keys are read line by line from stdin.
type terminal struct {
	interactive bool
	in          *bufio.Reader

	mu  sync.Mutex
	app domain.AppState
}

func newTerminal(interactive bool) *terminal {
	return &terminal{
		interactive: interactive,
		in:          bufio.NewReaderSize(os.Stdin, 64*1024),
	}
}

func (t *terminal) ShowLocalKey(text string) {
	pterm.Println()
	pterm.Info.Println("Send this key to your peer:")
	pterm.Println()
	pterm.Println(text)
	pterm.Println()
}

func (t *terminal) ClearKeys() {
	pterm.DefaultSection.Println("Keys exchanged")
}

func (t *terminal) Notify(msg string) {
	pterm.Warning.Println(msg)
}

// appState reports changes of the application-wide connection flag.
func (t *terminal) appState(s domain.AppState) {
	t.mu.Lock()
	prev := t.app
	t.app = s
	t.mu.Unlock()

	if msg := appStateMessage(prev, s); msg != "" {
		pterm.Info.Println(msg)
	}
}

func appStateMessage(prev, next domain.AppState) string {
	switch {
	case prev == next:
		return ""
	case next == domain.AppStateConnected:
		return "Call established, media is flowing once the link is up."
	default:
		return "Call ended."
	}
}

func (t *terminal) working(msg string) {
	pterm.Info.Println(msg + "...")
}

func (t *terminal) connected() {
	pterm.Success.Println("Connected. Press Ctrl+C to hang up.")
}

func (t *terminal) failed(err error) {
	pterm.Error.Println(err)
	pterm.Println()
}

func (t *terminal) askSetup(media domain.MediaOption) (string, domain.MediaOption) {
	const (
		start = "Start a call  - create an offer key"
		join  = "Join a call   - paste an offer key"
	)
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{start, join}).
		WithDefaultText("Select your role").
		Show()
	role := roleOffer
	if choice == join {
		role = roleAnswer
	}

	var names []string
	for _, o := range domain.MediaOptions {
		names = append(names, o.String())
	}
	picked, _ := pterm.DefaultInteractiveSelect.
		WithOptions(names).
		WithDefaultOption(media.String()).
		WithDefaultText("Select media").
		Show()
	if m, err := domain.ParseMediaOption(picked); err == nil {
		media = m
	}

	pterm.Println()
	return role, media
}

// awaitSent returns once the user has passed the offer key on.
func (t *terminal) awaitSent() error {
	if t.interactive {
		_, err := pterm.DefaultInteractiveConfirm.
			WithDefaultText("Key sent to your peer?").
			WithDefaultValue(true).
			Show()
		return err
	}
	pterm.Info.Println("Press Enter once the key is sent.")
	_, err := t.in.ReadString('\n')
	return err
}

func (t *terminal) readKey(prompt string) (string, error) {
	if t.interactive {
		return pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()
	}
	pterm.Info.Println(prompt + ":")
	line, err := t.in.ReadString('\n')
	if err != nil && strings.TrimSpace(line) == "" {
		return "", err
	}
	return line, nil
}
