package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const (
	envNoInteraction = "NO_INTERACTION"
	envCI            = "CI"
	envTerm          = "TERM"
)

// ErrNoInteraction is returned when a prompt is needed but stdin is not a
// terminal.
var ErrNoInteraction = errors.New("interactive input unavailable")

var interactive = true

// ConfigureInteraction decides once per process whether prompts and colour
// are allowed.
func ConfigureInteraction(noInteraction bool) {
	interactive = detectInteractiveMode(noInteraction)
	if interactive {
		lipgloss.SetColorProfile(termenv.ColorProfile())
		return
	}
	lipgloss.SetColorProfile(termenv.Ascii)
}

func IsInteractive() bool { return interactive }

// Confirm asks a yes/no question on stderr. bypassHint tells the user how to
// skip the prompt when no terminal is attached.
func Confirm(question, bypassHint string) (bool, error) {
	if !interactive {
		return false, fmt.Errorf("%w (%s)", ErrNoInteraction, bypassHint)
	}
	return confirm(os.Stdin, os.Stderr, question)
}

func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprint(out, AccentStyle.Render("?")+" "+question+" "+MutedStyle.Render("[y/N]")+" ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func detectInteractiveMode(noInteraction bool) bool {
	if noInteraction {
		return false
	}
	if envTruthy(envNoInteraction) || envTruthy(envCI) {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(envTerm)), "dumb") {
		return false
	}
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func envTruthy(key string) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
