package alert

import (
	"os"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/mattn/go-isatty"
)

// BeepPlayer plays the tone through the system speaker.
type BeepPlayer struct{}

func (BeepPlayer) Play(freqHz float64, d time.Duration) error {
	return beeep.Beep(freqHz, int(d/time.Millisecond))
}

// DesktopNotifier shows OS notifications.
type DesktopNotifier struct {
	Icon string
}

func (n DesktopNotifier) Notify(title, body string, urgent bool) error {
	if urgent {
		return beeep.Alert(title, body, n.Icon)
	}
	return beeep.Notify(title, body, n.Icon)
}

// TerminalRequester grants permission when a user is attached to the terminal
// and denies it for headless runs.
func TerminalRequester() Permission {
	fd := os.Stdout.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return PermissionGranted
	}
	return PermissionDenied
}
