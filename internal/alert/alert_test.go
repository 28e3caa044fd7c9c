package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlayer struct {
	mu    sync.Mutex
	tones []float64
	dur   time.Duration
	err   error
	panic bool
}

func (p *fakePlayer) Play(freq float64, d time.Duration) error {
	if p.panic {
		panic("no audio device")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tones = append(p.tones, freq)
	p.dur = d
	return p.err
}

func (p *fakePlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tones)
}

type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
	urgent []bool
}

func (n *fakeNotifier) Notify(title, body string, urgent bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	n.urgent = append(n.urgent, urgent)
	return nil
}

func (n *fakeNotifier) snapshot() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.titles...)
}

func runDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestDispatchPlaysToneAndNotification(t *testing.T) {
	player := &fakePlayer{}
	notifier := &fakeNotifier{}
	d := New(Options{
		SoundEnabled:   true,
		DesktopEnabled: true,
		Player:         player,
		Notifier:       notifier,
		Requester:      func() Permission { return PermissionGranted },
	})
	require.Equal(t, PermissionGranted, d.RequestPermission())
	runDispatcher(t, d)

	require.True(t, d.Dispatch(Alert{Title: "Booking confirmed", Sound: true, Desktop: true, Urgent: true}))

	require.Eventually(t, func() bool { return len(notifier.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, player.count())
	assert.Equal(t, float64(DefaultToneHz), player.tones[0])
	assert.Equal(t, DefaultToneDuration, player.dur)
	assert.True(t, notifier.urgent[0])
}

func TestDesktopRequiresGrantedPermission(t *testing.T) {
	notifier := &fakeNotifier{}
	player := &fakePlayer{}
	d := New(Options{SoundEnabled: true, DesktopEnabled: true, Player: player, Notifier: notifier})
	runDispatcher(t, d)

	assert.Equal(t, PermissionDefault, d.Permission())
	d.Dispatch(Alert{Title: "offer", Desktop: true})
	d.Dispatch(Alert{Title: "ping", Sound: true})

	require.Eventually(t, func() bool { return player.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, notifier.snapshot())
}

func TestBackendFailuresAreSwallowed(t *testing.T) {
	notifier := &fakeNotifier{}
	d := New(Options{
		SoundEnabled:   true,
		DesktopEnabled: true,
		Player:         &fakePlayer{panic: true},
		Notifier:       notifier,
		Requester:      func() Permission { return PermissionGranted },
	})
	d.RequestPermission()
	runDispatcher(t, d)

	d.Dispatch(Alert{Title: "first", Sound: true, Desktop: true})
	d.Dispatch(Alert{Title: "second", Sound: true, Desktop: true})

	require.Eventually(t, func() bool { return len(notifier.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, notifier.snapshot())
}

func TestSoundErrorDoesNotBlockDesktop(t *testing.T) {
	notifier := &fakeNotifier{}
	d := New(Options{
		SoundEnabled:   true,
		DesktopEnabled: true,
		Player:         &fakePlayer{err: errors.New("autoplay blocked")},
		Notifier:       notifier,
		Requester:      func() Permission { return PermissionGranted },
	})
	d.RequestPermission()
	runDispatcher(t, d)

	d.Dispatch(Alert{Title: "new message", Sound: true, Desktop: true})
	require.Eventually(t, func() bool { return len(notifier.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestDispatchNeverBlocks(t *testing.T) {
	d := New(Options{QueueSize: 2})
	assert.True(t, d.Dispatch(Alert{Title: "1"}))
	assert.True(t, d.Dispatch(Alert{Title: "2"}))
	assert.False(t, d.Dispatch(Alert{Title: "3"}))
}

func TestRequestPermissionRunsOnce(t *testing.T) {
	calls := 0
	d := New(Options{Requester: func() Permission {
		calls++
		return PermissionDenied
	}})
	assert.Equal(t, PermissionDenied, d.RequestPermission())
	assert.Equal(t, PermissionDenied, d.RequestPermission())
	assert.Equal(t, 1, calls)
}
