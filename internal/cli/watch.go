package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/marketsync/internal/alert"
	"github.com/vovakirdan/marketsync/internal/booking"
	"github.com/vovakirdan/marketsync/internal/messaging"
	"github.com/vovakirdan/marketsync/internal/notifications"
	"github.com/vovakirdan/marketsync/internal/proto"
)

var errChannelsStopped = errors.New("every channel stopped reconnecting")

type watchOptions struct {
	bookings      []string
	conversations []string
	offers        bool
	fetch         bool
}

func (a *App) newWatchCommand() *cobra.Command {
	var opts watchOptions
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow every realtime channel and play alerts",
		Long: `Connect the booking, messaging and notification channels and print events as
they arrive. Bookings and conversations given by flag are joined on every connect.`,
		Example: `  marketsync watch --booking 65f0c2 --conversation c-42 --offers`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.watch(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.bookings, "booking", nil, "booking ids to track")
	cmd.Flags().StringSliceVar(&opts.conversations, "conversation", nil, "conversation ids to join")
	cmd.Flags().BoolVar(&opts.offers, "offers", false, "join the price offers room")
	cmd.Flags().BoolVar(&opts.fetch, "fetch", true, "load the first inbox page on start")
	return cmd
}

func (a *App) watch(ctx context.Context, w io.Writer, opts watchOptions) error {
	creds, sess, st, err := a.credentials(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := a.apiClient(sess)
	if err != nil {
		return err
	}

	alerts := alert.New(alert.Options{
		ToneHz:         a.cfg.Alerts.ToneHz,
		ToneDuration:   a.cfg.Alerts.ToneDuration,
		SoundEnabled:   a.cfg.Alerts.Sound,
		DesktopEnabled: a.cfg.Alerts.Desktop,
		Player:         alert.BeepPlayer{},
		Notifier:       alert.DesktopNotifier{},
		Requester:      alert.TerminalRequester,
		Logger:         a.logger,
	})

	out := &printer{w: w, now: time.Now}

	bookings := booking.NewProvider(a.realtimeOptions("booking", creds), alerts)
	chat := messaging.NewProvider(messaging.Config{
		Realtime: a.realtimeOptions("messaging", creds),
		UserName: creds.UserName,
		API:      client,
		Effects:  alerts,
	})
	inbox := notifications.NewProvider(notifications.Config{
		Realtime:    a.realtimeOptions("notifications", creds),
		API:         client,
		Effects:     alerts,
		Permissions: alerts,
	})

	out.subscribe(chat, inbox)
	bookings.OnStatus(out.status("booking"))
	chat.OnStatus(func(connected bool) {
		out.status("messaging")(connected)
		if connected {
			for _, id := range opts.conversations {
				chat.JoinConversation(ctx, id)
			}
		}
	})
	inbox.OnStatus(func(connected bool) {
		out.status("notifications")(connected)
		if connected && opts.offers {
			inbox.JoinOffersRoom(ctx)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return alerts.Run(gctx) })
	g.Go(func() error {
		return superviseChannels(gctx, out, []channel{
			{name: "booking", done: bookings.Done()},
			{name: "messaging", done: chat.Done()},
			{name: "notifications", done: inbox.Done()},
		})
	})

	bookings.Start(gctx)
	chat.Start(gctx)
	inbox.Start(gctx)
	defer func() {
		_ = bookings.Close()
		_ = chat.Close()
		_ = inbox.Close()
	}()

	for _, id := range opts.bookings {
		u := bookings.Track(gctx, id)
		g.Go(func() error {
			defer u.Stop(context.Background())
			for {
				select {
				case <-gctx.Done():
					return nil
				case s := <-u.Changes():
					out.booking(s)
				}
			}
		})
	}

	if opts.fetch {
		g.Go(func() error {
			if err := inbox.Fetch(gctx, 1); err != nil {
				a.logger.Warn().Err(err).Msg("initial inbox fetch failed")
				return nil
			}
			out.line("inbox: %d notifications, %d unread", inbox.Total(), inbox.UnreadCount())
			return nil
		})
	}

	a.logger.Info().Str("user_id", creds.UserID).Str("url", a.cfg.Realtime.URL).Msg("watching")
	return g.Wait()
}

type channel struct {
	name string
	done <-chan struct{}
}

// superviseChannels reports each channel that gave up reconnecting and fails
// once all of them have.
func superviseChannels(ctx context.Context, out *printer, channels []channel) error {
	stopped := make(chan string, len(channels))
	for _, ch := range channels {
		go func() {
			select {
			case <-ch.done:
				stopped <- ch.name
			case <-ctx.Done():
			}
		}()
	}
	for range channels {
		select {
		case <-ctx.Done():
			return nil
		case name := <-stopped:
			if ctx.Err() != nil {
				return nil
			}
			out.line("[%s] gave up reconnecting", name)
		}
	}
	return errChannelsStopped
}

// printer serializes event lines coming from several channel goroutines.
type printer struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

func (p *printer) line(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s  %s\n", p.now().Format("15:04:05"), fmt.Sprintf(format, args...))
}

func (p *printer) status(channel string) func(bool) {
	return func(connected bool) {
		state := "disconnected"
		if connected {
			state = "connected"
		}
		p.line("[%s] %s", channel, state)
	}
}

func (p *printer) booking(s booking.State) {
	msg := fmt.Sprintf("[booking] %s is %s", s.BookingID, s.Status)
	if s.OTPRequested {
		msg += ", OTP requested"
	}
	if s.Terminal() {
		msg += " (final)"
	}
	p.line("%s", msg)
}

func (p *printer) subscribe(chat *messaging.Provider, inbox *notifications.Provider) {
	chat.OnNewMessage(func(ev *proto.NewMessageEvent) {
		sender := ev.Message.SenderName
		if sender == "" {
			sender = ev.SenderID
		}
		p.line("[messaging] %s: %s", sender, ev.Message.Content)
	})
	chat.OnTyping(func(ev *proto.TypingEvent) {
		if ev.IsTyping {
			p.line("[messaging] %s is typing in %s", ev.UserName, ev.ConversationID)
		}
	})
	chat.OnUserOnlineStatus(func(ev *proto.UserOnlineStatusEvent) {
		state := "offline"
		if ev.IsOnline {
			state = "online"
		}
		p.line("[messaging] %s is %s", ev.UserID, state)
	})
	inbox.OnNotification(func(n *proto.Notification) {
		p.line("[notifications] %s (%d unread)", n.Title, inbox.UnreadCount())
	})
	inbox.OnOffer(func(kind proto.Kind, ev *proto.OfferEvent) {
		p.line("[offers] %s %s %.2f", kind, ev.Offer.ID, ev.Offer.OfferedPrice)
	})
}
