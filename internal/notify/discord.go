package notify

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/sakif/motto-wall/internal/model"
)

// DefaultQueueSize is how many notifications may wait for delivery.
const DefaultQueueSize = 64

// sender is the part of *discordgo.Session the notifier uses.
type sender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts a message to one channel for every stored motto. Delivery
// happens on a single background worker; Notify only enqueues.
type Discord struct {
	session   sender
	channelID string
	logger    *slog.Logger

	queue     chan string
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewDiscord creates a notifier using a bot token.
func NewDiscord(token, channelID string, queueSize int, logger *slog.Logger) (*Discord, error) {
	if token == "" || channelID == "" {
		return nil, errors.New("notify: discord token and channel id are required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return newDiscord(session, channelID, queueSize, logger), nil
}

func newDiscord(s sender, channelID string, queueSize int, logger *slog.Logger) *Discord {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Discord{
		session:   s,
		channelID: channelID,
		logger:    logger,
		queue:     make(chan string, queueSize),
		done:      make(chan struct{}),
	}
}

// Start launches the delivery worker. Calling it more than once is a no-op.
func (d *Discord) Start() {
	d.startOnce.Do(func() {
		d.logger.Info("starting discord notifier", slog.String("channel", d.channelID))
		d.wg.Add(1)
		go d.worker()
	})
}

// Stop delivers what is already queued and waits for the worker to exit.
func (d *Discord) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
		d.wg.Wait()
	})
}

// Notify enqueues a message for m. When the queue is full the message is
// dropped and logged.
func (d *Discord) Notify(m *model.Motto) {
	select {
	case d.queue <- FormatMessage(m):
	default:
		d.logger.Warn("discord notification dropped, queue full", slog.Int64("number", m.Number))
	}
}

func (d *Discord) worker() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.queue:
			d.send(msg)
		case <-d.done:
			// Drain whatever is left before exiting.
			for {
				select {
				case msg := <-d.queue:
					d.send(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Discord) send(msg string) {
	if _, err := d.session.ChannelMessageSend(d.channelID, msg); err != nil {
		d.logger.Error("discord notification failed", slog.String("error", err.Error()))
	}
}
