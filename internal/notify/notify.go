// Package notify announces newly trending videos to other services.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/clitic/music/internal/aggregator"
	"github.com/clitic/music/internal/config"
)

// StreamName is the JetStream stream created for the subject when
// JetStream publishing is enabled.
const StreamName = "MUSIC_TRENDING"

// Publisher sends one notification per new video.
type Publisher interface {
	PublishNew(ctx context.Context, videos []aggregator.VideoRecord) error
	Close() error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) PublishNew(context.Context, []aggregator.VideoRecord) error { return nil }
func (Nop) Close() error { return nil }

// Message is the JSON payload of a notification.
type Message struct {
	Video      aggregator.VideoRecord `json:"video"`
	URL        string                 `json:"url"`
	DetectedAt time.Time              `json:"detected_at"`
}

// NATSPublisher publishes notifications as NATS messages.
type NATSPublisher struct {
	subject string
	publish func(*nats.Msg) error
	close   func() error
	now     func() time.Time
}

// NewNATSPublisher builds a publisher around a publish function, such as
// (*nats.Conn).PublishMsg.
func NewNATSPublisher(subject string, publish func(*nats.Msg) error) *NATSPublisher {
	return &NATSPublisher{
		subject: subject,
		publish: publish,
		close:   func() error { return nil },
		now:     time.Now,
	}
}

// Dial connects to the configured NATS server. It returns Nop when no URL
// is configured.
func Dial(cfg config.NotifyConfig) (Publisher, error) {
	if cfg.NATSURL == "" {
		return Nop{}, nil
	}

	nc, err := nats.Connect(cfg.NATSURL, nats.Name("music"), nats.Timeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("nats: connect %s: %w", cfg.NATSURL, err)
	}

	p := NewNATSPublisher(cfg.Subject, nc.PublishMsg)
	p.close = func() error {
		return closeConn(nc, flushTimeout)
	}

	if cfg.JetStream {
		js, err := nc.JetStream()
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("nats: jetstream: %w", err)
		}
		if _, err := js.StreamInfo(StreamName); errors.Is(err, nats.ErrStreamNotFound) {
			_, err = js.AddStream(&nats.StreamConfig{
				Name:     StreamName,
				Subjects: []string{cfg.Subject},
				Storage:  nats.FileStorage,
			})
			if err != nil {
				nc.Close()
				return nil, fmt.Errorf("nats: add stream %s: %w", StreamName, err)
			}
		}
		p.publish = func(m *nats.Msg) error {
			_, err := js.PublishMsg(m)
			return err
		}
	}

	return p, nil
}

// PublishNew sends one message per video. It keeps going after a failed
// message and returns every failure joined.
func (p *NATSPublisher) PublishNew(ctx context.Context, videos []aggregator.VideoRecord) error {
	detected := p.now().UTC()
	day := detected.Format("2006-01-02")

	var errs []error
	for _, v := range videos {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		data, err := json.Marshal(Message{Video: v, URL: v.URL(), DetectedAt: detected})
		if err != nil {
			errs = append(errs, fmt.Errorf("encode %s: %w", v.ID, err))
			continue
		}

		msg := nats.NewMsg(p.subject)
		msg.Data = data
		msg.Header.Set(nats.MsgIdHdr, strings.Join([]string{v.ID, day}, ":"))
		if err := p.publish(msg); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", v.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.close()
}

// flushTimeout bounds the wait for the server to acknowledge buffered
// messages on Close.
const flushTimeout = 5 * time.Second

// flushCloser is the part of *nats.Conn used to shut down.
type flushCloser interface {
	FlushTimeout(timeout time.Duration) error
	Close()
}

// closeConn waits for the server to receive every buffered message, then
// closes the connection. The process may exit as soon as it returns.
func closeConn(nc flushCloser, timeout time.Duration) error {
	err := nc.FlushTimeout(timeout)
	nc.Close()
	if err != nil {
		return fmt.Errorf("nats: flush: %w", err)
	}
	return nil
}
