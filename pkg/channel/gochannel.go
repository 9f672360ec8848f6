package channel

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cricket/pkg/messaging"
)

// GoChannel is an in-process event channel over watermill's gochannel
// pubsub. Tests and the local demo backend publish envelopes into it; the
// session subscribes like it would to the real stream.
type GoChannel struct {
	topic  string
	pubsub *gochannel.GoChannel

	mu         sync.Mutex
	cancel     context.CancelFunc
	subscribed bool
	closed     bool
}

var _ Channel = &GoChannel{}

func NewGoChannel(topic string) *GoChannel {
	return &GoChannel{
		topic:  topic,
		pubsub: gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{}),
	}
}

// Publish feeds one envelope into the stream.
func (c *GoChannel) Publish(env messaging.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "encode envelope")
	}
	return c.pubsub.Publish(c.topic, message.NewMessage(watermill.NewUUID(), raw))
}

func (c *GoChannel) Subscribe(ctx context.Context, table HandlerTable) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("channel: closed")
	}
	if c.subscribed {
		c.mu.Unlock()
		return ErrAlreadySubscribed
	}
	runCtx, cancel := context.WithCancel(ctx)
	ch, err := c.pubsub.Subscribe(runCtx, c.topic)
	if err != nil {
		cancel()
		c.mu.Unlock()
		return errors.Wrap(err, "subscribe")
	}
	c.cancel = cancel
	c.subscribed = true
	c.mu.Unlock()

	go func() {
		for msg := range ch {
			var env messaging.Envelope
			if err := json.Unmarshal(msg.Payload, &env); err != nil {
				log.Warn().Err(err).Str("component", "channel").Msg("failed to decode frame")
				msg.Ack()
				continue
			}
			Dispatch(env, table)
			msg.Ack()
		}
		c.mu.Lock()
		c.subscribed = false
		c.mu.Unlock()
	}()
	return nil
}

func (c *GoChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return c.pubsub.Close()
}
