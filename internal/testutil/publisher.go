package testutil

import (
	"context"
	"sync"
)

type Published struct {
	Topic string
	Key   string
	Value interface{}
}

// Publisher records PublishJSON calls. Err, when set, is returned from
// every call after recording it.
type Publisher struct {
	mu       sync.Mutex
	Messages []Published
	Err      error
}

func (p *Publisher) PublishJSON(_ context.Context, topic, key string, v interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Messages = append(p.Messages, Published{Topic: topic, Key: key, Value: v})
	return p.Err
}

// On returns the messages sent to topic.
func (p *Publisher) On(topic string) []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Published
	for _, m := range p.Messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
