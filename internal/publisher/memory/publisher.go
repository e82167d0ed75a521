// Package memory records run notifications in-memory for dry runs and tests.
package memory

import (
	"context"
	"errors"
	"strconv"
	"sync"
)

// Publisher keeps every notification in publish order.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
}

// PublishedMessage is one recorded notification. Attributes are copied from
// payloads that expose routing attributes, as the Pub/Sub publisher does.
type PublishedMessage struct {
	ID         string
	Topic      string
	Payload    any
	Attributes map[string]string
}

type attributer interface {
	Attributes() map[string]string
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the notification and returns a sequential ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if topic == "" {
		return "", errors.New("topic is required")
	}
	msg := PublishedMessage{Topic: topic, Payload: payload}
	if a, ok := payload.(attributer); ok {
		msg.Attributes = make(map[string]string)
		for k, v := range a.Attributes() {
			msg.Attributes[k] = v
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	msg.ID = "memory-" + strconv.Itoa(len(p.messages)+1)
	p.messages = append(p.messages, msg)
	return msg.ID, nil
}

// Messages returns a copy of the recorded notifications.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
