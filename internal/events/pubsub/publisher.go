// Package pubsub implements a Google Cloud Pub/Sub event publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// Publisher publishes analysis completion events to one Pub/Sub topic.
type Publisher struct {
	topic *pubsub.Topic
}

// New creates a Publisher for the provided topic.
func New(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// NewFromClient resolves the topic on an existing client.
func NewFromClient(client *pubsub.Client, topicID string) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if topicID == "" {
		return nil, fmt.Errorf("topic id is required")
	}
	return &Publisher{topic: client.Topic(topicID)}, nil
}

// Publish marshals the payload to JSON and publishes it to the topic.
func (p *Publisher) Publish(ctx context.Context, payload any) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages and releases topic resources.
func (p *Publisher) Stop() {
	if p.topic != nil {
		p.topic.Stop()
	}
}
