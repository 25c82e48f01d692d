// Package notify sends push notifications to the family topic.
package notify

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
)

type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Sender is the part of *messaging.Client the notifier needs.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

const channelID = "journal"

// FCMNotifier publishes to a single FCM topic every family device subscribes to.
type FCMNotifier struct {
	client Sender
	topic  string
	logger *zap.SugaredLogger
}

func NewFCMNotifier(client Sender, topic string, logger *zap.SugaredLogger) *FCMNotifier {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &FCMNotifier{client: client, topic: topic, logger: logger}
}

func (n *FCMNotifier) Notify(ctx context.Context, msg Message) error {
	message := &messaging.Message{
		Topic: n.topic,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
		Android: &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{
				ChannelID: channelID,
				Priority:  messaging.PriorityHigh,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: msg.Title,
						Body:  msg.Body,
					},
					Sound: "default",
				},
			},
		},
	}

	id, err := n.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending message: %w", err)
	}
	n.logger.Infow("notification sent", "topic", n.topic, "message_id", id)
	return nil
}

// Nop drops every message. Used when no topic is configured.
type Nop struct{}

func (Nop) Notify(context.Context, Message) error { return nil }
