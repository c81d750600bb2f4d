package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"example.com/backstage/services/esign/config"
	"example.com/backstage/services/esign/internal/models"
)

// Message is the payload placed on the notification queue. The downstream
// mailer is an external collaborator; content and templates are its concern.
type Message struct {
	Kind             string    `json:"kind"`
	SigningRequestID string    `json:"signing_request_id"`
	Recipient        string    `json:"recipient"`
	EnqueuedAt       time.Time `json:"enqueued_at"`
}

// Notifier delivers notification dispatches to the outbound queue
type Notifier interface {
	Send(ctx context.Context, dispatch *models.NotificationDispatch) error
	Close() error
}

type serviceBusNotifier struct {
	client *azservicebus.Client
	sender *azservicebus.Sender
}

// NewServiceBusNotifier creates an Azure Service Bus backed notifier
func NewServiceBusNotifier(cfg config.ServiceBusConfig) (Notifier, error) {
	if cfg.ConnectionString == "" {
		return nil, fmt.Errorf("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus client: %w", err)
	}

	sender, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus sender: %w", err)
	}

	return &serviceBusNotifier{client: client, sender: sender}, nil
}

// Send places a dispatch on the queue. The message id repeats the dispatch's
// idempotency key so downstream consumers can dedup redeliveries.
func (n *serviceBusNotifier) Send(ctx context.Context, dispatch *models.NotificationDispatch) error {
	body, err := json.Marshal(Message{
		Kind:             dispatch.Kind,
		SigningRequestID: dispatch.SigningRequestID.String(),
		Recipient:        dispatch.Recipient,
		EnqueuedAt:       time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification message: %w", err)
	}

	messageID := fmt.Sprintf("%s:%s:%s", dispatch.SigningRequestID, dispatch.Recipient, dispatch.Kind)
	msg := &azservicebus.Message{
		MessageID: &messageID,
		Body:      body,
		ApplicationProperties: map[string]interface{}{
			"kind": dispatch.Kind,
		},
	}

	return n.sender.SendMessage(ctx, msg, nil)
}

// Close closes the Service Bus client
func (n *serviceBusNotifier) Close() error {
	if n.sender != nil {
		if err := n.sender.Close(context.Background()); err != nil {
			return err
		}
	}
	if n.client != nil {
		return n.client.Close(context.Background())
	}
	return nil
}
