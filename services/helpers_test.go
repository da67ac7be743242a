package services

import (
	"context"
	"sync"

	"github.com/Mighty-Nievl/mengundang-sub000/internal/testutil"
	"github.com/Mighty-Nievl/mengundang-sub000/models"
)

type sentMessage struct {
	Phone   string
	Message string
	Tier    models.PlanTier
	Admin   bool
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []sentMessage
}

func (n *recordingNotifier) Notify(ctx context.Context, phone, message string, tier models.PlanTier) Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, sentMessage{Phone: phone, Message: message, Tier: tier})
	return Delivery{Phone: phone, Outbox: ChannelResult{Attempted: true}}
}

func (n *recordingNotifier) NotifyAdmin(ctx context.Context, message string) Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, sentMessage{Message: message, Admin: true})
	return Delivery{Outbox: ChannelResult{Attempted: true}}
}

func (n *recordingNotifier) adminMessages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.msgs {
		if m.Admin {
			out = append(out, m.Message)
		}
	}
	return out
}

func (n *recordingNotifier) to(phone string) []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMessage
	for _, m := range n.msgs {
		if m.Phone == phone {
			out = append(out, m)
		}
	}
	return out
}

type publishedEvent struct {
	Topic string
	Key   string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, topic, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Topic: topic, Key: key})
	return nil
}

func strPtr(s string) *string { return &s }

func newTestEngine(store *testutil.MemStore) (*Engine, *recordingNotifier, *recordingPublisher) {
	notifier := &recordingNotifier{}
	events := &recordingPublisher{}
	referrals := NewReferralProcessor(store, notifier, 50000)
	engine := NewEngine(store, NewPlanActivator(), referrals, notifier, events, []string{"settlement", "success"})
	return engine, notifier, events
}

func txn(amount, status, ref string) models.ExtractedTransaction {
	return models.ExtractedTransaction{Amount: amount, Status: status, Reference: ref}
}
