package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/diagnosis/libris/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// NoopBus satisfies EventBus for configurations without a broker, such
// as tests and the standalone dev server.
type NoopBus struct{}

func (NoopBus) Publish(ctx context.Context, subject string, data interface{}) error { return nil }
func (NoopBus) Subscribe(subject string, handler func(msg *Message)) error          { return nil }
func (NoopBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	return nil
}
func (NoopBus) Close() error { return nil }

// Event types and subjects
const (
	// Loan lifecycle events
	LoanCheckedOut   = "loan.checked_out"
	LoanCheckedIn    = "loan.checked_in"
	LoanRenewed      = "loan.renewed"
	LoanOverdueNotice = "loan.overdue_notice"

	// Catalog events
	ItemAdded   = "item.added"
	ItemRemoved = "item.removed"

	// User events
	UserRegistered = "user.registered"
	UserRemoved    = "user.removed"

	// Fine events
	FineRecorded = "fine.recorded"
	FinePaid     = "fine.paid"
)

// Event payloads
type LoanCheckedOutEvent struct {
	LoanID       string    `json:"loan_id"`
	UserID       string    `json:"user_id"`
	ItemID       string    `json:"item_id"`
	DateBorrowed time.Time `json:"date_borrowed"`
	DateDue      time.Time `json:"date_due"`
}

type LoanCheckedInEvent struct {
	LoanID       string    `json:"loan_id"`
	UserID       string    `json:"user_id"`
	ItemID       string    `json:"item_id"`
	DateReturned time.Time `json:"date_returned"`
	FineAmount   string    `json:"fine_amount"`
}

type LoanRenewedEvent struct {
	LoanID       string    `json:"loan_id"`
	UserID       string    `json:"user_id"`
	ItemID       string    `json:"item_id"`
	NewDateDue   time.Time `json:"new_date_due"`
	RenewalCount int       `json:"renewal_count"`
}

type LoanOverdueNoticeEvent struct {
	LoanID      string    `json:"loan_id"`
	UserID      string    `json:"user_id"`
	ItemID      string    `json:"item_id"`
	DateDue     time.Time `json:"date_due"`
	DaysOverdue int       `json:"days_overdue"`
	FineAccrued string    `json:"fine_accrued"`
}

type ItemEvent struct {
	ItemID string `json:"item_id"`
	Kind   string `json:"kind"`
	Title  string `json:"title"`
}

type UserEvent struct {
	UserID string `json:"user_id"`
	Kind   string `json:"kind"`
	Name   string `json:"name"`
}

type FineEvent struct {
	UserID  string `json:"user_id"`
	LoanID  string `json:"loan_id,omitempty"`
	Amount  string `json:"amount"`
	Balance string `json:"balance"`
}
