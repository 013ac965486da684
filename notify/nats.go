package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/samber/oops"

	"github.com/MrEthical07/tokenauth"
)

// DefaultSubject is the subject NATS publishes on when none is configured.
const DefaultSubject = "tokenauth.email"

// Publisher is the part of *nats.Conn the NATS notifier uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Envelope is the JSON payload published for a mail worker.
type Envelope struct {
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	HTML     string    `json:"html,omitempty"`
	Text     string    `json:"text,omitempty"`
	QueuedAt time.Time `json:"queuedAt"`
}

// NATS publishes messages to a subject. Delivery is fire-and-forget; the
// worker on the other side owns retries.
type NATS struct {
	pub     Publisher
	subject string
	now     func() time.Time
}

// NewNATS returns a NATS notifier. An empty subject uses DefaultSubject.
func NewNATS(pub Publisher, subject string) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{pub: pub, subject: subject, now: time.Now}
}

// ConnectNATS dials url with reconnects enabled.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, oops.Code("NATS_CONNECT_FAILED").With("url", url).Wrap(err)
	}
	return nc, nil
}

// Send implements tokenauth.Notifier.
func (n *NATS) Send(ctx context.Context, msg tokenauth.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Envelope{
		To:       msg.To,
		Subject:  msg.Subject,
		HTML:     msg.HTML,
		Text:     msg.Text,
		QueuedAt: n.now().UTC(),
	})
	if err != nil {
		return oops.Code("NATS_ENCODE_FAILED").Wrap(err)
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return oops.Code("NATS_PUBLISH_FAILED").With("subject", n.subject).Wrap(err)
	}
	return nil
}
