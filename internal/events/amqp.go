package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/providentiaww/trilix-oauth/internal/oauth"
)

// RoutingKeyTokenRevoked is the routing key of revocation events.
const RoutingKeyTokenRevoked = "oauth.token.revoked"

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// TokenRevokedEvent is published for every revoked token. It carries a
// reference to the token, never the token value.
type TokenRevokedEvent struct {
	ClientID  string `json:"client_id"`
	UserID    string `json:"user_id,omitempty"`
	TokenRef  string `json:"token_ref"`
	RevokedAt int64  `json:"revoked_at"`
}

// RevocationPublisher announces revoked tokens on a topic exchange so that
// resource servers can drop cached token state.
type RevocationPublisher struct {
	conn     *amqp.Connection
	ch       Channel
	exchange string
	now      func() time.Time
	logger   zerolog.Logger
}

var _ oauth.RevocationNotifier = (*RevocationPublisher)(nil)

// DialRevocationPublisher connects to the broker at url and declares the
// exchange.
func DialRevocationPublisher(url, exchange string, logger zerolog.Logger) (*RevocationPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	p, err := NewRevocationPublisher(ch, exchange, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewRevocationPublisher declares the topic exchange on ch.
func NewRevocationPublisher(ch Channel, exchange string, logger zerolog.Logger) (*RevocationPublisher, error) {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &RevocationPublisher{
		ch:       ch,
		exchange: exchange,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// TokenRevoked publishes a persistent TokenRevokedEvent.
func (p *RevocationPublisher) TokenRevoked(ctx context.Context, token *oauth.Token) error {
	now := p.now()
	body, err := json.Marshal(TokenRevokedEvent{
		ClientID:  token.ClientID,
		UserID:    token.UserID,
		TokenRef:  oauth.TokenRef(token.AccessToken),
		RevokedAt: now.Unix(),
	})
	if err != nil {
		return err
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKeyTokenRevoked, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish revocation event: %w", err)
	}
	p.logger.Debug().
		Str("exchange", p.exchange).
		Str("client_id", token.ClientID).
		Msg("revocation event published")
	return nil
}

// Close closes the underlying channel.
func (p *RevocationPublisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
