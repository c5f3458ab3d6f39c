package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/providentiaww/trilix-oauth/internal/oauth"
)

type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return m.Called(name, kind, durable, autoDelete, internal, noWait).Error(0)
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.Called(ctx, exchange, key, msg).Error(0)
}

func (m *mockChannel) Close() error {
	return m.Called().Error(0)
}

func TestNewRevocationPublisher_DeclaresExchange(t *testing.T) {
	ch := &mockChannel{}
	ch.On("ExchangeDeclare", "oauth.events", amqp.ExchangeTopic, true, false, false, false).Return(nil)

	_, err := NewRevocationPublisher(ch, "oauth.events", zerolog.Nop())
	require.NoError(t, err)
	ch.AssertExpectations(t)
}

func TestNewRevocationPublisher_DeclareFailure(t *testing.T) {
	ch := &mockChannel{}
	ch.On("ExchangeDeclare", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("access refused"))

	_, err := NewRevocationPublisher(ch, "oauth.events", zerolog.Nop())
	assert.Error(t, err)
}

func TestRevocationPublisher_TokenRevoked(t *testing.T) {
	ch := &mockChannel{}
	ch.On("ExchangeDeclare", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	var published amqp.Publishing
	ch.On("PublishWithContext", mock.Anything, "oauth.events", RoutingKeyTokenRevoked, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(3).(amqp.Publishing) }).
		Return(nil)

	p, err := NewRevocationPublisher(ch, "oauth.events", zerolog.Nop())
	require.NoError(t, err)
	p.now = func() time.Time { return time.Unix(1700000000, 0) }

	tok := &oauth.Token{ClientID: "c1", UserID: "u1", AccessToken: "tok1"}
	require.NoError(t, p.TokenRevoked(context.Background(), tok))

	assert.Equal(t, "application/json", published.ContentType)
	assert.Equal(t, amqp.Persistent, published.DeliveryMode)
	assert.NotContains(t, string(published.Body), "tok1")

	var event TokenRevokedEvent
	require.NoError(t, json.Unmarshal(published.Body, &event))
	assert.Equal(t, TokenRevokedEvent{
		ClientID:  "c1",
		UserID:    "u1",
		TokenRef:  oauth.TokenRef("tok1"),
		RevokedAt: 1700000000,
	}, event)
}

func TestRevocationPublisher_PublishFailure(t *testing.T) {
	ch := &mockChannel{}
	ch.On("ExchangeDeclare", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ch.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("channel closed"))
	ch.On("Close").Return(nil)

	p, err := NewRevocationPublisher(ch, "oauth.events", zerolog.Nop())
	require.NoError(t, err)

	assert.Error(t, p.TokenRevoked(context.Background(), &oauth.Token{AccessToken: "tok1"}))
	assert.NoError(t, p.Close())
}
