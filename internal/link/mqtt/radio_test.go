package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/telemetry-uplink/internal/link"
)

var _ link.Radio = (*Radio)(nil)

type fakeToken struct {
	err  error
	done chan struct{}
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	opts         *paho.ClientOptions
	connectErr   error
	publishToken func() *fakeToken

	mu           sync.Mutex
	messages     []published
	disconnected bool
}

func (c *fakeClient) Connect() paho.Token { return completedToken(c.connectErr) }

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic, qos, retained, payload.([]byte)})

	if c.publishToken != nil {
		return c.publishToken()
	}
	return completedToken(nil)
}

func newTestRadio(t *testing.T, client *fakeClient) *Radio {
	t.Helper()

	r, err := New(&Config{Broker: DefaultBroker, ClientID: DefaultClientID, TopicPrefix: DefaultTopicPrefix},
		WithClientFactory(func(opts *paho.ClientOptions) Client {
			client.opts = opts
			return client
		}))
	require.NoError(t, err)
	return r
}

func TestRadio_Publish(t *testing.T) {
	client := &fakeClient{}
	r := newTestRadio(t, client)
	require.NoError(t, r.Open())

	peer := link.Address(0x0013A200419B5208)
	require.NoError(t, r.SendFrame(context.Background(), peer, []byte(link.StartSentinel)))
	require.NoError(t, r.SendFrame(context.Background(), peer, []byte("{'lat': 1.0}")))

	require.Len(t, client.messages, 2)
	assert.Equal(t, published{"uplink/0013A200419B5208", 0, false, []byte("$st@")}, client.messages[0])
	assert.Equal(t, []byte("{'lat': 1.0}"), client.messages[1].payload)

	require.NotNil(t, client.opts)
	assert.Equal(t, DefaultClientID, client.opts.ClientID)
	require.Len(t, client.opts.Servers, 1)
	assert.Equal(t, "localhost:1883", client.opts.Servers[0].Host)

	require.NoError(t, r.Close())
	assert.True(t, client.disconnected)
}

func TestRadio_NotOpen(t *testing.T) {
	r := newTestRadio(t, &fakeClient{})
	assert.ErrorIs(t, r.SendFrame(context.Background(), link.Address(1), []byte("x")), ErrNotOpen)
	assert.NoError(t, r.Close())
}

func TestRadio_ConnectFailure(t *testing.T) {
	r := newTestRadio(t, &fakeClient{connectErr: errors.New("connection refused")})

	assert.ErrorContains(t, r.Open(), "connection refused")
	assert.ErrorIs(t, r.SendFrame(context.Background(), link.Address(1), []byte("x")), ErrNotOpen)
}

func TestRadio_PublishFailure(t *testing.T) {
	client := &fakeClient{publishToken: func() *fakeToken { return completedToken(errors.New("not connected")) }}
	r := newTestRadio(t, client)
	require.NoError(t, r.Open())

	assert.ErrorContains(t, r.SendFrame(context.Background(), link.Address(1), []byte("x")), "not connected")
}

func TestRadio_PublishHonoursContext(t *testing.T) {
	client := &fakeClient{publishToken: pendingToken}
	r := newTestRadio(t, client)
	require.NoError(t, r.Open())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, r.SendFrame(ctx, link.Address(1), []byte("x")), context.DeadlineExceeded)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, (&Config{Broker: DefaultBroker, TopicPrefix: "p"}).Validate())
	assert.Error(t, (&Config{TopicPrefix: "p"}).Validate())
	assert.Error(t, (&Config{Broker: DefaultBroker}).Validate())
}
