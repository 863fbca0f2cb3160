// Package mqttclient publishes session status events to an MQTT broker.
package mqttclient

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// publishTimeout bounds how long a background publish is tracked for errors.
const publishTimeout = 10 * time.Second

type Client struct {
	conn        mqtt.Client
	topicPrefix string
	connected   atomic.Bool
	published   atomic.Int64
	log         zerolog.Logger
}

type Options struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
	Log         zerolog.Logger
}

// StatusEvent is the payload published on every session progress change.
type StatusEvent struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Time      time.Time `json:"time"`
}

func Connect(opts Options) (*Client, error) {
	c := &Client{
		topicPrefix: strings.Trim(opts.TopicPrefix, "/"),
		log:         opts.Log,
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Client) onConnect(_ mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Str("prefix", c.topicPrefix).Msg("mqtt connected")
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

// StatusTopic is the topic a session's status events are published on.
func StatusTopic(prefix, sessionID string) string {
	if prefix == "" {
		return "sessions/" + sessionID + "/status"
	}
	return prefix + "/sessions/" + sessionID + "/status"
}

// PublishStatus publishes a retained status event so late subscribers see
// the latest state. It never blocks on the broker; failures are logged.
func (c *Client) PublishStatus(sessionID, status string, pct int, message string) {
	payload, err := json.Marshal(StatusEvent{
		SessionID: sessionID,
		Status:    status,
		Progress:  pct,
		Message:   message,
		Time:      time.Now().UTC(),
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("status event marshal failed")
		return
	}

	topic := StatusTopic(c.topicPrefix, sessionID)
	token := c.conn.Publish(topic, 1, true, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			c.log.Warn().Str("topic", topic).Msg("mqtt publish timed out")
			return
		}
		if err := token.Error(); err != nil {
			c.log.Warn().Err(err).Str("topic", topic).Msg("mqtt publish failed")
			return
		}
		c.published.Add(1)
	}()
}

// Published returns the number of acknowledged status events.
func (c *Client) Published() int64 {
	return c.published.Load()
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) Close() {
	c.log.Info().Msg("disconnecting mqtt client")
	c.conn.Disconnect(1000)
}
