package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Availability payloads published on the status topic.
const (
	AvailabilityOnline  = "online"
	AvailabilityOffline = "offline"
)

// StatusSegment names the availability topic under the prefix. Key paths may not use it.
const StatusSegment = "$status"

// ErrReservedPath is returned for a key path that would land on the availability topic.
var ErrReservedPath = errors.New("reserved path")

// MQTTConfig configures an MQTTStore.
type MQTTConfig struct {
	Broker      string // e.g. tcp://192.168.1.200:1883
	ClientID    string // empty = "led-sync-<random>"
	Username    string
	Password    string
	TopicPrefix string // paths map to <prefix>/<path>

	// ConnectTimeout bounds how long NewMQTTStore waits for the first connection.
	// The client keeps retrying in the background after it elapses.
	ConnectTimeout time.Duration
}

// MQTTStore maps key paths onto retained MQTT topics.
// Writes are retained QoS 1 publishes; reads return the latest retained value seen on a
// subscription that is opened on first use and restored after every reconnect.
type MQTTStore struct {
	client paho.Client
	prefix string

	mu     sync.Mutex
	values map[string][]byte // topic -> latest payload
	subs   map[string]bool
}

// NewMQTTStore connects to the broker. A broker that is unreachable at boot is not an
// error: the store reports ErrNotConnected until the background retry succeeds.
func NewMQTTStore(cfg MQTTConfig) (*MQTTStore, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "led-sync-" + uuid.NewString()[:8]
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	s := &MQTTStore{
		prefix: strings.Trim(cfg.TopicPrefix, "/"),
		values: make(map[string][]byte),
		subs:   make(map[string]bool),
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(false).
		SetWill(s.statusTopic(), AvailabilityOffline, 1, true).
		SetOnConnectHandler(s.onConnect)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	s.client = paho.NewClient(opts)
	token := s.client.Connect()
	if token.WaitTimeout(cfg.ConnectTimeout) {
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("connect to broker: %w", err)
		}
	}
	return s, nil
}

// Topic returns the MQTT topic for path.
func (s *MQTTStore) Topic(path string) string {
	p := cleanPath(path)
	if s.prefix == "" {
		return p
	}
	return s.prefix + "/" + p
}

func (s *MQTTStore) statusTopic() string {
	return s.Topic(StatusSegment)
}

// IsConnected reports whether the broker connection is up.
func (s *MQTTStore) IsConnected() bool {
	return s.client.IsConnectionOpen()
}

// SetBool publishes v retained at path.
func (s *MQTTStore) SetBool(ctx context.Context, path string, v bool) error {
	if !s.IsConnected() {
		return writeErr(path, ErrNotConnected)
	}
	if cleanPath(path) == StatusSegment {
		return writeErr(path, ErrReservedPath)
	}
	token := s.client.Publish(s.Topic(path), 1, true, EncodeBool(v))
	if err := waitToken(ctx, token); err != nil {
		return writeErr(path, err)
	}
	return nil
}

// GetBool returns the latest retained value at path.
// The first call for a path subscribes and usually reports ErrNoValue until the
// retained message arrives.
func (s *MQTTStore) GetBool(ctx context.Context, path string) (bool, error) {
	if !s.IsConnected() {
		return false, readErr(path, ErrNotConnected)
	}
	if cleanPath(path) == StatusSegment {
		return false, readErr(path, ErrReservedPath)
	}
	topic := s.Topic(path)
	if err := s.ensureSubscribed(ctx, topic); err != nil {
		return false, readErr(path, err)
	}

	s.mu.Lock()
	raw, ok := s.values[topic]
	s.mu.Unlock()
	if !ok {
		return false, readErr(path, ErrNoValue)
	}

	v, err := DecodeBool(raw)
	if err != nil {
		return false, readErr(path, err)
	}
	return v, nil
}

// Close publishes the offline marker and disconnects from the broker.
func (s *MQTTStore) Close() error {
	if s.IsConnected() {
		s.client.Publish(s.statusTopic(), 1, true, AvailabilityOffline).WaitTimeout(time.Second)
	}
	s.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (s *MQTTStore) ensureSubscribed(ctx context.Context, topic string) error {
	s.mu.Lock()
	done := s.subs[topic]
	s.mu.Unlock()
	if done {
		return nil
	}

	if err := waitToken(ctx, s.client.Subscribe(topic, 1, s.onMessage)); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	s.mu.Lock()
	s.subs[topic] = true
	s.mu.Unlock()
	return nil
}

// onConnect restores subscriptions (clean session) and announces availability.
func (s *MQTTStore) onConnect(c paho.Client) {
	s.mu.Lock()
	topics := make([]string, 0, len(s.subs))
	for t := range s.subs {
		topics = append(topics, t)
	}
	s.mu.Unlock()

	for _, t := range topics {
		c.Subscribe(t, 1, s.onMessage)
	}
	c.Publish(s.statusTopic(), 1, true, AvailabilityOnline)
}

func (s *MQTTStore) onMessage(_ paho.Client, msg paho.Message) {
	payload := append([]byte(nil), msg.Payload()...)
	s.mu.Lock()
	s.values[msg.Topic()] = payload
	s.mu.Unlock()
}

// waitToken blocks until the token completes or ctx is done.
func waitToken(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
