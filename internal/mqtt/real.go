package mqtt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/xid"

	"github.com/sweeney/watercontrol/internal/logic"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	outboxSize     = 64
)

var errPublishTimeout = errors.New("timeout")

// Options configures a RealClient.
type Options struct {
	Broker   string
	Username string
	Password string
	Device   Device

	// OnCommand is called from paho's goroutines for every valid command.
	// It must not block.
	OnCommand func(logic.Command)
}

// RealClient talks to an actual MQTT broker: it subscribes to the command
// topics, publishes discovery and availability on every (re)connect, and
// publishes status, buffering it while the connection is down.
type RealClient struct {
	client    paho.Client
	topics    Topics
	device    Device
	onCommand func(logic.Command)

	mu     sync.Mutex
	outbox *outbox
}

// NewRealClient creates a client and starts connecting to the broker. If the
// broker is not reachable within the connect timeout the client keeps
// retrying in the background and the daemon runs on without it.
func NewRealClient(opts Options) (*RealClient, error) {
	c := &RealClient{
		topics:    NewTopics(opts.Device.Identifier),
		device:    opts.Device,
		onCommand: opts.OnCommand,
		outbox:    newOutbox(outboxSize),
	}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.Device.Identifier + "-" + xid.New().String()).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(c.topics.Availability, PayloadOffline, 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	c.client = paho.NewClient(po)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Printf("mqtt: broker %s not reachable yet, retrying in background", opts.Broker)
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

func (c *RealClient) onConnect(pc paho.Client) {
	log.Printf("mqtt: connected")

	filters := map[string]byte{
		c.topics.MainCommand:      1,
		c.topics.AutomaticCommand: 1,
	}
	if err := wait(pc.SubscribeMultiple(filters, c.handleMessage), "subscribe"); err != nil {
		log.Printf("mqtt: %v", err)
	}

	msgs, err := c.device.DiscoveryMessages(c.topics)
	if err != nil {
		log.Printf("mqtt: build discovery: %v", err)
	}
	msgs = append(msgs, Message{Topic: c.topics.Availability, Payload: []byte(PayloadOnline), QoS: 1, Retained: true})

	c.mu.Lock()
	msgs = append(msgs, c.outbox.drain()...)
	c.mu.Unlock()

	for _, m := range msgs {
		if err := wait(pc.Publish(m.Topic, m.QoS, m.Retained, m.Payload), "publish"); err != nil {
			log.Printf("mqtt: %v", err)
		}
	}
}

func (c *RealClient) onConnectionLost(_ paho.Client, err error) {
	log.Printf("mqtt: %v", &ChannelFault{Op: "connection lost", Err: err})
}

func (c *RealClient) handleMessage(_ paho.Client, m paho.Message) {
	cmd, err := c.topics.ParseCommand(m.Topic(), m.Payload())
	if err != nil {
		log.Printf("mqtt: ignoring %q on %s: %v", m.Payload(), m.Topic(), err)
		return
	}
	log.Printf("mqtt: command %s %s", cmd.Valve, m.Payload())
	if c.onCommand != nil {
		c.onCommand(cmd)
	}
}

// PublishStatus sends the switch states and water totals. While the
// connection is down the messages are buffered and replayed on reconnect.
func (c *RealClient) PublishStatus(status Status) error {
	var errs []error
	for _, m := range c.topics.StatusMessages(status) {
		if err := c.publish(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishSystem sends a system lifecycle event to the broker.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return c.publish(Message{Topic: c.topics.System, Payload: payload, QoS: 1, Retained: event.Retained})
}

func (c *RealClient) publish(m Message) error {
	if !c.client.IsConnectionOpen() {
		c.mu.Lock()
		c.outbox.push(m)
		c.mu.Unlock()
		return nil
	}
	return wait(c.client.Publish(m.Topic, m.QoS, m.Retained, m.Payload), "publish")
}

// IsConnected reports whether the broker connection is up.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close marks the device offline and disconnects from the broker.
func (c *RealClient) Close() error {
	if c.client.IsConnectionOpen() {
		if err := wait(c.client.Publish(c.topics.Availability, 1, true, PayloadOffline), "publish"); err != nil {
			log.Printf("mqtt: %v", err)
		}
	}
	c.client.Disconnect(1000) // 1 second quiesce
	return nil
}

func wait(token paho.Token, op string) error {
	if !token.WaitTimeout(publishTimeout) {
		return &ChannelFault{Op: op, Err: errPublishTimeout}
	}
	if err := token.Error(); err != nil {
		return &ChannelFault{Op: op, Err: err}
	}
	return nil
}
