package bus

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/ilovepumpkin/dsa-historian/internal/value"
)

var (
	mqttMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dsahistorian_mqtt_messages_total",
		Help: "Total number of MQTT messages received across all subscribed paths.",
	})
	mqttConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dsahistorian_mqtt_connected",
		Help: "Whether the MQTT connection to the bus broker is currently up.",
	})
)

// MQTTConfig configures the MQTT adapter. CertificateName selects a
// client certificate pair under CertDir; leave it empty to connect
// without TLS client auth (e.g. inside a cluster with a trusted
// broker).
type MQTTConfig struct {
	BrokerURL       string
	ClientID        string
	CertificateName string
	CertDir         string
}

// MQTTBus implements Bus over an MQTT broker. One handler per path is
// registered with the client's own topic-matching dispatch; the
// SubscriptionPool above it still owns fan-out to multiple Watches.
type MQTTBus struct {
	client MQTT.Client

	mu       sync.Mutex
	handlers map[string]Handler

	connected atomic.Bool
}

// NewMQTTBus connects to the broker described by cfg and returns a
// ready-to-use Bus. Connection failures panic, matching the teacher's
// SetupMQTT: a historian that cannot reach its bus has no useful work
// to do and should fail fast at startup rather than limp along.
func NewMQTTBus(cfg MQTTConfig) *MQTTBus {
	b := &MQTTBus{handlers: make(map[string]Handler)}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(b.onConnect)
	opts.SetConnectionLostHandler(b.onConnectionLost)

	if cfg.CertificateName != "" {
		opts.SetTLSConfig(newTLSConfig(cfg.CertDir, cfg.CertificateName))
	}

	b.client = MQTT.NewClient(opts)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		panic(fmt.Sprintf("bus: failed to connect to %s: %v", cfg.BrokerURL, token.Error()))
	}
	return b
}

func (b *MQTTBus) onConnect(c MQTT.Client) {
	optsReader := c.OptionsReader()
	zap.S().Infow("bus connected", "broker", optsReader.Servers())
	b.connected.Store(true)
	mqttConnected.Set(1)
}

func (b *MQTTBus) onConnectionLost(c MQTT.Client, err error) {
	zap.S().Warnw("bus connection lost", "error", err)
	b.connected.Store(false)
	mqttConnected.Set(0)
}

func (b *MQTTBus) Connected() bool {
	return b.connected.Load()
}

// LivenessCheck returns a healthcheck.Check reporting bus connectivity.
func (b *MQTTBus) LivenessCheck() healthcheck.Check {
	return func() error {
		if b.Connected() {
			return nil
		}
		return fmt.Errorf("bus: not connected")
	}
}

func (b *MQTTBus) Subscribe(path string, handler Handler) error {
	b.mu.Lock()
	b.handlers[path] = handler
	b.mu.Unlock()

	token := b.client.Subscribe(path, 1, func(_ MQTT.Client, msg MQTT.Message) {
		mqttMessagesTotal.Inc()
		b.mu.Lock()
		h, ok := b.handlers[path]
		b.mu.Unlock()
		if !ok {
			return
		}
		h(value.SubscriptionUpdate{
			Path: path,
			// Wrapped raw rather than parsed: this adapter doesn't know
			// the payload's schema. A Dynamic's JSON round trip through
			// the database (see rowcodec.go) base64-encodes a []byte on
			// write and decodes it back to a base64 string, not the
			// original bytes — acceptable for the generic wire path,
			// since nothing downstream interprets the payload as binary.
			Value: value.NewDynamic(msg.Payload(), time.Now().UnixMilli()),
			Meta: map[string]string{
				"mqtt.message_id": fmt.Sprintf("%d", msg.MessageID()),
				"mqtt.retained":   fmt.Sprintf("%t", msg.Retained()),
			},
		})
	})
	if token.Wait() && token.Error() != nil {
		b.mu.Lock()
		delete(b.handlers, path)
		b.mu.Unlock()
		return token.Error()
	}
	return nil
}

func (b *MQTTBus) Unsubscribe(path string) error {
	b.mu.Lock()
	delete(b.handlers, path)
	b.mu.Unlock()

	token := b.client.Unsubscribe(path)
	token.Wait()
	return token.Error()
}

// Shutdown disconnects from the broker, waiting up to the given grace
// period for in-flight acknowledgements.
func (b *MQTTBus) Shutdown(grace time.Duration) {
	b.client.Disconnect(uint(grace.Milliseconds()))
}

func newTLSConfig(certDir, certificateName string) *tls.Config {
	certpool := x509.NewCertPool()
	if pemCerts, err := os.ReadFile(certDir + "/intermediate_CA.pem"); err == nil {
		certpool.AppendCertsFromPEM(pemCerts)
	}

	cert, err := tls.LoadX509KeyPair(
		certDir+"/"+certificateName+".pem",
		certDir+"/"+certificateName+"-privkey.pem",
	)
	if err != nil {
		panic(fmt.Sprintf("bus: failed to load client certificate %q: %v", certificateName, err))
	}

	return &tls.Config{
		RootCAs:      certpool,
		Certificates: []tls.Certificate{cert},
	}
}
