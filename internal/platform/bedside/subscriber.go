// Package bedside receives vitals published by bedside monitors over MQTT
// and feeds them into ingestion.
package bedside

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/icuward/internal/domain/monitoring"
)

// Ingester accepts decoded readings.
type Ingester interface {
	Ingest(ctx context.Context, in monitoring.VitalsInput) (*monitoring.IngestResult, error)
}

type Config struct {
	BrokerURL string
	Topic     string
	ClientID  string
	Username  string
	Password  string
	QoS       byte
	// IngestTimeout bounds the handling of a single message.
	IngestTimeout time.Duration
}

// Decode parses a monitor message. The patient id is taken from the payload
// or, when absent there, from the last segment of the topic, as in
// icu/vitals/<patient-id>.
func Decode(topic string, payload []byte) (monitoring.VitalsInput, error) {
	var in monitoring.VitalsInput
	if err := json.Unmarshal(payload, &in); err != nil {
		return in, fmt.Errorf("decode vitals on %s: %w", topic, err)
	}
	if in.PatientID == uuid.Nil {
		seg := topic[strings.LastIndex(topic, "/")+1:]
		id, err := uuid.Parse(seg)
		if err != nil {
			return in, fmt.Errorf("no patient id in payload or topic %s", topic)
		}
		in.PatientID = id
	}
	return in, nil
}

type Subscriber struct {
	cfg    Config
	ingest Ingester
	logger zerolog.Logger
}

func NewSubscriber(cfg Config, ingest Ingester, logger zerolog.Logger) *Subscriber {
	if cfg.Topic == "" {
		cfg.Topic = "icu/vitals/+"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "icuward-server"
	}
	if cfg.IngestTimeout <= 0 {
		cfg.IngestTimeout = 10 * time.Second
	}
	return &Subscriber{
		cfg:    cfg,
		ingest: ingest,
		logger: logger.With().Str("component", "bedside-mqtt").Logger(),
	}
}

// Handle decodes and ingests a single message. Errors are returned to the
// caller and never stop the subscription.
func (s *Subscriber) Handle(ctx context.Context, topic string, payload []byte) error {
	in, err := Decode(topic, payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.IngestTimeout)
	defer cancel()
	res, err := s.ingest.Ingest(ctx, in)
	if err != nil {
		return fmt.Errorf("ingest vitals for %s: %w", in.PatientID, err)
	}
	s.logger.Debug().
		Str("patient_id", in.PatientID.String()).
		Float64("risk_score", res.Reading.RiskScore).
		Str("risk_level", string(res.Reading.RiskLevel)).
		Msg("bedside reading ingested")
	return nil
}

// Run connects to the broker, subscribes and blocks until ctx is done.
func (s *Subscriber) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.BrokerURL)
	opts.SetClientID(s.cfg.ClientID)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
	}
	if s.cfg.Password != "" {
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn().Err(err).Msg("mqtt connection lost")
	})
	// Subscriptions are dropped with a clean session, so they are restored on
	// every (re)connect.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			if err := s.Handle(ctx, msg.Topic(), msg.Payload()); err != nil {
				s.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("bedside message rejected")
			}
		})
		if token.Wait() && token.Error() != nil {
			s.logger.Error().Err(token.Error()).Str("topic", s.cfg.Topic).Msg("mqtt subscribe failed")
			return
		}
		s.logger.Info().Str("topic", s.cfg.Topic).Msg("subscribed to bedside vitals")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to mqtt broker %s: %w", s.cfg.BrokerURL, token.Error())
	}
	<-ctx.Done()
	client.Disconnect(250)
	s.logger.Info().Msg("bedside subscriber stopped")
	return nil
}
