// Package events publishes committed operation events to NATS JetStream.
// Publishing is strictly post-commit and best-effort: a publish failure is
// logged and counted, never propagated into the operation result.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"go-ledger/internal/metrics"
)

// Publisher is the post-commit event sink consumed by the services. The nil
// pointer is a valid no-op publisher so tests and dev mode can skip NATS.
type Publisher struct {
	conn          *nats.Conn
	js            nats.JetStreamContext
	subjectPrefix string
	logger        *logrus.Logger
}

// NewPublisher connects to NATS and ensures the event stream exists.
func NewPublisher(url, streamName, subjectPrefix string, logger *logrus.Logger) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	// Create the stream if it does not exist yet.
	if _, err := js.StreamInfo(streamName); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     streamName,
			Subjects: []string{subjectPrefix + ".>"},
			Storage:  nats.FileStorage,
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create stream %s: %w", streamName, err)
		}
	}

	logger.WithFields(logrus.Fields{
		"url":    url,
		"stream": streamName,
	}).Info("NATS event publisher initialized")

	return &Publisher{
		conn:          conn,
		js:            js,
		subjectPrefix: subjectPrefix,
		logger:        logger,
	}, nil
}

// Publish sends a JSON event on "<prefix>.<area>.<op>". Safe on a nil
// receiver.
func (p *Publisher) Publish(area, op string, payload any) {
	if p == nil {
		return
	}
	subject := fmt.Sprintf("%s.%s.%s", p.subjectPrefix, area, op)

	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"subject": subject,
			"error":   err.Error(),
		}).Error("Failed to marshal event payload")
		metrics.EventsFailed.WithLabelValues(subject).Inc()
		return
	}

	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.logger.WithFields(logrus.Fields{
			"subject": subject,
			"error":   err.Error(),
		}).Warn("Failed to publish event")
		metrics.EventsFailed.WithLabelValues(subject).Inc()
		return
	}
	metrics.EventsPublished.WithLabelValues(subject).Inc()
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
