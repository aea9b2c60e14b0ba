package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/farandaway89/scada-ai-system/internal/models"
)

// NATSSource subscribes to per-sensor reading subjects
// (<prefix>.<sensor_id>) and feeds decoded candidates into the validator.
type NATSSource struct {
	logger        *slog.Logger
	validator     *Validator
	subjectPrefix string

	conn *nats.Conn
	sub  *nats.Subscription
}

// NewNATSSource connects to the broker. The connection reconnects
// indefinitely with a short wait, matching how the rest of the pipeline
// treats transient infrastructure failures.
func NewNATSSource(logger *slog.Logger, url, subjectPrefix string, validator *Validator) (*NATSSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if subjectPrefix == "" {
		subjectPrefix = "readings"
	}

	conn, err := nats.Connect(url,
		nats.Name("scada-pipeline-ingest"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}

	return &NATSSource{
		logger:        logger,
		validator:     validator,
		subjectPrefix: subjectPrefix,
		conn:          conn,
	}, nil
}

// Start subscribes to every sensor subject under the prefix.
func (n *NATSSource) Start() error {
	subject := n.subjectPrefix + ".>"
	sub, err := n.conn.Subscribe(subject, n.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	n.sub = sub
	n.logger.Info("nats source started", slog.String("subject", subject))
	return nil
}

// Close drains the subscription and closes the connection.
func (n *NATSSource) Close() {
	if n.sub != nil {
		_ = n.sub.Drain()
	}
	if n.conn != nil {
		n.conn.Close()
	}
}

func (n *NATSSource) handle(msg *nats.Msg) {
	var candidate models.ReadingCandidate
	if err := json.Unmarshal(msg.Data, &candidate); err != nil {
		n.logger.Warn("undecodable reading dropped",
			slog.String("subject", msg.Subject),
			slog.Any("error", err))
		return
	}

	// The subject suffix is authoritative when the payload omits the sensor.
	if candidate.SensorID == "" {
		candidate.SensorID = strings.TrimPrefix(msg.Subject, n.subjectPrefix+".")
	}
	if candidate.Timestamp.IsZero() {
		candidate.Timestamp = time.Now().UTC()
	}

	// Rejections are counted and logged by the validator.
	_, _ = n.validator.Ingest(candidate)
}
