// Package transport receives raw heart-rate notifications from NATS and
// records them into a measurement.
package transport

import (
	"time"

	"codeberg.org/mutker/hrvmon/internal/errors"
	"codeberg.org/mutker/hrvmon/internal/logger"
	"github.com/nats-io/nats.go"
)

const (
	clientName     = "hrvmon"
	connectTimeout = 3 * time.Second
	reconnectWait  = 500 * time.Millisecond
)

// Connect dials the NATS server at url and reconnects forever.
func Connect(url string, log logger.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(
		url,
		nats.Name(clientName),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("Disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, errors.New().Wrap(ErrConnect, err)
	}
	return nc, nil
}

// Subscribe delivers every message on subject to the ingestor.
func Subscribe(nc *nats.Conn, subject string, in *Ingestor) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		_ = in.Handle(msg.Data)
	})
	if err != nil {
		return nil, errors.New().Wrap(ErrSubscribe, err)
	}
	return sub, nil
}
