// Package processor drains run-completed messages from the embedded
// JetStream into the Postgres run log.
package processor

import (
	"context"
	"encoding/json"

	"github.com/DigitalAeolus/Waza-backend-wrapper/internal/jetstream"
	"github.com/DigitalAeolus/Waza-backend-wrapper/internal/storage"
	nats "github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

type Processor struct {
	writer *storage.BatchWriter
}

func New(writer *storage.BatchWriter) *Processor {
	return &Processor{writer: writer}
}

// StartConsumer subscribes to run-completed subjects and enqueues one audit
// row per message. Blocks until ctx is canceled, then drains the
// subscription.
func (p *Processor) StartConsumer(ctx context.Context, js nats.JetStreamContext) {
	sub, err := js.Subscribe(jetstream.RunSubjectWildcard, func(msg *nats.Msg) {
		var rec storage.RunRecord
		if err := json.Unmarshal(msg.Data, &rec); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("malformed run message, discarding")
			msg.Term()
			return
		}
		p.writer.Enqueue(storage.InsertRunJob(&rec))
		msg.Ack()

		log.Debug().
			Str("request_id", rec.ID.String()).
			Str("status", rec.Status).
			Bool("success", rec.Success).
			Msg("run recorded")
	}, nats.ManualAck(), nats.AckExplicit(), nats.Durable("waza-runlog"))
	if err != nil {
		log.Error().Err(err).Msg("failed to subscribe to run subjects")
		return
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		log.Warn().Err(err).Msg("run consumer drain failed")
	}
}
