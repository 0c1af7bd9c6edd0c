package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	natspkg "github.com/brojonat/lendscan/service/nats"
)

const sseKeepalive = 10 * time.Second

// LedgerSource delivers ledger events published on subject until ctx is done.
// A closed channel means the source stopped early.
type LedgerSource interface {
	SubscribeLedgers(ctx context.Context, subject string) (<-chan *natspkg.LedgerEvent, error)
}

// JetStreamLedgerSource reads ledger events from the LEDGERS stream.
type JetStreamLedgerSource struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

var _ LedgerSource = (*JetStreamLedgerSource)(nil)

// NewJetStreamLedgerSource connects to NATS for streaming ledger events to
// HTTP clients.
func NewJetStreamLedgerSource(natsURL string, logger *slog.Logger) (*JetStreamLedgerSource, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("lendscan-ledger-stream"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return &JetStreamLedgerSource{nc: nc, js: js, logger: logger}, nil
}

// SubscribeLedgers starts an ephemeral consumer on subject. The newest event of
// every matching market is delivered first, then live events.
func (s *JetStreamLedgerSource) SubscribeLedgers(ctx context.Context, subject string) (<-chan *natspkg.LedgerEvent, error) {
	cons, err := s.js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, jetstream.ConsumerConfig{
		FilterSubject:     subject,
		AckPolicy:         jetstream.AckExplicitPolicy,
		DeliverPolicy:     jetstream.DeliverLastPerSubjectPolicy,
		InactiveThreshold: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer for %s: %w", subject, err)
	}

	events := make(chan *natspkg.LedgerEvent, 10)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		var event natspkg.LedgerEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			s.logger.Warn("dropping malformed ledger event", "subject", msg.Subject(), "error", err)
			msg.Ack()
			return
		}
		select {
		case events <- &event:
			msg.Ack()
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to consume %s: %w", subject, err)
	}

	// The callback may still be running after Stop, so events is never closed.
	go func() {
		<-ctx.Done()
		cc.Stop()
	}()
	return events, nil
}

// Close closes the NATS connection.
func (s *JetStreamLedgerSource) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

func writeSSE(w io.Writer, event string, data []byte) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// handleStreamLedgers streams ledger snapshots as Server-Sent Events.
// Without a market path parameter every market is streamed.
func handleStreamLedgers(source LedgerSource, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := natspkg.StreamSubjects
		market := r.PathValue("market")
		if market != "" {
			if err := validateAddress(market); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			subject = natspkg.SubjectForMarket(market)
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		ctx := r.Context()
		events, err := source.SubscribeLedgers(ctx, subject)
		if err != nil {
			logger.ErrorContext(ctx, "failed to subscribe to ledgers", "subject", subject, "error", err)
			writeError(w, "failed to subscribe", http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		hello, _ := json.Marshal(map[string]string{"subject": subject})
		writeSSE(w, "connected", hello)
		flusher.Flush()
		logger.DebugContext(ctx, "ledger stream opened", "subject", subject, "remote_addr", r.RemoteAddr)

		keepalive := time.NewTicker(sseKeepalive)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprint(w, ": keepalive\n\n")
				flusher.Flush()

			case event, ok := <-events:
				if !ok {
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					logger.WarnContext(ctx, "failed to encode ledger event", "market", event.Market, "error", err)
					continue
				}
				writeSSE(w, "ledger", data)
				flusher.Flush()

			case <-ctx.Done():
				logger.DebugContext(ctx, "ledger stream closed", "subject", subject)
				return
			}
		}
	})
}
