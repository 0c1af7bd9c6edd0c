package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"

	natspkg "github.com/brojonat/lendscan/service/nats"
)

// subscribeCommand streams ledger snapshots published by the worker.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to ledger snapshots",
		ArgsUsage: "[market_address]",
		Description: `Stream ledger snapshots published to NATS JetStream.

Snapshots are published to the subject ledger.{market}. Without a market
argument every market is streamed.

Example:
  lendscan nats subscribe 4UpD2fh7xH3VP9QQaXtsS1YY3bxzWhtfpks7FatyKvdY --last`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "last",
				Usage: "Start with the most recent snapshot of each market",
			},
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "lendscan-cli",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq expression applied to each snapshot",
			},
		},
		Action: func(c *cli.Context) error {
			subject := natspkg.StreamSubjects
			if c.NArg() > 0 {
				subject = natspkg.SubjectForMarket(c.Args().First())
			}

			consumerConfig := jetstream.ConsumerConfig{
				FilterSubject: subject,
				AckPolicy:     jetstream.AckExplicitPolicy,
				DeliverPolicy: jetstream.DeliverNewPolicy,
			}
			if c.Bool("last") {
				consumerConfig.DeliverPolicy = jetstream.DeliverLastPerSubjectPolicy
			}
			if c.Bool("durable") {
				consumerConfig.Durable = c.String("consumer-name")
				consumerConfig.Name = c.String("consumer-name")
			}

			var render func(io.Writer, *natspkg.LedgerEvent) error
			switch {
			case c.String("jq") != "":
				expr := c.String("jq")
				if _, err := compileJQ(expr); err != nil {
					return err
				}
				render = func(w io.Writer, e *natspkg.LedgerEvent) error { return printJQ(w, expr, e) }
			case c.Bool("json"):
				render = func(w io.Writer, e *natspkg.LedgerEvent) error {
					data, err := json.Marshal(e)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(w, string(data))
					return err
				}
			default:
				render = printLedgerEvent
				fmt.Fprintf(c.App.Writer, "📡 Subscribing to: %s\n", subject)
				fmt.Fprintf(c.App.Writer, "   NATS: %s\n", c.String("nats-url"))
				fmt.Fprintf(c.App.Writer, "\nWaiting for snapshots... (Ctrl-C to exit)\n\n")
			}

			return streamLedgers(c, consumerConfig, render)
		},
	}
}

func streamLedgers(c *cli.Context, consumerConfig jetstream.ConsumerConfig, render func(io.Writer, *natspkg.LedgerEvent) error) error {
	nc, err := nats.Connect(c.String("nats-url"), nats.Name("lendscan-cli"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := signalContext(c)
	defer cancel()

	cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	msgChan := make(chan jetstream.Msg, 10)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		select {
		case msgChan <- msg:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			var event natspkg.LedgerEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
				msg.Ack()
				continue
			}
			count++
			if err := render(c.App.Writer, &event); err != nil {
				fmt.Fprintf(os.Stderr, "Error rendering event: %v\n", err)
			}
			msg.Ack()

		case <-ctx.Done():
			if !c.Bool("json") && c.String("jq") == "" {
				fmt.Fprintf(c.App.Writer, "\n✅ Received %d snapshot(s)\n", count)
			}
			return nil
		}
	}
}

func printLedgerEvent(w io.Writer, e *natspkg.LedgerEvent) error {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Scan %s\n", e.ScanID)
	fmt.Fprintf(w, "Published:       %s\n", e.PublishedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Accounts:        %d\n", e.AccountsScanned)
	fmt.Fprintf(w, "Scan duration:   %s\n", e.ScanDuration.Round(time.Millisecond))
	fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
	if e.Report == nil {
		fmt.Fprintln(w, "(no report)")
		return nil
	}
	printReport(w, e.Report, nil)
	fmt.Fprintln(w)
	return nil
}

// inspectStreamCommand shows information about the ledger stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the LEDGERS JetStream stream",
		Action: func(c *cli.Context) error {
			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			stream, err := js.Stream(c.Context, natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}
			info, err := stream.Info(c.Context)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if c.Bool("json") {
				return printJSON(c.App.Writer, info)
			}
			w := c.App.Writer
			fmt.Fprintf(w, "Stream: %s\n", info.Config.Name)
			fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
			fmt.Fprintf(w, "Subjects:     %v\n", info.Config.Subjects)
			fmt.Fprintf(w, "Messages:     %d\n", info.State.Msgs)
			fmt.Fprintf(w, "Bytes:        %d\n", info.State.Bytes)
			fmt.Fprintf(w, "Consumers:    %d\n", info.State.Consumers)
			fmt.Fprintf(w, "Max Age:      %s\n", info.Config.MaxAge)
			return nil
		},
	}
}
