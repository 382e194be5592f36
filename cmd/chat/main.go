// Command chat runs the agent against the configured model from a terminal.
// Each line typed is one patient turn; replies and tool traffic go to stdout.
// Stores are in-memory unless DATABASE_URL is set.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wolfman30/clinic-booking-agent/cmd/mainconfig"
	"github.com/wolfman30/clinic-booking-agent/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-booking-agent/internal/config"
	"github.com/wolfman30/clinic-booking-agent/internal/conversation"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

func main() {
	address := flag.String("address", "5511999990000", "patient address to simulate")
	flag.Parse()

	cfg := appconfig.Load()
	cfg.UseMemoryQueue = true
	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()
	awsCfg, err := mainconfig.OptionalAWSConfig(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aws config: %v\n", err)
		os.Exit(1)
	}
	app, err := bootstrap.Build(ctx, cfg, bootstrap.Deps{AWS: awsCfg, Sender: consoleSender{out: os.Stdout}}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wire runtime: %v\n", err)
		os.Exit(1)
	}

	if err := repl(ctx, app.Agent, *address, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "chat: %v\n", err)
		os.Exit(1)
	}
}

type turnRunner interface {
	HandleTurn(ctx context.Context, address, text string) (conversation.Reply, error)
}

func repl(ctx context.Context, agent turnRunner, address string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			fmt.Fprint(out, "> ")
			continue
		}
		if text == "/quit" {
			return nil
		}
		reply, err := agent.HandleTurn(ctx, address, text)
		if err != nil {
			return err
		}
		for _, part := range conversation.SplitReply(reply.Text) {
			fmt.Fprintf(out, "[%s] %s\n", reply.Stage, part)
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

// consoleSender prints what would go out over the gateway, which only
// happens here for escalation alerts.
type consoleSender struct {
	out io.Writer
}

func (s consoleSender) SendText(_ context.Context, to, body string) error {
	_, err := fmt.Fprintf(s.out, "(to %s) %s\n", to, body)
	return err
}

func (consoleSender) MarkRead(context.Context, string, string) error { return nil }

func (consoleSender) SendTyping(context.Context, string, int) error { return nil }
