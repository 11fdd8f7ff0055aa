// Package main is a terminal chat client for the relay.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xiaot623/chatrelay/internal/chatclient"
	"github.com/xiaot623/chatrelay/internal/conversation"
	"github.com/xiaot623/chatrelay/internal/localstore"
	"github.com/xiaot623/chatrelay/internal/logging"
	"github.com/xiaot623/chatrelay/internal/session"
)

const (
	keyRelayURL = "relay-url"
	keyRoute    = "route"
	keyStateDir = "state-dir"
	keyLogLevel = "log-level"
	keyTimeout  = "timeout"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "chat",
		Short:         "Chat with the webhook relay from the terminal",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(v.GetString(keyLogLevel), "console", os.Stderr)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, v, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := root.PersistentFlags()
	flags.String(keyRelayURL, chatclient.DefaultBaseURL, "relay base URL")
	flags.String(keyRoute, "", "route forwarded with every message")
	flags.String(keyStateDir, defaultStateDir(), "directory holding the local chat state")
	flags.String(keyLogLevel, "warn", "log level")
	flags.Duration(keyTimeout, 30*time.Second, "request timeout")
	_ = v.BindPFlags(flags)

	root.AddCommand(newHealthCmd(v))
	return root
}

func newHealthCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Print the relay health status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := chatclient.NewClient(v.GetString(keyRelayURL), v.GetDuration(keyTimeout))
			health, err := client.Health(cmd.Context())
			if err != nil {
				return errors.Wrapf(err, "health check against %s failed", client.BaseURL())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status: %s\nwebhook configured: %t\ntarget: %s\n",
				health.Status, health.WebhookConfigured, health.Target)
			return nil
		},
	}
}

func runChat(ctx context.Context, v *viper.Viper, in io.Reader, out io.Writer) error {
	var kv session.KV
	store, err := localstore.OpenDir(v.GetString(keyStateDir))
	if err != nil {
		log.Warn().Err(err).Msg("local state unavailable, chat id will not persist")
	} else {
		defer store.Close()
		kv = store
	}
	chatID := session.LoadOrCreate(ctx, kv)

	client := chatclient.NewClient(v.GetString(keyRelayURL), v.GetDuration(keyTimeout))
	conv := conversation.New(client, chatID, conversation.WithRoute(v.GetString(keyRoute)))

	r := newRenderer(out)
	unsubscribe := conv.Subscribe(r.Render)
	defer unsubscribe()

	fmt.Fprintf(out, "Connected to %s as %s\n", client.BaseURL(), chatID)
	fmt.Fprintln(out, "Commands: /clear, /id, /quit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, promptStyle.Render("> "))
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch strings.TrimSpace(line) {
			case "":
				continue
			case "/quit":
				fmt.Fprintln(out, "Bye!")
				return nil
			case "/clear":
				conv.Clear()
				fmt.Fprintln(out, "Conversation cleared.")
			case "/id":
				fmt.Fprintln(out, conv.ChatID())
			default:
				conv.SetInput(line)
				conv.Send(ctx)
			}
		}
	}
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".chatrelay"
	}
	return filepath.Join(dir, "chatrelay")
}
