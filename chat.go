package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/karthikraju391/rentchat/api"
	"github.com/karthikraju391/rentchat/models"
	"github.com/karthikraju391/rentchat/session"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat [username]",
	Short: "Chat with another user from the terminal",
	Long: `Opens a chat session as --as and, if given, starts a conversation with username.

Lines are sent to the current conversation. Commands:
  /search <query>   find users by username or email
  /with <username>  switch conversation
  /refresh          reload the conversation history
  /quit             leave`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().String("as", "", "email of the local user (required)")
	_ = chatCmd.MarkFlagRequired("as")
}

func runChat(cmd *cobra.Command, args []string) error {
	identity, _ := cmd.Flags().GetString("as")
	out := cmd.OutOrStdout()

	client := api.New(cfg.Client.APIURL, api.WithLogger(logger), api.WithTimeout(cfg.Client.RequestTimeout))
	dialer := session.NewWSDialer(cfg.Client.WebSocketURL)
	dialer.MaxMessageSize = cfg.Transport.MaxMessageSize

	s, err := session.Open(session.Options{
		Identity: identity,
		Dialer:   dialer,
		Backend:  client,
		Logger:   logger,
		Reconnect: session.ReconnectPolicy{
			MaxAttempts:    cfg.Client.Reconnect.MaxAttempts,
			InitialBackoff: cfg.Client.Reconnect.InitialBackoff,
			MaxBackoff:     cfg.Client.Reconnect.MaxBackoff,
		},
	})
	if err != nil {
		return err
	}
	defer s.Close()

	s.OnMessage(func(m models.Message) { printMessage(out, identity, m) })
	s.OnStateChange(func(st session.State) { fmt.Fprintf(out, "-- connection %s\n", st) })

	ctx := cmd.Context()
	if len(args) == 1 {
		if err := switchTo(ctx, out, client, s, args[0]); err != nil {
			fmt.Fprintln(out, "--", err)
		}
	}

	sc := bufio.NewScanner(cmd.InOrStdin())
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if err := s.Send(ctx, line); err != nil {
				fmt.Fprintln(out, "-- send failed:", err)
			}
			continue
		}
		verb, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch verb {
		case "/quit":
			return nil
		case "/search":
			peers, err := client.SearchUsers(ctx, arg)
			if err != nil {
				fmt.Fprintln(out, "-- search failed:", err)
				continue
			}
			for _, p := range peers {
				fmt.Fprintf(out, "   %s <%s>\n", p.Username, p.Email)
			}
		case "/with":
			if err := switchTo(ctx, out, client, s, arg); err != nil {
				fmt.Fprintln(out, "--", err)
			}
		case "/refresh":
			if err := s.Refresh(ctx); err != nil {
				fmt.Fprintln(out, "-- refresh failed:", err)
				continue
			}
			for _, m := range s.Messages() {
				printMessage(out, identity, m)
			}
		default:
			fmt.Fprintf(out, "-- unknown command %s\n", verb)
		}
	}
	return sc.Err()
}

// switchTo resolves username through search and makes it the current conversation.
func switchTo(ctx context.Context, out io.Writer, client *api.Client, s *session.Session, username string) error {
	if username == "" {
		return errors.New("usage: /with <username>")
	}
	peers, err := client.SearchUsers(ctx, username)
	if err != nil {
		return fmt.Errorf("look up %s: %w", username, err)
	}
	for _, p := range peers {
		if p.Username == username {
			fmt.Fprintf(out, "-- chatting with %s <%s>\n", p.Username, p.Email)
			return s.SelectCounterpart(p)
		}
	}
	return fmt.Errorf("no user named %s", username)
}

func printMessage(w io.Writer, identity string, m models.Message) {
	who := m.SenderEmail
	if who == identity {
		who = "you"
	}
	ts := ""
	if !m.Timestamp.IsZero() {
		ts = m.Timestamp.Local().Format("15:04") + " "
	}
	fmt.Fprintf(w, "%s%s: %s\n", ts, who, m.Text)
}
