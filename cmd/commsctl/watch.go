package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/guardforce/messaging-platform/internal/model"
	"github.com/guardforce/messaging-platform/internal/session"
)

func newSession(e *env) *session.Session {
	return session.New(e.api, session.NewBus(), e.logger, session.Options{
		ListInterval:     e.cfg.ListInterval,
		MessageInterval:  e.cfg.MessageInterval,
		SignalInterval:   e.cfg.SignalInterval,
		RingTimeout:      e.cfg.RingTimeout,
		FailureThreshold: e.cfg.FailureThreshold,
		ScrollThreshold:  e.cfg.ScrollThreshold,
	})
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [conversation-id]",
		Short: "Run a live session, printing events and sending lines typed on stdin",
		Long: `Run a live session until interrupted.

Lines typed on stdin are sent to the open conversation. Commands:
  /open <id>     open a conversation
  /close         close the open conversation
  /retry <nonce> resend a failed message
  /discard <nonce>
  /call <peer-id> [video]
  /accept        answer the incoming call
  /hangup        reject, cancel or end the current call`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			userID := e.cfg.UserID
			if userID == "" {
				return fmt.Errorf("COMMS_USER_ID is required")
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			s := newSession(e)
			events, unsub := s.Bus().Subscribe("", 256)
			defer unsub()

			if err := s.Start(ctx, userID); err != nil {
				return err
			}
			defer s.Stop()

			if len(args) == 1 {
				if err := s.Open(args[0]); err != nil {
					return err
				}
			}

			go readCommands(ctx, s, cmd.InOrStdin(), cmd.ErrOrStderr())

			for {
				select {
				case <-ctx.Done():
					return nil
				case evt := <-events:
					printEvent(cmd.OutOrStdout(), e.json, evt)
				}
			}
		},
	}
	return cmd
}

func readCommands(ctx context.Context, s *session.Session, in io.Reader, errOut io.Writer) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := runCommand(ctx, s, line); err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
		}
	}
}

func runCommand(ctx context.Context, s *session.Session, line string) error {
	if !strings.HasPrefix(line, "/") {
		_, err := s.Send(ctx, line)
		return err
	}

	fields := strings.Fields(line)
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}

	switch fields[0] {
	case "/open":
		return s.Open(arg(1))
	case "/close":
		s.Close()
		return nil
	case "/retry":
		_, err := s.Retry(ctx, arg(1))
		return err
	case "/discard":
		return s.Discard(arg(1))
	case "/call":
		conversationID := s.ActiveConversation()
		if conversationID == "" {
			return fmt.Errorf("open a conversation first")
		}
		callType := model.CallVoice
		if arg(2) == "video" {
			callType = model.CallVideo
		}
		_, err := s.StartCall(ctx, conversationID, arg(1), callType)
		return err
	case "/accept":
		_, err := s.Accept(ctx)
		return err
	case "/hangup":
		_, err := s.Hangup(ctx)
		return err
	}
	return fmt.Errorf("unknown command %s", fields[0])
}

func printEvent(out io.Writer, asJSON bool, evt session.Event) {
	if asJSON {
		_ = json.NewEncoder(out).Encode(map[string]any{
			"kind":    evt.Kind,
			"ts":      evt.Timestamp,
			"payload": evt.Payload,
		})
		return
	}

	ts := evt.Timestamp.Format("15:04:05")
	switch p := evt.Payload.(type) {
	case session.MessagesUpdate:
		if n := len(p.Items); n > 0 {
			last := p.Items[n-1]
			fmt.Fprintf(out, "%s %s %s: [%s] %s: %s\n", ts, evt.Kind, p.ConversationID, last.State, last.SenderID, last.Text())
		}
	case session.MessageFailure:
		fmt.Fprintf(out, "%s %s nonce=%s: %v\n", ts, evt.Kind, p.Nonce, p.Err)
	case session.Call:
		fmt.Fprintf(out, "%s %s call=%s peer=%s state=%s room=%s\n", ts, evt.Kind, p.ID, p.PeerID, p.State, p.RoomURL)
	case model.UnreadTotals:
		fmt.Fprintf(out, "%s %s total=%d\n", ts, evt.Kind, p.Total)
	case session.PollStatus:
		fmt.Fprintf(out, "%s %s poller=%s failures=%d\n", ts, evt.Kind, p.Poller, p.Failures)
	case []model.ConversationView:
		fmt.Fprintf(out, "%s %s count=%d\n", ts, evt.Kind, len(p))
	default:
		fmt.Fprintf(out, "%s %s %v\n", ts, evt.Kind, p)
	}
}
