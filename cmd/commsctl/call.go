package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guardforce/messaging-platform/internal/model"
	"github.com/guardforce/messaging-platform/internal/session"
)

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <conversation-id> <peer-id>",
		Short: "Ring a participant and wait until the call is answered, refused or times out",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			if e.cfg.UserID == "" {
				return fmt.Errorf("COMMS_USER_ID is required")
			}

			callType := model.CallVoice
			if video, _ := cmd.Flags().GetBool("video"); video {
				callType = model.CallVideo
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			s := newSession(e)
			events, unsub := s.Bus().Subscribe(session.EventCallState, 16)
			defer unsub()

			if err := s.Start(ctx, e.cfg.UserID); err != nil {
				return err
			}
			defer s.Stop()

			call, err := s.StartCall(ctx, args[0], args[1], callType)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ringing %s (call %s)\n", args[1], call.ID)

			for {
				select {
				case <-ctx.Done():
					_, err := s.Hangup(cmd.Context())
					return err
				case evt := <-events:
					c := evt.Payload.(session.Call)
					if c.ID != call.ID {
						continue
					}
					switch {
					case c.State == session.CallActive:
						return e.print(cmd, c, "answered, join at "+c.RoomURL)
					case c.TimedOut:
						return e.print(cmd, c, "no answer")
					case !c.State.Busy():
						return e.print(cmd, c, "call "+string(c.State))
					}
				}
			}
		},
	}
	cmd.Flags().Bool("video", false, "start a video call")
	return cmd
}
