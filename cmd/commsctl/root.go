package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/guardforce/messaging-platform/internal/client"
	"github.com/guardforce/messaging-platform/internal/config"
	"github.com/guardforce/messaging-platform/pkg/logger"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "commsctl",
		Short:         "Headless client for the guard-force messaging platform",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("api", "", "API base URL (default $COMMS_API_URL)")
	cmd.PersistentFlags().String("token", "", "bearer token (default $COMMS_TOKEN)")
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")

	cmd.AddCommand(
		newWatchCmd(),
		newSendCmd(),
		newCallCmd(),
		newConversationsCmd(),
		newUnreadCmd(),
		newTokenCmd(),
	)
	return cmd
}

// env bundles what every command needs.
type env struct {
	cfg    *config.SessionConfig
	api    *client.Client
	logger *logger.Logger
	json   bool
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	cfg := config.LoadSession()
	if v, _ := cmd.Flags().GetString("api"); v != "" {
		cfg.APIURL = v
	}
	if v, _ := cmd.Flags().GetString("token"); v != "" {
		cfg.Token = v
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("a token is required: set COMMS_TOKEN or pass --token")
	}

	api, err := client.New(cfg.APIURL, cfg.Token)
	if err != nil {
		return nil, err
	}

	log, err := logger.NewConsole(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	return &env{cfg: cfg, api: api, logger: log, json: asJSON}, nil
}

func (e *env) print(cmd *cobra.Command, v any, text string) error {
	if e.json {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(v)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), text)
	return err
}
