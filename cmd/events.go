/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vidtube/apiserver/internal/events"
	"github.com/vidtube/apiserver/internal/mq"
)

// eventsCmd represents the events command.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect account events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log account events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			if errors.Is(err, mq.ErrDisabled) {
				return errors.New("MQ_BACKEND is not set")
			}
			return err
		}
		defer func() {
			_ = queue.Close()
		}()

		logger.Info().Str("channel", queue.Channel()).Msg("tailing account events")
		err = queue.Subscribe(ctx, func(_ context.Context, msg mq.Message) error {
			event, err := events.Decode(msg)
			if err != nil {
				logger.Warn().Err(err).Str("message_id", msg.ID).Msg("undecodable event")
				// Acked so a bad payload does not loop.
				return nil
			}
			logger.Info().
				Str("message_id", msg.ID).
				Str("type", string(event.Type)).
				Int("user_id", event.UserID).
				Str("username", event.Username).
				Time("occurred_at", event.OccurredAt).
				Msg("event")
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
