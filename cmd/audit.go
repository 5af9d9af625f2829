/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/secure-assignment/apiserver/config"
	"github.com/secure-assignment/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

// auditCmd tails the security audit channel and prints events. Useful as a
// lightweight audit sink when no dedicated consumer is deployed.
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Tail security audit events from the configured broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		var backend mq.Backend
		var err error
		switch cfg.MQBackend {
		case config.MQBackendRabbitMQ:
			backend, err = mq.NewRabbitMQClient(cfg.RabbitMQ)
		case config.MQBackendPubSub:
			backend, err = mq.NewPubSubClient(cmd.Context(), cfg.PubSub)
		default:
			return errors.New("MQ_BACKEND must be set to rabbitmq or pubsub")
		}
		if err != nil {
			return err
		}

		broker := mq.New(backend)
		defer broker.Close()

		logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
		return broker.Subscribe(cmd.Context(), mq.AuditChannel, func(ctx context.Context, msg mq.Message) error {
			var event mq.AuditEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				logger.Warn("unparseable audit event", "id", msg.ID)
				return nil
			}
			logger.Info("audit",
				"type", event.Type,
				"user_id", event.UserID,
				"username", event.Username,
				"detail", fmt.Sprint(event.Detail),
				"at", event.At)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
