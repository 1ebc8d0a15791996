package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ankaa/config"
	"ankaa/models"
	"ankaa/utils"
)

func notifyCmd() *cobra.Command {
	var (
		recipientID string
		n           models.Notification
		importance  string
		channels    []string
		wait        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send one notification to a directory recipient and wait for the outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, raw := range channels {
				ch, ok := models.ParseChannel(raw)
				if !ok {
					return fmt.Errorf("unknown channel %q", raw)
				}
				n.ExplicitChannels = append(n.ExplicitChannels, ch)
			}
			n.Importance = models.Importance(importance)

			config.LoadConfig()
			logger := utils.GetLogger()
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, err := buildEngine(ctx, logger)
			if err != nil {
				return err
			}
			defer eng.Close(context.Background())

			receipt, err := eng.service.NotifyUser(ctx, n, recipientID)
			if err != nil {
				return err
			}
			records := waitForOutcome(ctx, eng, receipt.NotificationID, len(receipt.Channels), wait)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"receipt": receipt, "deliveries": records})
		},
	}
	cmd.Flags().StringVar(&recipientID, "recipient", "", "Recipient id in the directory")
	cmd.Flags().StringVar(&n.Type, "type", "", "Notification type, e.g. task.created")
	cmd.Flags().StringVar(&n.Title, "title", "", "Title")
	cmd.Flags().StringVar(&n.Body, "body", "", "Body")
	cmd.Flags().StringVar(&importance, "importance", string(models.ImportanceMedium), "LOW, MEDIUM, HIGH or URGENT")
	cmd.Flags().StringSliceVar(&channels, "channel", nil, "Explicit channels, bypassing preferences")
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "How long to wait for every channel to finish")
	_ = cmd.MarkFlagRequired("recipient")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

// waitForOutcome polls until every queued channel is terminal or the wait ends.
// Pending retries are reported as RETRYING.
func waitForOutcome(ctx context.Context, eng *engine, notificationID string, channels int, wait time.Duration) []models.DeliveryRecord {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var records []models.DeliveryRecord
	for {
		records, _ = eng.records.ListByNotification(ctx, notificationID)
		if len(records) >= channels && allTerminal(records) {
			return records
		}
		select {
		case <-ctx.Done():
			return records
		case <-deadline.C:
			return records
		case <-ticker.C:
		}
	}
}

func allTerminal(records []models.DeliveryRecord) bool {
	for _, r := range records {
		if !r.Status.IsTerminal() {
			return false
		}
	}
	return true
}
