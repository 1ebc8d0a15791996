package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ankaa/services/notification/phone"
)

func phoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phone",
		Short: "Phone number utilities",
	}
	cmd.AddCommand(phoneNormalizeCmd())
	return cmd
}

func phoneNormalizeCmd() *cobra.Command {
	var (
		country string
		e164    bool
	)
	cmd := &cobra.Command{
		Use:   "normalize NUMBER...",
		Short: "Normalize phone numbers the way the SMS and WhatsApp channels do",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, ok := phone.PlanFor(country)
			if !ok {
				return fmt.Errorf("unsupported country %q", country)
			}
			failed := 0
			for _, raw := range args {
				normalize := plan.Normalize
				if e164 {
					normalize = plan.E164
				}
				out, err := normalize(raw)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tinvalid: %v\n", raw, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", raw, out)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d numbers are invalid", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&country, "country", "BR", "Numbering plan")
	cmd.Flags().BoolVar(&e164, "e164", false, "Print with a leading +")
	return cmd
}
