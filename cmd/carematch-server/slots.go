package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carematch/carematch/internal/domain/availability"
	"github.com/carematch/carematch/internal/domain/provider"
)

func slotsCmd() *cobra.Command {
	var start, end, tz string

	cmd := &cobra.Command{
		Use:   "slots <provider-id>",
		Short: "Print the bookable slots of a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			providerID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid provider id: %w", err)
			}
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Errorf("invalid time zone %q: %w", tz, err)
			}
			from := time.Now().In(loc)
			if start != "" {
				if from, err = time.ParseInLocation("2006-01-02", start, loc); err != nil {
					return fmt.Errorf("--start: %w", err)
				}
			}
			to := from.AddDate(0, 0, 6)
			if end != "" {
				if to, err = time.ParseInLocation("2006-01-02", end, loc); err != nil {
					return fmt.Errorf("--end: %w", err)
				}
			}

			ctx := cmd.Context()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			resolver := availability.NewResolver(
				provider.NewProviderRepoPG(pool),
				provider.NewAvailabilityRepoPG(pool),
				zerolog.Nop(),
			)
			slots, err := resolver.ComputeSlots(ctx, providerID, from, to, loc)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "START\tEND\tMINUTES")
			n := 0
			for s := range slots {
				fmt.Fprintf(w, "%s\t%s\t%d\n", s.Start.In(loc).Format(time.RFC3339), s.End.In(loc).Format(time.RFC3339), s.DurationMinutes)
				n++
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d slot(s)\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&end, "end", "", "last date, YYYY-MM-DD (default start + 6 days)")
	cmd.Flags().StringVar(&tz, "tz", "UTC", "IANA time zone the dates and output are expressed in")
	return cmd
}
