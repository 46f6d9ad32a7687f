package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/example/session-orchestrator/internal/scheduler"
)

type localTimeFlags struct {
	zone string
	date string
	time string
}

func (f *localTimeFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.zone, "zone", "", "zone label or IANA name")
	fs.StringVar(&f.date, "date", "", "local date, YYYY-MM-DD")
	fs.StringVar(&f.time, "time", "", "local time, HH:mm")
}

// newResolveCommand converts a local date and time to an instant with the
// same strict DST policy the services use.
func newResolveCommand() *cobra.Command {
	var flags localTimeFlags
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Convert a local date and time in a zone to UTC",
		Example: `  orchestrator resolve --zone "(UTC-05) Eastern Time" --date 2025-03-09 --time 02:15`,
		RunE: func(cmd *cobra.Command, args []string) error {
			zone, err := scheduler.DefaultZoneResolver().Resolve(flags.zone)
			if err != nil {
				return err
			}
			civil, err := scheduler.ParseCivilDate(flags.date)
			if err != nil {
				return err
			}
			wall, err := scheduler.ParseClockTime(flags.time)
			if err != nil {
				return err
			}

			instant, err := scheduler.ToInstantStrict(civil, wall, zone)
			var localErr *scheduler.LocalTimeError
			if errors.As(err, &localErr) {
				fmt.Fprintf(cmd.OutOrStdout(), "rejected: %s (window %s-%s in %s)\n",
					localErr.Reason, localErr.WindowStart, localErr.WindowEnd, localErr.Zone)
				return err
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", instant.UTC().Format(time.RFC3339), zone.Name)
			return err
		},
	}
	flags.register(cmd.Flags())
	for _, name := range []string{"zone", "date", "time"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
