package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/EduardoMirandaz/sabrinator/internal/eventlog"
	"github.com/EduardoMirandaz/sabrinator/internal/query"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current box state from the event log",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := eventlog.New(cfg.Eggs.DataDir)
		q := query.New(log, cfg.Eggs.Timezone())

		state, err := q.Current()
		if err == query.ErrNoData {
			fmt.Println("no events recorded yet")
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "read current state")
		}

		fmt.Printf("box %s: %d eggs (was %d), last change %s\n",
			state.BoxID, state.CurrentCount, state.PreviousCount, state.LastUpdated)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
