package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"modbot/model"
	"modbot/utils/database/cases"

	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect scheduled tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted pending tasks in firing order",
	RunE:  runTasksList,
}

var tasksKind string

func init() {
	tasksCmd.AddCommand(tasksListCmd)
	tasksListCmd.Flags().StringVar(&tasksKind, "kind", "", "Only tasks of this kind")
}

func writeTasks(w io.Writer, tasks []model.ScheduledTask, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tDUE\tIN\tCATCHUP\tPAYLOAD")
	for _, t := range tasks {
		keys := make([]string, 0, len(t.Payload))
		for k := range t.Payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		payload := ""
		for _, k := range keys {
			payload += fmt.Sprintf("%s=%v ", k, t.Payload[k])
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
			t.ID, t.Kind, t.DueAt.Format(time.RFC3339), t.DueAt.Sub(now).Round(time.Second), t.CatchUp, payload)
	}
	return tw.Flush()
}

func runTasksList(cmd *cobra.Command, args []string) error {
	store, err := cases.Init(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	tasks, err := store.ListPendingTasks(cmd.Context())
	if err != nil {
		return err
	}
	filtered := tasks[:0]
	for _, t := range tasks {
		if tasksKind == "" || t.Kind == tasksKind {
			filtered = append(filtered, t)
		}
	}
	return writeTasks(cmd.OutOrStdout(), filtered, time.Now())
}
