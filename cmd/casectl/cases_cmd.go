package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"modbot/model"
	"modbot/moderation"

	"github.com/spf13/cobra"
)

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "List, show and invalidate cases",
}

var casesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a guild's cases in ascending order",
	RunE:  runCasesList,
}

var casesShowCmd = &cobra.Command{
	Use:   "show <case-id>",
	Short: "Show a single case",
	Args:  cobra.ExactArgs(1),
	RunE:  runCasesShow,
}

var casesInvalidateCmd = &cobra.Command{
	Use:   "invalidate <case-id>",
	Short: "Invalidate a case without touching the platform",
	Args:  cobra.ExactArgs(1),
	RunE:  runCasesInvalidate,
}

var (
	listUser   string
	listFilter string
	listLimit  int
)

func init() {
	casesCmd.AddCommand(casesListCmd, casesShowCmd, casesInvalidateCmd)

	casesListCmd.Flags().StringVar(&listUser, "user", "", "Only cases of this user")
	casesListCmd.Flags().StringVar(&listFilter, "filter", "", "Filter kind: mutes, warnings or all (timed cases)")
	casesListCmd.Flags().IntVar(&listLimit, "limit", 0, "Stop after this many cases (0 = no limit)")
}

func requireGuild() error {
	if guildID == "" {
		return fmt.Errorf("--guild is required")
	}
	return nil
}

func parseCaseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid case id %q", arg)
	}
	return id, nil
}

func formatDuration(rec model.CaseRecord) string {
	if rec.Duration == nil {
		return "-"
	}
	return rec.Duration.String()
}

func writeCases(w io.Writer, entries []model.CaseRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CASE\tTYPE\tUSER\tMODERATOR\tCREATED\tDURATION\tSTATE\tREASON")
	for _, e := range entries {
		state := "open"
		switch {
		case e.Invalidated:
			state = "invalidated"
		case e.Appealed():
			state = "appeal"
		case e.Expired(time.Now()):
			state = "expired"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CaseID, e.Title(), e.UserID, e.ModeratorID,
			e.CreatedAt.Format(time.RFC3339), formatDuration(e), state, model.CutText(e.Reason, 60))
	}
	return tw.Flush()
}

func runCasesList(cmd *cobra.Command, args []string) error {
	if err := requireGuild(); err != nil {
		return err
	}
	store, ledger, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	var entries []model.CaseRecord
	for rec, err := range ledger.Fetch(cmd.Context(), guildID, listUser) {
		if err != nil {
			return err
		}
		entries = append(entries, rec)
		if listFilter == "" && listLimit > 0 && len(entries) >= listLimit {
			break
		}
	}
	if listFilter != "" {
		entries = moderation.Filter(entries, moderation.ParseFilterKind(listFilter), listUser)
		if listLimit > 0 && len(entries) > listLimit {
			entries = entries[:listLimit]
		}
	}
	return writeCases(cmd.OutOrStdout(), entries)
}

func runCasesShow(cmd *cobra.Command, args []string) error {
	if err := requireGuild(); err != nil {
		return err
	}
	caseID, err := parseCaseID(args[0])
	if err != nil {
		return err
	}
	store, ledger, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := ledger.Get(cmd.Context(), guildID, caseID)
	if err != nil {
		return err
	}
	return writeCases(cmd.OutOrStdout(), []model.CaseRecord{*rec})
}

func runCasesInvalidate(cmd *cobra.Command, args []string) error {
	if err := requireGuild(); err != nil {
		return err
	}
	caseID, err := parseCaseID(args[0])
	if err != nil {
		return err
	}
	store, ledger, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := ledger.Invalidate(cmd.Context(), guildID, caseID); err != nil {
		return fmt.Errorf("case %d: %s: %w", caseID, model.Classify(err), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Case #%d invalidated.\n", caseID)
	return nil
}
