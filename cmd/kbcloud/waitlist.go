package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/knowledge-bank/kb-cloud/waitlist"
)

var waitlistNote string

var waitlistCmd = &cobra.Command{
	Use:   "waitlist",
	Short: "Manage waitlist signups",
}

var waitlistAddCmd = &cobra.Command{
	Use:     "add [email]",
	Short:   "Add an address to the waitlist",
	Example: `  kbcloud waitlist add reader@example.com --note "parlay pilot beta"`,
	Args:    cobra.ExactArgs(1),
	RunE:    addToWaitlist,
}

func init() {
	waitlistAddCmd.Flags().StringVar(&waitlistNote, "note", "", "Optional note stored with the signup")
	waitlistCmd.AddCommand(waitlistAddCmd)
}

func addToWaitlist(cmd *cobra.Command, args []string) error {
	svc, err := newWaitlist(cfg, log)
	if err != nil {
		return err
	}

	email, err := json.Marshal(args[0])
	if err != nil {
		return err
	}
	signup := waitlist.Signup{Email: email}
	if waitlistNote != "" {
		if signup.Note, err = json.Marshal(waitlistNote); err != nil {
			return err
		}
	}

	sub, err := svc.Add(cmd.Context(), signup)
	if errors.Is(err, waitlist.ErrNotConfigured) {
		return errors.New("SUPABASE_URL and SUPABASE_ANON_KEY must be set")
	}
	if err != nil {
		return err
	}

	if sub == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "added (no row returned)")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(sub))
	return nil
}
