package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/EduardoMirandaz/sabrinator/internal/auth"
	"github.com/EduardoMirandaz/sabrinator/internal/authstore"
)

var (
	inviteMaxUses      int
	inviteExpiresHours int
)

var inviteCmd = &cobra.Command{
	Use:   "invite",
	Short: "Manage registration invites",
}

var inviteCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a registration invite token",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := authstore.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
		if err != nil {
			return eris.Wrap(err, "open account store")
		}
		defer store.Close()

		svc := auth.New(store, cfg.Auth, cfg.Eggs.Timezone())
		inv, err := svc.CreateInvite(ctx, inviteMaxUses, inviteExpiresHours)
		if err != nil {
			return eris.Wrap(err, "create invite")
		}

		fmt.Printf("token: %s\nexpires: %s\nmax uses: %d\n", inv.Token, inv.ExpiresAt, inv.MaxUses)
		return nil
	},
}

var inviteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registration invites",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := authstore.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
		if err != nil {
			return eris.Wrap(err, "open account store")
		}
		defer store.Close()

		invites, err := store.ListInvites(ctx)
		if err != nil {
			return eris.Wrap(err, "list invites")
		}

		if len(invites) == 0 {
			fmt.Println("no invites")
			return nil
		}
		for _, inv := range invites {
			fmt.Printf("%s  uses %d/%d  expires %s\n", inv.Token, inv.Uses, inv.MaxUses, inv.ExpiresAt)
		}
		return nil
	},
}

var inviteRevokeCmd = &cobra.Command{
	Use:   "revoke <token>",
	Short: "Revoke a registration invite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := authstore.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
		if err != nil {
			return eris.Wrap(err, "open account store")
		}
		defer store.Close()

		if err := store.RevokeInvite(ctx, args[0]); err != nil {
			return eris.Wrap(err, "revoke invite")
		}

		fmt.Println("revoked")
		return nil
	},
}

func init() {
	inviteCreateCmd.Flags().IntVar(&inviteMaxUses, "max-uses", 1, "number of registrations the invite allows")
	inviteCreateCmd.Flags().IntVar(&inviteExpiresHours, "expires-hours", 24, "hours until the invite expires")
	inviteCmd.AddCommand(inviteCreateCmd, inviteListCmd, inviteRevokeCmd)
	rootCmd.AddCommand(inviteCmd)
}
