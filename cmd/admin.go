package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"meditrack-backend/internal/services"
)

func (a *app) createAdminCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account or reset its password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			users := services.NewUserService(db, a.cfg.AdminEmailDomain)
			admin, created, err := users.EnsureAdmin(cmd.Context(), email, password)
			if err != nil {
				return err
			}

			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Created admin %s\n", admin.Email)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Reset password for admin %s\n", admin.Email)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Admin email address, must use the admin domain")
	cmd.Flags().StringVar(&password, "password", "", "Admin password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
