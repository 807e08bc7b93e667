package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"gatehouse/internal/auth"
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an administrator whose email is already verified",
	Long: `Create an administrator account. The password must satisfy the same
policy as signup.

Examples:
  gatehousectl create-admin --username root --email ops@example.com --password 'S3cure-Passphrase!'
  GATEHOUSE_ADMIN_PASSWORD='S3cure-Passphrase!' gatehousectl create-admin -u root -e ops@example.com`,
	RunE: runCreateAdmin,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete records older than the configured retention",
	RunE:  runCleanup,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print dashboard counters and the 7-day login histogram as JSON",
	RunE:  runStats,
}

func init() {
	createAdminCmd.Flags().StringP("username", "u", "", "admin username")
	createAdminCmd.Flags().StringP("email", "e", "", "admin email address")
	createAdminCmd.Flags().StringP("password", "p", "", "admin password (or GATEHOUSE_ADMIN_PASSWORD)")
	_ = createAdminCmd.MarkFlagRequired("username")
	_ = createAdminCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(createAdminCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(statsCmd)
}

func runCreateAdmin(cmd *cobra.Command, args []string) error {
	username, _ := cmd.Flags().GetString("username")
	address, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		password = os.Getenv("GATEHOUSE_ADMIN_PASSWORD")
	}
	if password == "" {
		return errors.New("a password is required (--password or GATEHOUSE_ADMIN_PASSWORD)")
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.Services.Accounts.CreateVerifiedUser(cmd.Context(), auth.SignupRequest{
		Username:        username,
		Email:           address,
		Password:        password,
		ConfirmPassword: password,
	}, true)
	if err != nil {
		return fmt.Errorf("creating admin: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created admin %s (%s)\n", user.Username, user.ID)
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Cleanup.Run(cmd.Context(), time.Now())
	if err != nil {
		return fmt.Errorf("running cleanup: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "login attempts:       %d\n", report.LoginAttempts)
	fmt.Fprintf(out, "verifications:        %d\n", report.Verifications)
	fmt.Fprintf(out, "reset tokens:         %d\n", report.ResetTokens)
	fmt.Fprintf(out, "contact submissions:  %d\n", report.ContactEntries)
	fmt.Fprintf(out, "total removed:        %d\n", report.Total())
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.Services.Admin.Stats(cmd.Context())
	if err != nil {
		return err
	}
	days, err := a.Services.Admin.AttemptHistogram(cmd.Context())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"stats": stats, "histogram": days})
}
