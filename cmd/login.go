package cmd

import (
	"fmt"

	"github.com/jamo/immich-gps/internal/database"
	"github.com/jamo/immich-gps/internal/immich"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an Immich API key",
	Long: `Asks for an API key (or takes --api-key), checks it against the Immich
instance and stores it in the local database for later commands.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:         "logout",
	Short:       "Forget the stored Immich API key",
	Annotations: offline,
	RunE:        runLogout,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	key := immichAPIKey
	if key == "" {
		if key, err = a.console.PromptCredential(cmd.Context()); err != nil {
			return err
		}
	}
	if key == "" {
		return fmt.Errorf("no API key entered")
	}
	if err := a.client.SetCredential(key); err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}

	buckets, err := a.client.RefreshTimeBuckets(cmd.Context())
	if err != nil {
		if immich.IsAuthError(err) {
			return fmt.Errorf("the API key was rejected by %s", immichURL)
		}
		return fmt.Errorf("failed to reach %s: %w", immichURL, err)
	}

	fmt.Printf("✓ Logged in to %s (%d time buckets)\n", immichURL, len(buckets))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	db, err := database.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.ClearCredential(); err != nil {
		return fmt.Errorf("failed to clear API key: %w", err)
	}
	fmt.Println("✓ Stored API key removed")
	return nil
}
