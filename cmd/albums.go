package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var albumsCmd = &cobra.Command{
	Use:   "albums",
	Short: "List Immich albums",
	RunE:  runAlbums,
}

func init() {
	rootCmd.AddCommand(albumsCmd)
}

func runAlbums(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	albums, err := a.client.Albums(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list albums: %w", err)
	}
	if len(albums) == 0 {
		fmt.Println("No albums found.")
		return nil
	}

	for _, album := range albums {
		fmt.Printf("  %-36s  %6d  %s\n", album.ID, album.AssetCount, album.AlbumName)
	}
	fmt.Printf("\n%d albums\n", len(albums))
	return nil
}
