package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jamo/immich-gps/internal/immich"
	"github.com/jamo/immich-gps/internal/models"
	"github.com/jamo/immich-gps/internal/photos"
	"github.com/jamo/immich-gps/internal/transfer"
	"github.com/spf13/cobra"
)

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Copy GPS coordinates from one photo onto others",
	Long: `Interactive session to copy the GPS position of a photo and paste it onto
photos of the loaded period that have none. Every paste asks for
confirmation and is recorded in the action log.

Commands:
  copy             toggle copy mode
  paste            toggle paste mode (needs a copied coordinate)
  select <id|#>    act on a photo according to the current mode
  suggest <id|#>   show the GPS photo closest in time
  list [filter]    list photos (all, gps, no-gps) with their numbers
  state            show the mode and the copied coordinate
  syscopy          put the copied coordinate on the system clipboard
  reset            leave copy or paste mode
  clear            forget the copied coordinate
  quit             leave the session`,
	RunE: runTransfer,
}

func init() {
	rootCmd.AddCommand(transferCmd)
}

func runTransfer(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.restore(); err != nil {
		return err
	}

	machine := transfer.NewMachine(transfer.Deps{
		Photos:    a.manager,
		Lookup:    a.engine,
		Confirmer: a.console,
		Notifier:  a.console,
		Maps:      a.console,
		Logger:    logger,
		Metrics:   a.metrics,
	})

	ctx := cmd.Context()
	listed := a.manager.Photos()
	fmt.Printf("Period %s: %d photos. Type 'help' for commands.\n", a.manager.Period(), len(listed))

	for {
		line, err := a.console.readLine(fmt.Sprintf("[%s]> ", machine.Mode()))
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		arg := ""
		if len(fields) > 1 {
			arg = fields[1]
		}

		switch strings.ToLower(fields[0]) {
		case "copy":
			machine.ToggleCopy()
		case "paste":
			machine.TogglePaste()
		case "select", "s":
			photo := pickPhoto(a.manager, listed, arg)
			if _, err := machine.Select(ctx, photo); immich.IsAuthError(err) {
				fmt.Println("  The API key was rejected, enter a new one on the next request.")
			}
		case "suggest":
			photo := pickPhoto(a.manager, listed, arg)
			if photo == nil {
				fmt.Println("❌ Photo not found")
				continue
			}
			s, err := a.manager.SuggestSource(photo.ID)
			if err != nil {
				fmt.Printf("⚠️  %v\n", err)
				continue
			}
			fmt.Printf("  Closest GPS photo: %s (%s), %s apart, confidence %.2f\n",
				s.Source.Filename, s.Source.ID, s.Gap.Round(time.Second), s.Confidence)
		case "list", "ls":
			filter, err := photos.ParseFilter(arg)
			if err != nil {
				fmt.Printf("❌ %v\n", err)
				continue
			}
			listed = a.manager.Filtered(filter)
			for i, p := range listed {
				fmt.Printf("%4d ", i+1)
				printPhoto(p)
			}
		case "state":
			s := machine.State()
			fmt.Printf("  Mode: %s\n", s.Mode)
			if s.HasClipboard {
				fmt.Printf("  Clipboard: %s from %s (copied %s)\n", s.Coordinates, s.SourcePhoto, s.CapturedAt.Format("15:04:05"))
			} else {
				fmt.Println("  Clipboard: empty")
			}
		case "syscopy":
			entry, ok := machine.Clipboard()
			if !ok {
				fmt.Println("⚠️  No GPS coordinate copied yet")
				continue
			}
			text := transfer.FormatCoordinates(entry.Coordinate.Latitude, entry.Coordinate.Longitude)
			if err := copyText(text); err != nil {
				fmt.Printf("❌ Failed to copy to the clipboard: %v\n", err)
				continue
			}
			fmt.Printf("✓ Copied %q to the clipboard\n", text)
		case "reset":
			machine.ResetModes()
		case "clear":
			machine.ClearClipboard()
		case "help", "?":
			fmt.Println(cmd.Long)
		case "quit", "exit", "q":
			return nil
		default:
			fmt.Printf("Unknown command %q, type 'help'\n", fields[0])
		}
	}
}

// pickPhoto resolves a list number from the last listing or a photo id
func pickPhoto(m *photos.Manager, listed []models.Photo, arg string) *models.Photo {
	if arg == "" {
		return nil
	}
	id := arg
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(listed) {
		id = listed[n-1].ID
	}
	photo, err := m.Find(id)
	if err != nil {
		return nil
	}
	return photo
}
