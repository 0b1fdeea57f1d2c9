package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/jamo/immich-gps/internal/models"
	"github.com/jamo/immich-gps/internal/transfer"
	"github.com/skratchdot/open-golang/open"
	"golang.org/x/term"
)

// console is the terminal side of prompts, confirmations and notifications
type console struct {
	raw    io.Reader
	reader *bufio.Reader
	out    io.Writer
}

func newConsole(in io.Reader, out io.Writer) *console {
	return &console{raw: in, reader: bufio.NewReader(in), out: out}
}

func (c *console) readLine(prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)
	line, err := c.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// PromptCredential asks for an API key, hiding the input on a terminal
func (c *console) PromptCredential(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f, ok := c.raw.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(c.out, "Immich API key: ")
		key, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(key)), nil
	}
	return c.readLine("Immich API key: ")
}

func (c *console) ConfirmPaste(ctx context.Context, target *models.Photo, entry models.ClipboardEntry) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	g := entry.Coordinate
	fmt.Fprintf(c.out, "\nPaste GPS onto %q?\n", target.Filename)
	fmt.Fprintf(c.out, "  From:        %s\n", entry.SourceFilename)
	fmt.Fprintf(c.out, "  Coordinates: %s\n", transfer.FormatCoordinates(g.Latitude, g.Longitude))
	fmt.Fprintf(c.out, "  Place:       %s - %s\n", g.Country, g.City)

	answer, err := c.readLine("Apply? [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (c *console) Notify(level transfer.Level, message string) {
	marker := "  "
	switch level {
	case transfer.LevelSuccess:
		marker = "✓ "
	case transfer.LevelWarning:
		marker = "⚠️  "
	case transfer.LevelError:
		marker = "❌ "
	}
	fmt.Fprintln(c.out, marker+message)
}

func (c *console) OpenMap(url string) error {
	return open.Run(url)
}

// copyText puts text on the system clipboard
func copyText(text string) error {
	return clipboard.WriteAll(text)
}
