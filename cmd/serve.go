package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jamo/immich-gps/internal/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	port int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local JSON API",
	Long: `Starts a local web server exposing the loaded photos, loading and
analysis, exports, the action log, an authenticated Immich proxy for
thumbnails, and Prometheus metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&port, "port", 8080, "Port to run web server on")
	addResolverFlags(serveCmd)
	addEngineFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.manager.Restore(); err != nil {
		return err
	}

	server := web.NewServer(a.manager, a.client, a.db, a.metrics, logger)
	addr := fmt.Sprintf(":%d", port)
	httpServer := &http.Server{Addr: addr, Handler: server}

	fmt.Printf("Starting web server on http://localhost%s\n", addr)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /api/periods            - Years and months with photo counts")
	fmt.Println("  POST /api/load               - Load a period {\"year\":\"2021\",\"month\":\"05\"}")
	fmt.Println("  POST /api/analyze            - Analyze GPS of the loaded photos")
	fmt.Println("  GET  /api/photos             - Photos (?filter=all|gps|no-gps&page=N or ?q=text)")
	fmt.Println("  GET  /api/stats              - Statistics")
	fmt.Println("  GET  /api/suggest?id=ID      - Closest GPS photo in time")
	fmt.Println("  GET  /api/export/{csv,json,kml}")
	fmt.Println("  GET  /api/actions            - GPS action log (?format=csv)")
	fmt.Println("  GET  /api/immich-proxy/...   - Authenticated Immich proxy")
	fmt.Println("  GET  /metrics                - Prometheus metrics")
	fmt.Println("\nPress Ctrl+C to stop")

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-cmd.Context().Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("server shutdown failed", zap.Error(err))
	}
	return nil
}
