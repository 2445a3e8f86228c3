package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/pipeline"
	"github.com/kozaktomas/face-attendance/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Attendance web server.

The server exposes the enrollment API, the attendance log and the live
annotated video feed. The camera is opened when the first client needs it
and closed again when the last one leaves.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to (overrides WEB_HOST)")
}

// resolveServeHostPort applies explicitly set flags on top of the configuration.
func resolveServeHostPort(cmd *cobra.Command, a *app) {
	if cmd.Flags().Changed("port") {
		a.cfg.Server.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		a.cfg.Server.Host = mustGetString(cmd, "host")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	resolveServeHostPort(cmd, a)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := a.openRegistry(ctx, true)
	if err != nil {
		return err
	}
	ledger, err := attendance.Open(a.cfg.Storage.AttendancePath)
	if err != nil {
		return fmt.Errorf("opening attendance log: %w", err)
	}
	slog.Info("attendance session started", "session", ledger.SessionID(), "path", ledger.Path())

	cam := a.openCamera()
	pipe := pipeline.New(cam, a.localizer, reg, ledger, pipeline.Options{
		Threshold:   a.cfg.Recognition.Threshold,
		JPEGQuality: a.cfg.Stream.JPEGQuality,
	})

	server := web.NewServer(a.cfg, web.Deps{
		Registry:   reg,
		Camera:     cam,
		Photos:     a.photos,
		Attendance: ledger,
		Streamer:   pipe,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	fmt.Printf("Starting Face Attendance on http://%s\n", server.Addr())
	fmt.Println("Press Ctrl+C to stop")
	notifySystemd(daemon.SdNotifyReady)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("starting server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	fmt.Println("\nShutting down...")
	notifySystemd(daemon.SdNotifyStopping)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("Error during shutdown: %v\n", err)
	}
	return <-errCh
}

// notifySystemd reports a state change when running as a systemd notify
// service; outside systemd it does nothing.
func notifySystemd(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		slog.Warn("systemd notify failed", "state", state, "error", err)
	}
}
