package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Show or reset the attendance log",
	Long: `Print every row of the attendance log. Sessions only exist while the
server runs, so this always shows the full history.`,
	RunE: runAttendanceShow,
}

var attendanceResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Truncate the attendance log to its header",
	Args:  cobra.NoArgs,
	RunE:  runAttendanceReset,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceResetCmd)

	attendanceCmd.Flags().Bool("json", false, "Output as JSON")
	attendanceResetCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
}

type attendanceRow struct {
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
}

func runAttendanceShow(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	log, err := attendance.Open(config.Load().Storage.AttendancePath)
	if err != nil {
		return fmt.Errorf("opening attendance log: %w", err)
	}
	events, err := log.ReadAll()
	if err != nil {
		return err
	}

	rows := make([]attendanceRow, 0, len(events))
	for _, r := range attendance.Rows(events) {
		rows = append(rows, attendanceRow{Name: r[0], Timestamp: r[1]})
	}

	if jsonOutput {
		return outputJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Println("No attendance recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTIMESTAMP")
	fmt.Fprintln(w, "----\t---------")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\n", r.Name, r.Timestamp)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d entries\n", len(rows))
	return nil
}

func runAttendanceReset(cmd *cobra.Command, args []string) error {
	skipConfirm := mustGetBool(cmd, "yes")
	path := config.Load().Storage.AttendancePath

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, attendance.ErrNoLogToReset)
	}
	if !skipConfirm && !confirm(fmt.Sprintf("Clear every entry in %s?", path)) {
		fmt.Println("Cancelled.")
		return nil
	}

	log, err := attendance.Open(path)
	if err != nil {
		return fmt.Errorf("opening attendance log: %w", err)
	}
	if err := log.Reset(); err != nil {
		return err
	}
	fmt.Println("Attendance log cleared.")
	return nil
}
