package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/registry"
)

var facesCmd = &cobra.Command{
	Use:   "faces",
	Short: "List and manage enrolled faces",
	Long:  `List enrolled identities. Use subcommands to enroll, rename, delete or import faces.`,
	RunE:  runFacesList,
}

var facesEnrollCmd = &cobra.Command{
	Use:   "enroll <name>",
	Short: "Enroll a face from one camera frame",
	Long: `Capture a single frame from the configured camera and enroll the first
face found in it under the given name. An existing enrollment with the
same name is replaced.

Example:
  face-attendance faces enroll "Jane Doe"`,
	Args: cobra.ExactArgs(1),
	RunE: runFacesEnroll,
}

var facesRenameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename an enrolled identity",
	Args:  cobra.ExactArgs(2),
	RunE:  runFacesRename,
}

var facesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete an enrolled identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runFacesDelete,
}

func init() {
	rootCmd.AddCommand(facesCmd)
	facesCmd.AddCommand(facesEnrollCmd, facesRenameCmd, facesDeleteCmd)

	facesCmd.Flags().Bool("json", false, "Output as JSON")
	facesDeleteCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
}

type faceListEntry struct {
	Name  string `json:"name"`
	Photo string `json:"photo,omitempty"`
}

func runFacesList(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	reg, err := a.openRegistry(cmd.Context(), false)
	if err != nil {
		return err
	}

	entries := make([]faceListEntry, 0, reg.Len())
	for _, name := range reg.List() {
		rec, _ := reg.Get(name)
		entries = append(entries, faceListEntry{Name: name, Photo: rec.PhotoRef})
	}

	if jsonOutput {
		return outputJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("No faces enrolled.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPHOTO")
	fmt.Fprintln(w, "----\t-----")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\n", e.Name, e.Photo)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d faces\n", len(entries))
	return nil
}

func runFacesEnroll(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	reg, err := a.openRegistry(ctx, true)
	if err != nil {
		return err
	}

	fmt.Println("Capturing frame...")
	frame, err := a.openCamera().Capture(ctx)
	if err != nil {
		return fmt.Errorf("capturing frame: %w", err)
	}

	if err := reg.Enroll(ctx, args[0], frame); err != nil {
		if errors.Is(err, registry.ErrNoFaceDetected) {
			return errors.New("no face detected, look at the camera and try again")
		}
		return fmt.Errorf("enrolling %s: %w", args[0], err)
	}

	fmt.Printf("Enrolled %s.\n", args[0])
	return nil
}

func runFacesRename(cmd *cobra.Command, args []string) error {
	return withRegistry(cmd.Context(), func(ctx context.Context, reg *registry.Registry) error {
		if err := reg.Rename(ctx, args[0], args[1]); err != nil {
			return fmt.Errorf("renaming %s: %w", args[0], err)
		}
		fmt.Printf("Renamed %s to %s.\n", args[0], args[1])
		return nil
	})
}

func runFacesDelete(cmd *cobra.Command, args []string) error {
	skipConfirm := mustGetBool(cmd, "yes")

	return withRegistry(cmd.Context(), func(ctx context.Context, reg *registry.Registry) error {
		if _, ok := reg.Get(args[0]); !ok {
			return fmt.Errorf("%s: %w", args[0], registry.ErrNotFound)
		}
		if !skipConfirm && !confirm(fmt.Sprintf("Delete %s?", args[0])) {
			fmt.Println("Cancelled.")
			return nil
		}
		if err := reg.Delete(ctx, args[0]); err != nil {
			return fmt.Errorf("deleting %s: %w", args[0], err)
		}
		fmt.Printf("Deleted %s.\n", args[0])
		return nil
	})
}

// withRegistry runs fn against a registry opened without the face detector.
func withRegistry(ctx context.Context, fn func(context.Context, *registry.Registry) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	reg, err := a.openRegistry(ctx, false)
	if err != nil {
		return err
	}
	return fn(ctx, reg)
}
