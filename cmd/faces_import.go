package cmd

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/face-attendance/internal/registry"
)

var facesImportCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Enroll every photo in a directory",
	Long: `Enroll one identity per image file in a directory. The file name without
its extension becomes the identity, so "Jane Doe.jpg" enrolls "Jane Doe".
Existing enrollments with the same name are replaced.

Supported formats: .jpg, .jpeg, .png, .gif, .bmp, .webp

Examples:
  face-attendance faces import ./staff-photos
  face-attendance faces import ./staff-photos --concurrency 2 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runFacesImport,
}

func init() {
	facesCmd.AddCommand(facesImportCmd)

	facesImportCmd.Flags().Int("concurrency", 4, "Number of parallel workers")
	facesImportCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
}

var importExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"}

// ImportResult summarizes a directory import.
type ImportResult struct {
	Success       bool              `json:"success"`
	FilesScanned  int               `json:"files_scanned"`
	Enrolled      int               `json:"enrolled"`
	Failed        map[string]string `json:"failed,omitempty"`
	DurationMs    int64             `json:"duration_ms"`
	DurationHuman string            `json:"duration_human,omitempty"`
}

// importCandidates returns the paths of the image files directly inside dir,
// in file name order. Each base name without its extension is the identity the
// file enrolls.
func importCandidates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(importExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

func identityFromFile(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func enrollFile(ctx context.Context, reg *registry.Registry, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decoding image: %w", err)
	}
	return reg.Enroll(ctx, identityFromFile(path), img)
}

func runFacesImport(cmd *cobra.Command, args []string) error {
	concurrency := max(mustGetInt(cmd, "concurrency"), 1)
	jsonOutput := mustGetBool(cmd, "json")
	startTime := time.Now()

	files, err := importCandidates(args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		if jsonOutput {
			return outputJSON(ImportResult{Success: true})
		}
		fmt.Println("No images found.")
		return nil
	}

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

	if !jsonOutput {
		fmt.Printf("Found %d images to import\n\n", len(files))
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("Enrolling"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("faces"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	var enrolled int64
	var mu sync.Mutex
	failed := make(map[string]string)
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, path := range files {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if err := enrollFile(ctx, reg, path); err != nil {
				mu.Lock()
				failed[filepath.Base(path)] = err.Error()
				mu.Unlock()
			} else {
				atomic.AddInt64(&enrolled, 1)
			}

			if bar != nil {
				bar.Add(1)
			}
		}(path)
	}

	wg.Wait()

	if bar != nil {
		fmt.Println()
	}

	duration := time.Since(startTime)
	result := ImportResult{
		Success:       len(failed) == 0,
		FilesScanned:  len(files),
		Enrolled:      int(enrolled),
		Failed:        failed,
		DurationMs:    duration.Milliseconds(),
		DurationHuman: formatDuration(duration),
	}

	if jsonOutput {
		result.DurationHuman = ""
		return outputJSON(result)
	}

	fmt.Println("\nImport complete!")
	fmt.Printf("  Files scanned: %d\n", result.FilesScanned)
	fmt.Printf("  Enrolled:      %d\n", result.Enrolled)
	if len(failed) > 0 {
		fmt.Printf("  Failed:        %d\n", len(failed))
		names := make([]string, 0, len(failed))
		for name := range failed {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Printf("    %s: %s\n", name, failed[name])
		}
	}
	fmt.Printf("  Duration:      %s\n", result.DurationHuman)
	return nil
}
