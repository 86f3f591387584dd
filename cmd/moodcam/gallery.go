package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/okian/moodcam/internal/adapters/galleryfs"
	app "github.com/okian/moodcam/internal/app"
	"github.com/okian/moodcam/internal/domain/gallery"
)

const galleryPingTimeout = 5 * time.Second

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Scan and embed the known-people folder and list the result",
	Long: `Scan the gallery folder (gallery_dir), embed each image through the
configured inference backend and list the identities that would be loaded.
Images that cannot be decoded or embedded are reported.`,
	RunE: runGallery,
}

func init() {
	galleryCmd.Flags().String("dir", "", "Gallery folder (overrides gallery_dir)")
	galleryCmd.Flags().Bool("simulate", false, "Use the simulated inference backend")
	galleryCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(galleryCmd)
}

type galleryReport struct {
	Identities []*gallery.Identity `json:"identities"`
	Skipped    []string            `json:"skipped"`
}

func runGallery(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := setup(ctx)
	if err != nil {
		return err
	}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.GalleryDir = dir
	}
	if sim, _ := cmd.Flags().GetBool("simulate"); sim {
		cfg.InferenceBackend = "simulated"
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")

	backend := app.NewBackend(cfg)
	pingCtx, cancel := context.WithTimeout(ctx, galleryPingTimeout)
	err = backend.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %w", app.ErrBackendUnhealthy, err)
	}

	created, err := galleryfs.EnsureDir(cfg.GalleryDir)
	if err != nil {
		return err
	}
	if created && !jsonOutput {
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s; add face photos there (see %s)\n", cfg.GalleryDir, galleryfs.InstructionsFile)
	}

	report := galleryReport{Identities: []*gallery.Identity{}, Skipped: []string{}}
	images, scanErr := galleryfs.Scan(cfg.GalleryDir)
	if scanErr != nil && images == nil {
		return scanErr
	}
	for _, e := range unwrapAll(scanErr) {
		report.Skipped = append(report.Skipped, e.Error())
	}

	g, err := app.NewGallery(cfg, backend)
	if err != nil {
		return err
	}
	bar := newEmbedProgressBar(len(images), jsonOutput, cmd.ErrOrStderr())
	for _, img := range images {
		if _, err := g.Enroll(ctx, img); err != nil {
			report.Skipped = append(report.Skipped, err.Error())
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	report.Identities = g.Identities()

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printGalleryReport(cmd.OutOrStdout(), &report)
	return nil
}

// newEmbedProgressBar creates a progress bar for embedding, or nil if JSON output.
func newEmbedProgressBar(count int, jsonOutput bool, w io.Writer) *progressbar.ProgressBar {
	if jsonOutput || count == 0 {
		return nil
	}
	return progressbar.NewOptions(count,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Embedding faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("faces"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

func printGalleryReport(w io.Writer, r *galleryReport) {
	fmt.Fprintf(w, "\n%d identities\n", len(r.Identities))
	if len(r.Identities) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tNAME\tDIM\tFILE")
		for _, id := range r.Identities {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", id.Key, id.Name, len(id.Embedding), id.Source)
		}
		_ = tw.Flush()
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(w, "\nSkipped: %d\n", len(r.Skipped))
		for _, s := range r.Skipped {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
}

func unwrapAll(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
