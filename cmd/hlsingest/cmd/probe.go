package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vodlive/hlsingest/internal/hls/playlist"
)

var probeCmd = &cobra.Command{
	Use:   "probe [manifest-url]",
	Short: "Resolve a manifest and report what was selected",
	Long: `Resolve an HLS manifest, select a variant per hls.quality_selection,
and print the resolved stream's variants, selected variant, live status,
and timing as JSON.

Besides the playlists, this downloads the init segment while building the
segment source; it attaches no demuxer.

Examples:
  hlsingest probe https://example.com/master.m3u8
  hlsingest probe --pretty https://example.com/media.m3u8`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().Bool("pretty", false, "pretty-print JSON output")
	probeCmd.Flags().Duration("timeout", 30*time.Second, "overall probe timeout")
}

// probeResult is the probe command's JSON output shape.
type probeResult struct {
	ManifestURL     string         `json:"manifest_url"`
	Live            bool           `json:"live"`
	TargetDuration  int            `json:"target_duration_seconds"`
	DurationSecs    float64        `json:"duration_seconds"`
	SelectedVariant *probeVariant  `json:"selected_variant,omitempty"`
	Variants        []probeVariant `json:"variants,omitempty"`
}

type probeVariant struct {
	Bandwidth  int    `json:"bandwidth"`
	Resolution string `json:"resolution,omitempty"`
	Codecs     string `json:"codecs,omitempty"`
	URI        string `json:"uri"`
}

func toProbeVariant(v playlist.Variant) probeVariant {
	pv := probeVariant{Bandwidth: v.Bandwidth, Codecs: v.Codecs, URI: v.URI}
	if v.Resolution != nil {
		pv.Resolution = fmt.Sprintf("%dx%d", v.Resolution.Width, v.Resolution.Height)
	}
	return pv
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	initLogger(cfg)
	logger := slog.Default()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	pretty, _ := cmd.Flags().GetBool("pretty")
	manifestURL := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	in, err := buildInput(manifestURL, &cfg.HLS, logger)
	if err != nil {
		return err
	}
	defer in.Dispose()

	variants, err := in.ListVariants(ctx)
	if err != nil {
		return fmt.Errorf("probing manifest: %w", err)
	}

	result := probeResult{
		ManifestURL:    manifestURL,
		Live:           in.IsLive(),
		TargetDuration: in.TargetDuration(),
		DurationSecs:   in.ComputeDuration(),
	}
	if current := in.CurrentVariant(); current != nil {
		pv := toProbeVariant(*current)
		result.SelectedVariant = &pv
	}
	for _, v := range variants {
		result.Variants = append(result.Variants, toProbeVariant(v))
	}

	var output []byte
	if pretty {
		output, err = json.MarshalIndent(result, "", "  ")
	} else {
		output, err = json.Marshal(result)
	}
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	fmt.Fprintln(os.Stdout, string(output))
	return nil
}
