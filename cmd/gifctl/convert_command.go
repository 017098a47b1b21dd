package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"gifpipe/internal/media"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var (
		output  string
		preview bool
		opts    map[string]string
	)

	cmd := &cobra.Command{
		Use:   "convert <video>",
		Short: "Convert a local video to a GIF without the queue",
		Long: `Convert runs the transform engine on a local file.

Options use the same names as the form fields of POST /convert, for example:
  gifctl convert clip.mp4 --opt start_time=2 --opt end_time=5 --opt fps=8 --opt resize=320
  gifctl convert clip.mp4 --opt text_overlay="hello" --opt text_position=bottom`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			input := args[0]
			if _, err := os.Stat(input); err != nil {
				return err
			}
			if output == "" {
				output = strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + ".gif"
			}

			workDir, err := os.MkdirTemp("", "gifctl-*")
			if err != nil {
				return err
			}
			defer os.RemoveAll(workDir)

			engine := media.NewEngine(media.Config{
				FFmpegBin:      cfg.Media.FFmpegBin,
				FFprobeBin:     cfg.Media.FFprobeBin,
				FontDirs:       cfg.Media.FontDirs,
				FontCandidates: cfg.Media.FontCandidates,
				ScratchDir:     workDir,
			}, ctx.logger())

			res, err := engine.Transform(cmd.Context(), input, optionsFromFlags(opts), workDir)
			if err != nil {
				return err
			}
			if err := moveFile(res.Path, output); err != nil {
				return err
			}

			pairs := [][2]string{
				{"Output", output},
				{"Size", strconv.Itoa(res.Width) + "x" + strconv.Itoa(res.Height)},
				{"Source duration", strconv.FormatFloat(res.Duration, 'f', 2, 64) + "s"},
				{"Overlay", strconv.FormatBool(res.OverlayApplied)},
			}
			if preview && res.PreviewPath != "" {
				target := strings.TrimSuffix(output, filepath.Ext(output)) + ".preview.png"
				if err := moveFile(res.PreviewPath, target); err != nil {
					return err
				}
				pairs = append(pairs, [2]string{"Preview", target})
			}
			fmt.Fprintln(cmd.OutOrStdout(), keyValueTable(pairs))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output GIF path (default <video stem>.gif)")
	cmd.Flags().BoolVar(&preview, "preview", false, "Also write the PNG preview next to the GIF")
	cmd.Flags().StringToStringVar(&opts, "opt", nil, "Conversion option as name=value (repeatable)")
	return cmd
}

// optionsFromFlags parses --opt pairs exactly like the HTTP form fields.
func optionsFromFlags(opts map[string]string) media.Options {
	return media.ParseForm(func(name string) string { return opts[name] })
}

// moveFile renames src to dst, copying when they are on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
