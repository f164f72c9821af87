package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"studio/internal/gallery"
	"studio/internal/generation"
	"studio/internal/infra"
	"studio/internal/providers/caption"
	"studio/internal/providers/image"
	"studio/internal/storage"
)

type runFunc func(ctx context.Context, provider string, opts generation.Options, stdout io.Writer) error

func newCommand(run runFunc) *cobra.Command {
	var (
		opts     generation.Options
		provider string
	)
	cmd := &cobra.Command{
		Use:           "generate",
		Short:         "Generate one styled image and append it to the gallery",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), provider, opts, cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.Style, "style", "", "style folder under STYLES_DIR")
	flags.StringVar(&opts.Color, "color", "", "colour override for the hijab")
	flags.StringVar(&provider, "provider", "gemini", "image provider (gemini or qwen)")
	flags.BoolVar(&opts.Amazon, "amazon", false, "plain white product backdrop")
	flags.BoolVar(&opts.Caption, "caption", false, "write an Instagram caption for the result")
	flags.StringVar(&opts.Prompt, "prompt", "", "extra direction appended to the prompt")
	flags.StringArrayVar(&opts.StyleImages, "style-image", nil, "reference image in the style folder (repeatable, max 3)")
	_ = cmd.MarkFlagRequired("style")
	return cmd
}

// generate wires the runner from the environment and prints the new gallery
// record as the last stdout line.
func generate(ctx context.Context, provider string, opts generation.Options, stdout io.Writer) error {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	logger := infra.NewCLILogger(cfg.AppEnv)

	gen, err := image.New(provider, cfg, &logger)
	if err != nil {
		return err
	}
	styles, err := storage.NewFileStore(cfg.StylesDir)
	if err != nil {
		return err
	}
	output, err := storage.NewFileStore(cfg.OutputDir)
	if err != nil {
		return err
	}
	captions := caption.NewOpenAIWriter(caption.OpenAIOptions{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
		OnFallback: func(reason string, err error) {
			logger.Warn().Err(err).Str("reason", reason).Msg("caption fell back to template")
		},
	})

	runner := &generation.Runner{
		Styles:    styles,
		Output:    output,
		Gallery:   gallery.NewStore(cfg.GalleryPath, output).WithLogger(&logger),
		Generator: gen,
		Captions:  captions,
		Logger:    &logger,
	}
	img, err := runner.Run(ctx, opts)
	if err != nil {
		return err
	}
	logger.Info().Int64("image_id", img.ID).Str("filename", img.Filename).Msg("gallery record created")
	return json.NewEncoder(stdout).Encode(img)
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand(generate).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
