package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"deepinfra-go/pkg/types"
)

type transcribeOptions struct {
	model       string
	language    string
	format      string
	prompt      string
	concurrency int
}

func newTranscribeCmd(a *app) *cobra.Command {
	var opts transcribeOptions

	cmd := &cobra.Command{
		Use:   "transcribe <file|url>...",
		Short: "Transcribe local audio files or remote audio URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.resolveTranscribeOptions(cmd, &opts)
			return a.runTranscribe(cmd.Context(), args, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.model, "model", "m", "", "model id (default "+types.DefaultTranscriptionModel+")")
	flags.StringVarP(&opts.language, "language", "l", "", "ISO-639-1 language of the audio")
	flags.StringVarP(&opts.format, "format", "f", "", "response format (json/verbose_json/text/srt/vtt)")
	flags.StringVar(&opts.prompt, "prompt", "", "text to guide the transcription style")
	flags.IntVar(&opts.concurrency, "concurrency", 0, "number of inputs transcribed in parallel")

	_ = a.v.BindPFlag("transcription.concurrency", flags.Lookup("concurrency"))
	return cmd
}

func (a *app) resolveTranscribeOptions(cmd *cobra.Command, opts *transcribeOptions) {
	flags := cmd.Flags()
	if !flags.Changed("model") {
		opts.model = a.cfg.Transcription.Model
	}
	if !flags.Changed("language") {
		opts.language = a.cfg.Transcription.Language
	}
	if !flags.Changed("format") {
		opts.format = a.cfg.Transcription.ResponseFormat
	}
	opts.concurrency = a.cfg.Transcription.Concurrency
}

// runTranscribe validates every input up front, transcribes them
// concurrently and prints results in input order.
func (a *app) runTranscribe(ctx context.Context, inputs []string, opts transcribeOptions) error {
	requests := make([]types.TranscriptionRequest, 0, len(inputs))
	for _, input := range inputs {
		req, err := buildTranscription(input, opts)
		if err != nil {
			return fmt.Errorf("%s: %w", input, err)
		}
		requests = append(requests, req)
	}

	c, err := a.newClient()
	if err != nil {
		return err
	}

	results := make([]string, len(requests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.concurrency, 1))
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			resp, err := c.AudioTranscription(gctx, req)
			if err != nil {
				return fmt.Errorf("%s: %w", inputs[i], err)
			}
			results[i] = resp.Text()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, text := range results {
		if len(inputs) == 1 {
			fmt.Fprintln(a.out, text)
			continue
		}
		fmt.Fprintf(a.out, "%s: %s\n", inputs[i], text)
	}
	return nil
}

func buildTranscription(input string, opts transcribeOptions) (types.TranscriptionRequest, error) {
	builder := types.NewTranscriptionRequestBuilder().Source(sourceFor(input))
	if opts.model != "" {
		builder.Model(opts.model)
	}
	if opts.language != "" {
		builder.Language(opts.language)
	}
	if opts.format != "" {
		builder.ResponseFormat(types.TranscriptFormat(opts.format))
	}
	if opts.prompt != "" {
		builder.Prompt(opts.prompt)
	}
	return builder.Build()
}

func sourceFor(input string) types.AudioSource {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return types.FromURL(input)
	}
	return types.FromFile(input)
}
