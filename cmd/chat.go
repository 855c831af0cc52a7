package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"deepinfra-go/pkg/client"
	"deepinfra-go/pkg/types"
)

type chatOptions struct {
	model       string
	system      string
	temperature float64
	maxTokens   int
	interactive bool
}

func newChatCmd(a *app) *cobra.Command {
	var opts chatOptions

	cmd := &cobra.Command{
		Use:   "chat [prompt...]",
		Short: "Send a chat completion, or start an interactive session with -i",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.resolveChatOptions(cmd, &opts)
			return a.runChat(cmd.Context(), args, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.model, "model", "m", "", "model id (default "+types.DefaultChatModel+")")
	flags.StringVarP(&opts.system, "system", "s", "", "system message for the conversation")
	flags.Float64VarP(&opts.temperature, "temperature", "t", types.DefaultTemperature, "sampling temperature (0-2)")
	flags.IntVar(&opts.maxTokens, "max-tokens", 0, "maximum tokens to generate (0 means provider default)")
	flags.BoolVarP(&opts.interactive, "interactive", "i", false, "start an interactive chat session")
	return cmd
}

// resolveChatOptions fills options the user did not pass from the config file.
func (a *app) resolveChatOptions(cmd *cobra.Command, opts *chatOptions) {
	flags := cmd.Flags()
	if !flags.Changed("model") {
		opts.model = a.cfg.Chat.Model
	}
	if !flags.Changed("system") {
		opts.system = a.cfg.Chat.System
	}
	if !flags.Changed("temperature") && a.cfg.Chat.Temperature != nil {
		opts.temperature = *a.cfg.Chat.Temperature
	}
	if !flags.Changed("max-tokens") && a.cfg.Chat.MaxTokens != nil {
		opts.maxTokens = *a.cfg.Chat.MaxTokens
	}
}

func (a *app) runChat(ctx context.Context, args []string, opts chatOptions) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" && !opts.interactive {
		return errors.New("chat requires a prompt argument or --interactive")
	}

	c, err := a.newClient()
	if err != nil {
		return err
	}

	if opts.interactive {
		return a.chatSession(ctx, c, opts)
	}

	history := baseHistory(opts)
	msg, err := complete(ctx, c, append(history, types.UserMessage(prompt)), opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, msg.TextContent())
	return nil
}

// chatSession runs a REPL, keeping the conversation between turns.
func (a *app) chatSession(ctx context.Context, c *client.Client, opts chatOptions) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	history := baseHistory(opts)
	fmt.Fprintln(a.out, "Starting chat session (type /exit to quit, /reset to clear history)")
	fmt.Fprintln(a.out, "----------------------------------------")

	for {
		input, err := line.Prompt("You: ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read prompt: %w", err)
		}

		input = strings.TrimSpace(input)
		switch input {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			history = baseHistory(opts)
			fmt.Fprintln(a.out, "History cleared.")
			continue
		}
		line.AppendHistory(input)

		turn := append(history, types.UserMessage(input))
		reply, err := complete(ctx, c, turn, opts)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(a.errOut, "Error: %v\n", err)
			continue
		}

		fmt.Fprintf(a.out, "\nAssistant: %s\n\n", reply.TextContent())
		history = append(turn, reply)
	}
}

func baseHistory(opts chatOptions) []types.Message {
	if strings.TrimSpace(opts.system) == "" {
		return nil
	}
	return []types.Message{types.SystemMessage(opts.system)}
}

func complete(ctx context.Context, c *client.Client, history []types.Message, opts chatOptions) (types.Message, error) {
	builder := types.NewChatCompletionRequestBuilder().
		Messages(history...).
		Temperature(opts.temperature)
	if opts.model != "" {
		builder.Model(opts.model)
	}
	if opts.maxTokens > 0 {
		builder.MaxTokens(opts.maxTokens)
	}

	req, err := builder.Build()
	if err != nil {
		return types.Message{}, err
	}

	resp, err := c.ChatCompletion(ctx, req)
	if err != nil {
		return types.Message{}, err
	}

	msg, ok := resp.FirstMessage()
	if !ok {
		return types.Message{}, errors.New("provider returned no choices")
	}
	return msg, nil
}
