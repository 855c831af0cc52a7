package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"deepinfra-go/internal/config"
	"deepinfra-go/internal/logger"
	"deepinfra-go/pkg/client"
)

const envPrefix = "DEEPINFRA"

// app carries state shared by all subcommands of one invocation.
type app struct {
	v         *viper.Viper
	cfg       config.Config
	out       io.Writer
	errOut    io.Writer
	logCloser io.Closer
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		v:      viper.New(),
		cfg:    config.Default(),
		out:    out,
		errOut: errOut,
	}
}

// Execute runs the CLI with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	a := newApp(os.Stdout, os.Stderr)
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "deepinfra",
		Short: "DeepInfra chat and transcription client",
		Long: `deepinfra calls the DeepInfra inference API for chat completions and
audio transcription, and can run a local stub of the API for testing.

The API token is read from --token, DEEPINFRA_TOKEN (a .env file in the
working directory is honoured) or the client.token config key.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.initConfig,
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "path to YAML configuration file")
	flags.String("token", "", "API token (recommend using env: DEEPINFRA_TOKEN)")
	flags.String("base-url", "", "override the API base URL, e.g. a local stub")
	flags.Duration("timeout", 0, "per-request timeout (0 means no client-side limit)")
	flags.String("log-level", "info", "log level (trace/debug/info/warn/error)")
	flags.String("log-format", "console", "log format (json/console)")

	_ = a.v.BindPFlag("config", flags.Lookup("config"))
	_ = a.v.BindPFlag("client.token", flags.Lookup("token"))
	_ = a.v.BindPFlag("client.base_url", flags.Lookup("base-url"))
	_ = a.v.BindPFlag("client.timeout", flags.Lookup("timeout"))
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", flags.Lookup("log-format"))

	root.AddCommand(newChatCmd(a), newTranscribeCmd(a), newServeCmd(a))
	return root
}

// initConfig layers defaults, the YAML file, .env, environment variables
// and flags, in increasing precedence.
func (a *app) initConfig(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env file: %w", err)
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()
	_ = a.v.BindEnv("client.token", envPrefix+"_TOKEN", envPrefix+"_API_KEY")
	_ = a.v.BindEnv("client.base_url", envPrefix+"_BASE_URL")

	cfg := config.Default()
	if path := a.v.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	a.applyOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	closer, err := logger.Init(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	a.logCloser = closer
	a.cfg = cfg

	log.Debug().
		Str("command", cmd.Name()).
		Str("config_file", a.v.GetString("config")).
		Str("base_url", cfg.Client.BaseURL).
		Msg("configuration loaded")
	return nil
}

func (a *app) applyOverrides(cfg *config.Config) {
	if a.v.IsSet("client.token") {
		cfg.Client.Token = a.v.GetString("client.token")
	}
	if a.v.IsSet("client.base_url") {
		cfg.Client.BaseURL = a.v.GetString("client.base_url")
	}
	if a.v.IsSet("client.timeout") {
		cfg.Client.Timeout = a.v.GetDuration("client.timeout")
	}
	if a.v.IsSet("client.user_agent") {
		cfg.Client.UserAgent = a.v.GetString("client.user_agent")
	}
	if a.v.IsSet("log.level") {
		cfg.Log.Level = a.v.GetString("log.level")
	}
	if a.v.IsSet("log.format") {
		cfg.Log.Format = a.v.GetString("log.format")
	}
	if a.v.IsSet("server.port") {
		cfg.Server.Port = a.v.GetInt("server.port")
	}
	if a.v.IsSet("transcription.concurrency") {
		cfg.Transcription.Concurrency = a.v.GetInt("transcription.concurrency")
	}
}

func (a *app) newClient() (*client.Client, error) {
	opts := []client.Option{
		client.WithLogger(logger.Get()),
		client.WithTimeout(a.cfg.Client.Timeout),
	}
	if a.cfg.Client.BaseURL != "" {
		opts = append(opts, client.WithBaseURL(a.cfg.Client.BaseURL))
	}
	if a.cfg.Client.UserAgent != "" {
		opts = append(opts, client.WithUserAgent(a.cfg.Client.UserAgent))
	}

	c, err := client.New(a.cfg.Client.Token, opts...)
	if err != nil {
		var cfgErr *client.ConfigurationError
		if errors.As(err, &cfgErr) && cfgErr.Field == "token" {
			return nil, fmt.Errorf("%w (set --token or %s_TOKEN)", err, envPrefix)
		}
		return nil, err
	}
	return c, nil
}

func (a *app) close() {
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}
