package cmd

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"deepinfra-go/internal/fakeprovider"
	"deepinfra-go/internal/logger"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local stub of the DeepInfra API",
		Long: `Run a local stand-in for the DeepInfra API. It accepts only the
configured token and answers chat and transcription requests with
deterministic fake results.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Client.Token == "" {
				return errors.New("serve requires a token the stub will accept (set --token or DEEPINFRA_TOKEN)")
			}

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			l := logger.Get()
			srv, err := fakeprovider.New(fakeprovider.Options{
				Token:    a.cfg.Client.Token,
				Port:     a.cfg.Server.Port,
				Logger:   &l,
				Registry: registry,
			})
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.IntP("port", "p", 0, "listen port (default from config, 8080)")
	_ = a.v.BindPFlag("server.port", flags.Lookup("port"))
	return cmd
}
