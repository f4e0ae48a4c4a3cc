package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tinyrsa/config"
	"tinyrsa/server"
	"tinyrsa/store"
)

var (
	configPath string
	dbPath     string
	logLevel   string

	cfg *config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tinyrsa",
	Short: "A toy RSA cryptosystem",
	Long: `tinyrsa generates RSA keys from random primes of a chosen bit length and
encrypts text block by block with plain modular exponentiation.

It is intentionally insecure: no padding scheme, no constant-time
arithmetic. Use it to play with the scheme, not to protect anything.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("db") {
			cfg.DBPath = dbPath
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return errors.Wrap(err, "invalid config")
		}
		log = cfg.Logger()
		log.SetOutput(cmd.ErrOrStderr())
		return nil
	},
}

var serveAddr string
var serveH2C bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP and websocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.ListenAddr = serveAddr
		}
		if cmd.Flags().Changed("h2c") {
			cfg.H2C = serveH2C
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return server.New(cfg, st, log).ListenAndServe(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a JSON config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./rsa.db", "path to the SQLite key database")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().BoolVar(&serveH2C, "h2c", false, "accept HTTP/2 without TLS")

	rootCmd.AddCommand(serveCmd)
}

func openStore() (*store.Store, error) {
	return store.Open(cfg.DBPath, log)
}

func parseInt(name, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("--%s: %q is not a decimal integer", name, s)
	}
	return v, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
