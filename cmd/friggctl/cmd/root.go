// Package cmd implements friggctl, which manages module connections
// directly against the configured storage.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pilab-dev/frigg/cache"
	"github.com/pilab-dev/frigg/config"
	"github.com/pilab-dev/frigg/internal/bootstrap"
	"github.com/pilab-dev/frigg/log"
	"github.com/pilab-dev/frigg/manager"
	"github.com/pilab-dev/frigg/modules"
)

// AppName is the CLI binary name.
const AppName = "friggctl"

// env is what commands operate on. It is built once per invocation.
type env struct {
	cfg      *config.ServerConfig
	logger   log.Logger
	storage  *bootstrap.Storage
	states   cache.StateStore
	registry *modules.Registry
	cleanup  []func()
}

// errNoSharedStateStore is returned when an authorize URL would carry a
// state the server cannot validate.
var errNoSharedStateStore = errors.New("authorize-url needs the state store the server uses; set REDIS_ADDR")

func (e *env) close() {
	for i := len(e.cleanup) - 1; i >= 0; i-- {
		e.cleanup[i]()
	}
}

func newEnv(ctx context.Context, cfgFile string, verbose bool) (*env, error) {
	cfg, err := config.LoadConfigFile(cfgFile)
	if err != nil {
		return nil, err
	}

	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	e := &env{cfg: cfg, logger: log.NewZerologAdapter(level, true)}

	e.registry, err = bootstrap.NewRegistry(cfg, e.logger)
	if err != nil {
		return nil, err
	}
	e.storage, err = bootstrap.OpenStorage(ctx, cfg, e.logger)
	if err != nil {
		return nil, err
	}
	e.cleanup = append(e.cleanup, func() { e.storage.Close(context.Background()) })

	// an in-process state store dies with the CLI, so only a shared one is used
	if cfg.RedisAddr == "" {
		return e, nil
	}
	states, closeStates, err := bootstrap.NewStateStore(ctx, cfg, e.logger)
	if err != nil {
		e.close()
		return nil, err
	}
	e.states = states
	e.cleanup = append(e.cleanup, closeStates)
	return e, nil
}

func (e *env) manager(ctx context.Context, module, userID, entityID string) (*manager.Manager, error) {
	m, err := e.registry.Get(module)
	if err != nil {
		return nil, err
	}
	return manager.New(ctx, m, manager.Options{
		UserID:      userID,
		EntityID:    entityID,
		Credentials: e.storage.Credentials,
		Entities:    e.storage.Entities,
		States:      e.states,
		Logger:      e.logger,
	})
}

func printYAML(w io.Writer, v interface{}) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to render output: %w", err)
	}
	_, err = w.Write(out)
	return err
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var (
		cfgFile string
		verbose bool
		e       *env
	)

	root := &cobra.Command{
		Use:           AppName,
		Short:         "friggctl manages the OAuth2 connections of frigg users",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			e, err = newEnv(cmd.Context(), cfgFile, verbose)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e != nil {
				e.close()
			}
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is config.yaml in /etc/frigg, $HOME/.frigg or the working directory)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	getEnv := func() *env { return e }
	root.AddCommand(
		newModulesCmd(getEnv),
		newAuthorizeURLCmd(getEnv),
		newEntitiesCmd(getEnv),
		newTestAuthCmd(getEnv),
		newDeauthorizeCmd(getEnv),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	root := NewRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
