package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pilab-dev/frigg/manager"
)

func newModulesCmd(getEnv func() *env) *cobra.Command {
	return &cobra.Command{
		Use:     "modules",
		Short:   "List the configured modules",
		Aliases: []string{"module"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range getEnv().registry.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newAuthorizeURLCmd(getEnv func() *env) *cobra.Command {
	var userID string
	c := &cobra.Command{
		Use:   "authorize-url [MODULE]",
		Short: "Print where to send a user to authorize a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("user id is required via --user flag")
			}
			e := getEnv()
			ctx := cmd.Context()
			m, err := e.manager(ctx, args[0], userID, "")
			if err != nil {
				return err
			}
			if e.states == nil {
				return errNoSharedStateStore
			}
			req, err := m.GetAuthorizationRequirements(ctx)
			if err != nil {
				return fmt.Errorf("failed to get authorization requirements: %w", err)
			}
			return printYAML(cmd.OutOrStdout(), req)
		},
	}
	c.Flags().StringVar(&userID, "user", "", "local user id")
	return c
}

func newEntitiesCmd(getEnv func() *env) *cobra.Command {
	var userID, module string
	c := &cobra.Command{
		Use:     "entities",
		Short:   "List the accounts a user connected",
		Aliases: []string{"entity"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("user id is required via --user flag")
			}
			entities, err := manager.GetEntitiesForUser(cmd.Context(), getEnv().storage.Entities, module, userID)
			if err != nil {
				return err
			}
			if len(entities) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No entities found.")
				return nil
			}
			return printYAML(cmd.OutOrStdout(), entities)
		},
	}
	c.Flags().StringVar(&userID, "user", "", "local user id")
	c.Flags().StringVar(&module, "module", "", "only list entities of this module")
	return c
}

func newTestAuthCmd(getEnv func() *env) *cobra.Command {
	var userID, entityID string
	c := &cobra.Command{
		Use:   "test-auth [MODULE]",
		Short: "Check that an entity's credential still works",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if entityID == "" {
				return errors.New("entity id is required via --entity flag")
			}
			ctx := cmd.Context()
			m, err := getEnv().manager(ctx, args[0], userID, entityID)
			if err != nil {
				return err
			}
			if !m.CheckUserAuthorized() || !m.TestAuth(ctx) {
				return fmt.Errorf("entity %s is not authorized", entityID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Entity %s is authorized.\n", entityID)
			return nil
		},
	}
	c.Flags().StringVar(&userID, "user", "", "local user id")
	c.Flags().StringVar(&entityID, "entity", "", "entity id")
	return c
}

func newDeauthorizeCmd(getEnv func() *env) *cobra.Command {
	var userID, entityID string
	c := &cobra.Command{
		Use:   "deauthorize [MODULE]",
		Short: "Delete the credential of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" || entityID == "" {
				return errors.New("--user and --entity are required")
			}
			ctx := cmd.Context()
			m, err := getEnv().manager(ctx, args[0], userID, entityID)
			if err != nil {
				return err
			}
			if err := m.Deauthorize(ctx); err != nil {
				return fmt.Errorf("failed to deauthorize: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Entity %s deauthorized.\n", entityID)
			return nil
		},
	}
	c.Flags().StringVar(&userID, "user", "", "local user id")
	c.Flags().StringVar(&entityID, "entity", "", "entity id")
	return c
}
