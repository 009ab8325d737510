package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fabrimaciel/gda/dialect"
	"github.com/fabrimaciel/gda/schema"
)

func (a *app) schemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect mapping files",
	}
	check := &cobra.Command{
		Use:   "check [mapping.yaml...]",
		Short: "Load and validate mapping files",
		Long: "Load and validate mapping files. Versioned types must map a row-version\n" +
			"column unless the dialect has a row-version pseudo-column.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				a.v.Set("schema", args)
			}
			watch, _ := cmd.Flags().GetBool("watch")
			return a.runCheck(cmd.Context(), cmd.OutOrStdout(), watch)
		},
	}
	check.Flags().Bool("watch", false, "validate again whenever the mapping file changes")
	cmd.AddCommand(check)
	return cmd
}

var errInvalidMapping = errors.New("invalid mapping")

func (a *app) runCheck(ctx context.Context, out io.Writer, watch bool) error {
	rules, err := dialect.Lookup(a.v.GetString("dialect"))
	if err != nil {
		return err
	}
	var opts []schema.ValidateOption
	if rules.RowVersionPseudoColumn == "" {
		opts = append(opts, schema.RequireRowVersionColumn())
	}
	reg, err := a.registry(ctx)
	if err != nil {
		return err
	}
	err = report(out, reg, opts)
	if !watch {
		return err
	}

	paths := a.v.GetStringSlice("schema")
	if len(paths) != 1 {
		return fmt.Errorf("--watch needs exactly one mapping file, got %d", len(paths))
	}
	a.logger.Info("watching mapping file", "path", paths[0])
	err = schema.Watch(ctx, paths[0], func(reg *schema.Registry, err error) {
		if err != nil {
			fmt.Fprintf(out, "%v\n", err)
			return
		}
		_ = report(out, reg, opts)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func report(out io.Writer, reg *schema.Registry, opts []schema.ValidateOption) error {
	result := schema.Validate(reg, opts...)
	fmt.Fprintf(out, "%d types\n%s\n", len(reg.Types()), result)
	if result.HasErrors() {
		return errInvalidMapping
	}
	return nil
}
