package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fabrimaciel/gda/parser"
)

func (a *app) renderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "render <batch.yaml>",
		Short: "Print the commands of a batch without executing them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry(cmd.Context())
			if err != nil {
				return err
			}
			actions, err := loadBatchFile(args[0])
			if err != nil {
				return err
			}
			exec, err := a.executer(reg, "")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, act := range actions {
				c, err := exec.CreateParser(act).CommandText()
				if err != nil {
					return fmt.Errorf("%s: %w", act, err)
				}
				printCommand(out, act.String(), c)
			}
			return nil
		},
	}
}

func printCommand(w io.Writer, title string, c *parser.Command) {
	fmt.Fprintf(w, "-- %s\n%s\n", title, c.Text)
	for _, b := range c.Bindings {
		fmt.Fprintf(w, "--   %s = %v (%s %s)\n", b.Name, b.Value, b.Direction, b.TypeName)
	}
}
