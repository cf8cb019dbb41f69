package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vijaygupta18/multidb/internal/sqlscript"
)

func checkCmd() *cobra.Command {
	var file, namespace string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a script and list its statements without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := readScript(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return check(script, namespace, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "script file, or - for stdin")
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "schema to validate as search_path")
	return cmd
}

func check(script, namespace string, out io.Writer) error {
	if err := sqlscript.Validate(script); err != nil {
		return err
	}
	if namespace != "" {
		if err := sqlscript.ValidateNamespace(namespace); err != nil {
			return err
		}
	}
	stmts, err := sqlscript.Split(script)
	if err != nil {
		return err
	}

	for i, stmt := range stmts {
		fmt.Fprintf(out, "%3d  %s\n", i+1, sqlscript.Abbreviate(stmt, 100))
	}
	fmt.Fprintf(out, "ok: %d statement(s)\n", len(stmts))
	if reason, risky := sqlscript.ClassifyRisk(script); risky {
		fmt.Fprintf(out, "warning: %s\n", reason)
	}
	return nil
}
