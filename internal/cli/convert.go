package cli

import (
	"github.com/spf13/cobra"
)

func newConvertCmd(o *options) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "convert [file]",
		Short: "Convert metadata between json, yaml and binary forms",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			m, err := decode(from, data, o)
			if err != nil {
				return err
			}
			out, err := encode(to, m)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), to, out)
		},
	}
	cmd.Flags().StringVar(&from, "from", "json", "input form: json|yaml|binary")
	cmd.Flags().StringVar(&to, "to", "binary", "output form: json|yaml|binary")
	return cmd
}
