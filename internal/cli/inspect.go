package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"transformstate/internal/codec"
	"transformstate/internal/document"
)

// newInspectCmd queries the unwrapped JSON form with a gjson path such as
// "stats.pages_processed" or "shard_id_to_global_checkpoint.*".
func newInspectCmd(o *options) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "inspect <path> [file]",
		Short: "Print one field of a metadata document",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[1:])
			if err != nil {
				return err
			}
			m, err := decode(from, data, o)
			if err != nil {
				return err
			}
			doc, err := codec.DocumentCodec{ContentType: document.JSON}.Encode(m)
			if err != nil {
				return err
			}
			res := gjson.GetBytes(doc, args[0])
			if !res.Exists() {
				return fmt.Errorf("inspect: no value at %q", args[0])
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), res.String())
			return err
		},
	}
	cmd.Flags().StringVar(&from, "from", "json", "input form: json|yaml|binary")
	return cmd
}
