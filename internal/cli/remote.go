package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"transformstate/internal/metadata"
	"transformstate/internal/transport"
)

const rpcTimeout = 10 * time.Second

func withClient(cmd *cobra.Command, o *options, fn func(context.Context, *transport.Client) (metadata.TransformMetadata, error), format string) error {
	c, err := transport.Dial(o.addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), rpcTimeout)
	defer cancel()
	m, err := fn(ctx, c)
	if err != nil {
		return err
	}
	out, err := encode(format, m)
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), format, out)
}

func newGetCmd(o *options) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch metadata from a running engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, o, func(ctx context.Context, c *transport.Client) (metadata.TransformMetadata, error) {
				return c.Get(ctx, args[0])
			}, format)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "json", "output form: json|yaml|binary")
	return cmd
}

// newSaveCmd writes a document with a conditional write. --seq-no and
// --primary-term must match the stored version unless the id is new.
func newSaveCmd(o *options) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "save [file]",
		Short: "Write metadata to a running engine",
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
			return withClient(cmd, o, func(ctx context.Context, c *transport.Client) (metadata.TransformMetadata, error) {
				return c.Save(ctx, m)
			}, "json")
		},
	}
	cmd.Flags().StringVar(&from, "from", "json", "input form: json|yaml|binary")
	return cmd
}

func newStatsCmd(o *options) *cobra.Command {
	var delta metadata.TransformStats
	cmd := &cobra.Command{
		Use:   "merge-stats <id>",
		Short: "Add counters to a transform's stats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, o, func(ctx context.Context, c *transport.Client) (metadata.TransformMetadata, error) {
				return c.MergeStats(ctx, args[0], delta)
			}, "json")
		},
	}
	f := cmd.Flags()
	f.Int64Var(&delta.PagesProcessed, "pages", 0, "pages processed")
	f.Int64Var(&delta.DocumentsProcessed, "documents-processed", 0, "documents processed")
	f.Int64Var(&delta.DocumentsIndexed, "documents-indexed", 0, "documents indexed")
	f.Int64Var(&delta.IndexTimeInMillis, "index-time-ms", 0, "index time in ms")
	f.Int64Var(&delta.SearchTimeInMillis, "search-time-ms", 0, "search time in ms")
	return cmd
}
