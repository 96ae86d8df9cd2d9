// Package cli implements tsctl, the operator tool for transform metadata.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"transformstate/internal/codec"
	"transformstate/internal/logging"
	"transformstate/internal/metadata"
)

// Version is injected at build time.
var Version string

type options struct {
	addr    string
	verbose bool

	// identity for document input, which does not carry it
	id          string
	seqNo       int64
	primaryTerm int64
}

func (o *options) version() codec.Version {
	return codec.Version{ID: o.id, SeqNo: o.seqNo, PrimaryTerm: o.primaryTerm}
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "tsctl",
		Short:         "Inspect, convert and edit transform metadata",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts := logging.Options{Output: cmd.ErrOrStderr()}
			if o.verbose {
				opts.Level = "debug"
			}
			logging.InitFromEnv(opts)
		},
	}
	root.PersistentFlags().StringVar(&o.addr, "addr", "localhost:7070", "metadata service address")
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().StringVar(&o.id, "id", "", "document id for json/yaml input")
	root.PersistentFlags().Int64Var(&o.seqNo, "seq-no", metadata.UnassignedSeqNo, "seq_no for json/yaml input")
	root.PersistentFlags().Int64Var(&o.primaryTerm, "primary-term", metadata.UnassignedPrimaryTerm, "primary_term for json/yaml input")

	root.AddCommand(
		newConvertCmd(o),
		newInspectCmd(o),
		newGetCmd(o),
		newSaveCmd(o),
		newStatsCmd(o),
		newVersionCmd(),
	)
	return root
}

func Execute() error {
	return NewRootCommand().Execute()
}

// readInput reads the named file, or stdin for "-" or no argument.
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}

// decode parses data in the named format.
func decode(format string, data []byte, o *options) (metadata.TransformMetadata, error) {
	c, err := codec.ByName(format)
	if err != nil {
		return metadata.TransformMetadata{}, err
	}
	return c.Decode(data, o.version())
}

func encode(format string, m metadata.TransformMetadata) ([]byte, error) {
	c, err := codec.ByName(format)
	if err != nil {
		return nil, err
	}
	return c.Encode(m)
}

// writeOutput prints text forms with a trailing newline and binary as is.
func writeOutput(w io.Writer, format string, body []byte) error {
	if _, err := w.Write(body); err != nil {
		return err
	}
	if strings.HasPrefix(format, "bin") || (len(body) > 0 && body[len(body)-1] == '\n') {
		return nil
	}
	_, err := fmt.Fprintln(w)
	return err
}
