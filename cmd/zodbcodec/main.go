// Command zodbcodec converts between pickle byte streams and the canonical
// JSON representation codec.PickleToJSON/JSONToPickle define, for manual
// inspection or scripting against ZODB-adjacent data. It is a thin
// front-end over the codec package's six entry points — it does not read
// FileStorage files or transaction logs, and it does not benchmark.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bluedynamics/zodb-json-codec"
	"github.com/bluedynamics/zodb-json-codec/internal/log"
)

var errReadInput = fmt.Errorf("zodbcodec: read input")
var errWriteOutput = fmt.Errorf("zodbcodec: write output")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Logger.Error().Err(err).Msg("zodbcodec failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "zodbcodec",
		Short:         "Convert between pickle and the canonical JSON representation",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(newToJSONCmd(), newToPickleCmd())
	return root
}

func newToJSONCmd() *cobra.Command {
	var record bool
	var output string

	cmd := &cobra.Command{
		Use:   "to-json [file]",
		Short: "Decode a pickle byte stream to canonical JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := readInput(args)
			if err != nil {
				return err
			}

			var out []byte
			if record {
				rec, err := codec.DecodeZODBRecord(data)
				if err != nil {
					return err
				}
				out, err = codec.MarshalJSONValue(rec)
				if err != nil {
					return err
				}
			} else {
				out, err = codec.PickleToJSON(data)
				if err != nil {
					return err
				}
			}
			out = append(out, '\n')
			return writeOutput(output, out)
		},
	}
	cmd.Flags().BoolVar(&record, "record", false, "treat input as a two-pickle ZODB record")
	cmd.Flags().StringVarP(&output, "out", "o", "-", "output file, or - for stdout")
	return cmd
}

func newToPickleCmd() *cobra.Command {
	var record bool
	var output string

	cmd := &cobra.Command{
		Use:   "to-pickle [file]",
		Short: "Encode canonical JSON to a pickle byte stream",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := readInput(args)
			if err != nil {
				return err
			}

			var out []byte
			if record {
				v, err := codec.UnmarshalJSONValue(data)
				if err != nil {
					return err
				}
				rec, ok := v.(*codec.Record)
				if !ok {
					return fmt.Errorf("zodbcodec: --record input must be a {\"@cls\":…, \"@s\":…} object")
				}
				out, err = codec.EncodeZODBRecord(rec)
				if err != nil {
					return err
				}
			} else {
				out, err = codec.JSONToPickle(data)
				if err != nil {
					return err
				}
			}
			return writeOutput(output, out)
		},
	}
	cmd.Flags().BoolVar(&record, "record", false, "emit a two-pickle ZODB record")
	cmd.Flags().StringVarP(&output, "out", "o", "-", "output file, or - for stdout")
	return cmd
}

func readInput(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("%w: stdin: %w", errReadInput, err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errReadInput, err)
	}
	return data, nil
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("%w: %w", errWriteOutput, err)
		}
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", errWriteOutput, err)
	}
	return nil
}
