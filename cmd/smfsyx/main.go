// Command smfsyx extracts every system-exclusive message from a
// Standard MIDI File and writes each one to its own numbered .syx file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/midigrove/smf"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "smfsyx:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var outDir string
	var lenient bool

	cmd := &cobra.Command{
		Use:   "smfsyx <file.mid>",
		Short: "Extract system-exclusive messages from a Standard MIDI File",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], outDir, lenient)
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory to write extracted .syx files to")
	cmd.Flags().BoolVar(&lenient, "lenient", false, "tolerate recoverable parse errors instead of aborting")

	return cmd
}

func run(path, outDir string, lenient bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	parser := smf.NewParser(smf.WithStrict(!lenient))
	handler := smf.NewSequenceHandler()
	if err := parser.Parse(f, handler); err != nil {
		return err
	}
	seq := handler.Sequence()

	events := seq.SysexEvents(nil)
	if len(events) == 0 {
		fmt.Println("no system-exclusive messages found")
		return nil
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	for i, e := range events {
		outPath := fmt.Sprintf("%s/sysex-%04d.syx", outDir, i)
		payload := append([]byte{0xF0}, e.Sysex.Payload...)
		if err := os.WriteFile(outPath, payload, 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d bytes)\n", outPath, len(payload))
	}
	return nil
}
