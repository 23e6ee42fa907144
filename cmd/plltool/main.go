// cmd/plltool/main.go
//
// plltool - inspect and drive a persistent list file from the command
// line.
//
// Usage:
//
//	plltool open   --file=data.pll
//	plltool dump   --file=data.pll
//	plltool stats  --file=data.pll
//	plltool fsck   --file=data.pll
//
// Every element round-trips through the opaque string codec; plltool
// is a diagnostic tool, not a typed client, so it only ever needs one
// element representation.
package main

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"pll/pkg/block"
	"pll/pkg/buffer"
	"pll/pkg/list"
	"pll/pkg/serializer"
)

var (
	filePath   string
	bufferKind string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "plltool",
		Short: "Inspect and drive a persistent linked list file",
	}
	root.PersistentFlags().StringVar(&filePath, "file", "", "path to the list's data file (required)")
	root.PersistentFlags().StringVar(&bufferKind, "buffer", "twocopy", "backing buffer: direct|twocopy")

	root.AddCommand(openCmd(), dumpCmd(), statsCmd(), fsckCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func requireFile() error {
	if filePath == "" {
		return fmt.Errorf("--file is required")
	}
	return nil
}

// openBuffer opens the configured buffer variant (direct or twocopy) at
// ProtectionForce, or at ProtectionReadOnly when readOnly is set.
func openBuffer(readOnly bool) (buffer.Buffer, error) {
	level := buffer.ProtectionForce
	if readOnly {
		level = buffer.ProtectionReadOnly
	}
	switch bufferKind {
	case "direct":
		return buffer.OpenDirectBuffer(filePath, level)
	case "twocopy":
		return buffer.OpenTwoCopyBuffer(filePath, level)
	default:
		return nil, fmt.Errorf("unknown --buffer %q (want direct or twocopy)", bufferKind)
	}
}

func openList(readOnly bool) (*list.PersistentLinkedList[string], func() error, error) {
	buf, err := openBuffer(readOnly)
	if err != nil {
		return nil, nil, fmt.Errorf("open buffer: %w", err)
	}
	blocks, err := block.OpenDynamicPersistentBlockBuffer(buf)
	if err != nil {
		buf.Close()
		return nil, nil, fmt.Errorf("open block allocator: %w", err)
	}
	opener := list.Open[string]
	if readOnly {
		opener = list.OpenReadOnly[string]
	}
	l, err := opener(blocks, serializer.Opaque[string](), logr.Discard())
	if err != nil {
		blocks.Close()
		return nil, nil, fmt.Errorf("open list: %w", err)
	}
	return l, l.Close, nil
}

func openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "Open (creating if necessary) the list file and report its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFile(); err != nil {
				return err
			}
			l, closeFn, err := openList(false)
			if err != nil {
				return err
			}
			defer closeFn()
			fmt.Fprintf(cmd.OutOrStdout(), "opened %s: %d element(s)\n", filePath, l.Size())
			return nil
		},
	}
}

func dumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print the list's raw block-graph chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFile(); err != nil {
				return err
			}
			l, closeFn, err := openList(true)
			if err != nil {
				return err
			}
			defer closeFn()
			return l.DebugDump(cmd.OutOrStdout())
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print size, capacity, and commit-log information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFile(); err != nil {
				return err
			}
			l, closeFn, err := openList(true)
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			buf := l.Blocks().Buffer()
			fmt.Fprintf(out, "file:       %s\n", filePath)
			fmt.Fprintf(out, "buffer:     %s (%s)\n", bufferKind, buf.ProtectionLevel())
			fmt.Fprintf(out, "capacity:   %d bytes\n", buf.Capacity())
			fmt.Fprintf(out, "elements:   %d\n", l.Size())

			if tc, ok := buf.(*buffer.TwoCopyBarrierBuffer); ok {
				commits := tc.CommitLog()
				fmt.Fprintf(out, "commits:    %d recorded\n", len(commits))
				for _, c := range commits {
					fmt.Fprintf(out, "  %s  %s\n", c.At.Format("2006-01-02T15:04:05Z07:00"), c.ID)
				}
			}
			return nil
		},
	}
}

func fsckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fsck",
		Short: "Run recovery's consistency checks read-only and report the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFile(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			l, closeFn, err := openList(true)
			if err != nil {
				fmt.Fprintf(out, "FAIL: %v\n", err)
				return err
			}
			defer closeFn()

			digests, err := block.Fingerprint(l.Blocks())
			if err != nil {
				fmt.Fprintf(out, "FAIL: fingerprint walk: %v\n", err)
				return err
			}
			fmt.Fprintf(out, "OK: %d element(s), %d live block(s)\n", l.Size(), len(digests))
			return nil
		},
	}
}
