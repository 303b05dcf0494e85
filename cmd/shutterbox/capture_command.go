package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"shutterbox/internal/config"
	"shutterbox/internal/queueaccess"
)

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture <file>...",
		Short: "Submit images for delivery (use - to read stdin)",
		Long: "Submit one or more images to the daemon. A running daemon tries the sink " +
			"immediately and queues on failure. Without a daemon the images are written " +
			"straight to the store and delivered on the next flush.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return ctx.withAccess(func(access queueaccess.Access) error {
				if !access.Live() {
					fmt.Fprintln(out, "Daemon not running; storing captures for the next flush")
				}
				for _, arg := range args {
					name, payload, err := readCapture(cmd.InOrStdin(), arg)
					if err != nil {
						return err
					}
					res, err := access.Capture(cmd.Context(), name, payload)
					if err != nil {
						return fmt.Errorf("capture %s: %w", name, err)
					}
					if res.ItemID > 0 {
						fmt.Fprintf(out, "Queued %s (%d bytes) as item %d\n", name, res.Bytes, res.ItemID)
						continue
					}
					fmt.Fprintf(out, "Accepted %s (%d bytes) as %s\n", name, res.Bytes, res.CaptureID)
				}
				return nil
			})
		},
	}
	return cmd
}

func readCapture(stdin io.Reader, arg string) (string, []byte, error) {
	if arg == "-" {
		payload, err := io.ReadAll(stdin)
		if err != nil {
			return "", nil, fmt.Errorf("read stdin: %w", err)
		}
		if len(payload) == 0 {
			return "", nil, errors.New("stdin is empty")
		}
		return "stdin", payload, nil
	}
	path, err := config.ExpandPath(arg)
	if err != nil {
		return "", nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, fmt.Errorf("inspect %q: %w", path, err)
	}
	if info.IsDir() {
		return "", nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return "", nil, fmt.Errorf("%s is empty", path)
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read %q: %w", path, err)
	}
	return filepath.Base(path), payload, nil
}
