package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/vidforge/pkg/client"
	"github.com/marmos91/vidforge/pkg/protocol"
	"github.com/spf13/cobra"
)

type sendOptions struct {
	addr        string
	operation   string
	width       int
	height      int
	aspectRatio string
	start       string
	end         string
	format      string
	output      string
	force       bool
	timeout     time.Duration
}

// buildOperation builds the request operation from the flags, applying the same
// validation the server does.
func (o *sendOptions) buildOperation() (protocol.Operation, error) {
	meta := map[string]any{"operation": o.operation}
	switch protocol.OperationKind(o.operation) {
	case protocol.OpResize:
		meta["width"] = o.width
		meta["height"] = o.height
	case protocol.OpChangeAspectRatio:
		meta["aspect_ratio"] = o.aspectRatio
	case protocol.OpCreateClip:
		if o.start != "" {
			meta["start_time"] = o.start
		}
		if o.end != "" {
			meta["end_time"] = o.end
		}
		meta["format"] = o.format
	}

	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return protocol.ParseOperation(raw)
}

func newSendCommand() *cobra.Command {
	opts := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "send FILE",
		Short: "Upload a video and save the processed result",
		Long: `Upload a video to a vidforge server and write the processed result.

The result is saved next to FILE as processed_<name>.<ext> unless --output
is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := opts.buildOperation()
			if err != nil {
				return err
			}

			path := args[0]
			mediaType := strings.TrimPrefix(filepath.Ext(path), ".")
			if mediaType == "" {
				return fmt.Errorf("%s has no file extension to use as media type", path)
			}

			payload, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if opts.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.timeout)
				defer cancel()
			}

			frame, err := client.Send(ctx, opts.addr, client.Request{
				Operation: op,
				MediaType: mediaType,
				Payload:   payload,
			})
			if errors.Is(err, client.ErrServerBusy) {
				return fmt.Errorf("%w; retry once the previous upload from this host finishes", err)
			}
			if err != nil {
				return err
			}

			if failure, ok := frame.Failure(); ok {
				return fmt.Errorf("server error %d (%s): %s. %s", int(failure.Code), failure.Code, failure.Description, failure.Solution)
			}

			outPath := opts.output
			if outPath == "" {
				outPath, err = resultPath(path, frame.MediaType)
				if err != nil {
					return err
				}
			}
			if err := writeResult(outPath, frame.Payload, opts.force); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", outPath, humanize.IBytes(uint64(len(frame.Payload))))
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.addr, "addr", "localhost:5000", "Server address")
	flags.StringVar(&opts.operation, "operation", string(protocol.OpCompress), "Operation: compress, resize, change_aspect_ratio, convert_to_audio, create_clip")
	flags.IntVar(&opts.width, "width", 0, "Target width for resize")
	flags.IntVar(&opts.height, "height", 0, "Target height for resize")
	flags.StringVar(&opts.aspectRatio, "aspect-ratio", "", "Aspect ratio W:H for change_aspect_ratio")
	flags.StringVar(&opts.start, "start", "", "Clip start, seconds or [HH:]MM:SS")
	flags.StringVar(&opts.end, "end", "", "Clip end, seconds or [HH:]MM:SS")
	flags.StringVar(&opts.format, "format", "gif", "Clip format: gif or webm")
	flags.StringVarP(&opts.output, "output", "o", "", "Where to write the result")
	flags.BoolVar(&opts.force, "force", false, "Overwrite the result file if it exists")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Abort the upload after this long (0 = no limit)")
	return cmd
}

// resultPath names the result processed_<stem>.<mediaType> beside input.
// mediaType comes from the server and must be a bare extension.
func resultPath(input, mediaType string) (string, error) {
	if mediaType == "" || strings.ContainsAny(mediaType, `/\`) || strings.Contains(mediaType, "..") {
		return "", fmt.Errorf("server returned an invalid media type %q", mediaType)
	}

	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(input), "processed_"+stem+"."+mediaType), nil
}

// writeResult writes payload to path, refusing to replace an existing file
// unless force is set.
func writeResult(path string, payload []byte, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}

	f, err := os.OpenFile(path, flags, 0644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err != nil {
		return err
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
