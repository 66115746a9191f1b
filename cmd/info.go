package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smazurov/fakewebcam/internal/api"
	"github.com/smazurov/fakewebcam/internal/api/models"
	"github.com/smazurov/fakewebcam/internal/device"
	"github.com/smazurov/fakewebcam/internal/logging"
)

// CreateInfoCmd creates the info command.
func CreateInfoCmd() *cobra.Command {
	var name string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print device capability, format and input",
		Long: `Registers a device, queries it through its ioctl interface the way a capture ` +
			`client would and prints the result.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := logging.GetLogger("probe")
			dev, unregister, err := registerStandalone(name, false, logger)
			if err != nil {
				return err
			}
			defer unregister()

			info, err := api.QueryDeviceInfo(cmd.Context(), dev)
			if err != nil {
				return fmt.Errorf("query device: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			printInfo(out, dev.Path(), info)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", device.DefaultName, "Device name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	return cmd
}

func printInfo(w io.Writer, path string, info models.DeviceInfoData) {
	c, f, in := info.Capability, info.Format, info.Input
	fmt.Fprintf(w, "Device %s\n", path)
	fmt.Fprintf(w, "  Driver name    : %s\n", c.Driver)
	fmt.Fprintf(w, "  Card type      : %s\n", c.Card)
	fmt.Fprintf(w, "  Bus info       : %s\n", c.BusInfo)
	fmt.Fprintf(w, "  Driver version : %s\n", c.Version)
	fmt.Fprintf(w, "  Capabilities   : %s\n", strings.Join(c.Capabilities, ", "))
	fmt.Fprintf(w, "Format Video Capture\n")
	fmt.Fprintf(w, "  Width/Height   : %d/%d\n", f.Width, f.Height)
	fmt.Fprintf(w, "  Pixel Format   : '%s' (%s)\n", f.PixelFormat, f.Description)
	fmt.Fprintf(w, "  Field          : %s\n", f.Field)
	fmt.Fprintf(w, "  Bytes per Line : %d\n", f.BytesPerLine)
	fmt.Fprintf(w, "  Size Image     : %d\n", f.SizeImage)
	fmt.Fprintf(w, "  Colorspace     : %s\n", f.Colorspace)
	fmt.Fprintf(w, "Video input %d: %s (%s, std %s)\n", in.Index, in.Name, in.Type, in.Standard)
}
