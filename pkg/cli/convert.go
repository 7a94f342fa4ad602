package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/pyromaniac/pyromaniac/pkg/disk"
	"github.com/spf13/cobra"
)

func (c *CLI) newConvertCmd() *cobra.Command {
	var output, uuid string

	cmd := &cobra.Command{
		Use:   "convert [report]",
		Short: "Convert an fdisk -l report into a geometry file",
		Long: `Read the report printed by "fdisk -l <reference image>" from a file or stdin
and write the geometry file a station burns from.

  fdisk -l reference.img | pyromaniac convert -o images/partition.txt --uuid 1234-5678`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := "-"
			if len(args) > 0 {
				input = args[0]
			}
			return c.runConvert(input, output, uuid)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "geometry file to write (default: stdout)")
	cmd.Flags().StringVar(&uuid, "uuid", "", "filesystem UUID to record")

	return cmd
}

func (c *CLI) runConvert(input, output, uuid string) error {
	var r io.Reader = c.input
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return fmt.Errorf("failed to open report: %w", err)
		}
		defer f.Close()
		r = f
	}

	d, err := disk.ParseReport(r)
	if err != nil {
		return err
	}
	if uuid != "" {
		d.UUID = uuid
	}

	if output == "" {
		_, err := d.WriteTo(c.output)
		return err
	}

	if err := disk.SaveDescriptor(output, d); err != nil {
		return err
	}
	c.console.Success(fmt.Sprintf("Wrote %s (%s)", output, d.Summary()))
	return nil
}
