package disk

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// WriteTo serialises the descriptor in geometry file form, keeping each
// partition record in the format it was read in.
func (d *Descriptor) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "partid 0x%X\n", d.Signature)
	writePartition(&buf, "part1", d.Part1)
	writePartition(&buf, "part2", d.Part2)
	if d.UUID != "" {
		fmt.Fprintf(&buf, "uuid %s\n", d.UUID)
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

func writePartition(buf *bytes.Buffer, name string, p PartitionSpec) {
	if p.Format == "" {
		p.Format = FormatNamed
	}
	fmt.Fprintf(buf, "%s %d %d %d %s\n", name, p.Start, p.End, p.Sectors, p.Token())
}

// SaveDescriptor writes the descriptor to path
func SaveDescriptor(path string, d *Descriptor) error {
	var buf bytes.Buffer
	if _, err := d.WriteTo(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write geometry file: %w", err)
	}
	return nil
}
