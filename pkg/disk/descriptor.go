// Package disk holds the reference disk geometry a station burns onto every drive.
//
// The geometry file is line oriented:
//
//	partid 0xABCD
//	part1 2048 1050623 1048576 fat32
//	part2 1050624 30000000 0 ext4
//	uuid 1234-5678
//
// Two producer variants exist. Older files carry a numeric partition type code
// (0x0c, 0x83) in place of the filesystem token, and some write sector values
// with a trailing "s". Both are accepted and normalised; divergent input is
// reported as a Warning rather than coerced silently.
package disk

import (
	"fmt"
	"strings"
)

// FSType is a normalised filesystem token
type FSType string

const (
	FSFat16 FSType = "fat16"
	FSFat32 FSType = "fat32"
	FSExt2  FSType = "ext2"
	FSExt3  FSType = "ext3"
	FSExt4  FSType = "ext4"
)

var knownFSTypes = map[FSType]bool{
	FSFat16: true,
	FSFat32: true,
	FSExt2:  true,
	FSExt3:  true,
	FSExt4:  true,
}

// typeCodes maps MBR partition type codes to the filesystem they conventionally hold
var typeCodes = map[uint8]FSType{
	0x06: FSFat16,
	0x0b: FSFat32,
	0x0c: FSFat32,
	0x0e: FSFat16,
	0x83: FSExt4,
}

// Format identifies which producer convention a partition record used
type Format string

const (
	FormatNamed    Format = "named"
	FormatTypeCode Format = "typecode"
)

// PartitionSpec is one partition's reference geometry in 512-byte sectors
type PartitionSpec struct {
	Start   uint64
	End     uint64
	Sectors uint64

	// FSType is never empty on a parsed descriptor
	FSType   FSType
	TypeCode uint8
	Format   Format
}

// Token returns the filesystem token as it appears in the geometry file
func (p PartitionSpec) Token() string {
	if p.Format == FormatTypeCode {
		return fmt.Sprintf("0x%02x", p.TypeCode)
	}
	return string(p.FSType)
}

// Descriptor is the immutable reference geometry loaded at startup
type Descriptor struct {
	Part1     PartitionSpec
	Part2     PartitionSpec
	Signature uint32

	// UUID is parsed and written back but not applied to burned media
	UUID string
}

// Warning is a tolerated irregularity found while parsing
type Warning struct {
	Line    int
	Message string
}

func (w Warning) String() string {
	if w.Line == 0 {
		return w.Message
	}
	return fmt.Sprintf("line %d: %s", w.Line, w.Message)
}

// Summary renders a one-line description for logs
func (d *Descriptor) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "signature=0x%08X", d.Signature)
	fmt.Fprintf(&b, " part1=%d-%d/%s", d.Part1.Start, d.Part1.End, d.Part1.Token())
	fmt.Fprintf(&b, " part2=%d-/%s", d.Part2.Start, d.Part2.Token())
	if d.UUID != "" {
		fmt.Fprintf(&b, " uuid=%s", d.UUID)
	}
	return b.String()
}
