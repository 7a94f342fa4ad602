package disk

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// reportTypes maps fdisk's hex type column to a filesystem token
var reportTypes = map[string]FSType{
	"6":  FSFat16,
	"b":  FSFat32,
	"c":  FSFat32,
	"e":  FSFat16,
	"83": FSExt4,
}

// ParseReport converts the text report printed by `fdisk -l <image>` into a
// Descriptor. Partition rows follow the "Device" header; only the first two
// partitions are used.
func ParseReport(r io.Reader) (*Descriptor, error) {
	var (
		d        Descriptor
		haveID   bool
		inTable  bool
		havePart = make(map[int]bool)
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if rest, ok := strings.CutPrefix(line, "Disk identifier:"); ok {
			sig, err := strconv.ParseUint(strings.TrimSpace(rest), 0, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: bad disk identifier %q", ErrUnsupportedReport, strings.TrimSpace(rest))
			}
			d.Signature = uint32(sig)
			haveID = true
			continue
		}

		if strings.HasPrefix(line, "Device") {
			inTable = true
			continue
		}
		if !inTable || line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) > 1 && fields[1] == "*" {
			fields = append(fields[:1], fields[2:]...)
		}
		if len(fields) < 6 {
			return nil, fmt.Errorf("%w: short partition line %q", ErrUnsupportedReport, line)
		}

		index := partitionIndex(fields[0])
		if index != 1 && index != 2 {
			continue
		}

		var nums [3]uint64
		for i := range nums {
			n, err := strconv.ParseUint(fields[i+1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad sector value %q", ErrUnsupportedReport, fields[i+1])
			}
			nums[i] = n
		}

		fs, ok := reportTypes[strings.ToLower(fields[5])]
		if !ok {
			return nil, fmt.Errorf("%w: partition %d has unsupported type %s", ErrUnsupportedReport, index, fields[5])
		}

		spec := PartitionSpec{Start: nums[0], End: nums[1], Sectors: nums[2], FSType: fs, Format: FormatNamed}
		if index == 1 {
			d.Part1 = spec
		} else {
			d.Part2 = spec
		}
		havePart[index] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	switch {
	case !haveID:
		return nil, fmt.Errorf("%w: partid", ErrMissingRecord)
	case !havePart[1]:
		return nil, fmt.Errorf("%w: part1", ErrMissingRecord)
	case !havePart[2]:
		return nil, fmt.Errorf("%w: part2", ErrMissingRecord)
	}

	return &d, nil
}

// partitionIndex extracts the trailing partition number of a device node
func partitionIndex(node string) int {
	i := len(node)
	for i > 0 && node[i-1] >= '0' && node[i-1] <= '9' {
		i--
	}
	n, err := strconv.Atoi(node[i:])
	if err != nil {
		return 0
	}
	return n
}
