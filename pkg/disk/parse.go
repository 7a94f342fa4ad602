package disk

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LoadDescriptor reads and parses a geometry file
func LoadDescriptor(path string) (*Descriptor, []Warning, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open geometry file: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads a geometry description. Unknown records and divergent
// formatting produce warnings; malformed or missing required records are errors.
func Parse(r io.Reader) (*Descriptor, []Warning, error) {
	var (
		d        Descriptor
		warnings []Warning
		seen     = make(map[string]int)
	)

	warn := func(line int, format string, args ...interface{}) {
		warnings = append(warnings, Warning{Line: line, Message: fmt.Sprintf(format, args...)})
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		record := fields[0]
		switch record {
		case "partid", "part1", "part2", "uuid":
			if prev, dup := seen[record]; dup {
				warn(lineNo, "duplicate %s record (first on line %d), last one wins", record, prev)
			}
			seen[record] = lineNo
		}

		switch record {
		case "partid":
			if len(fields) != 2 {
				return nil, warnings, malformed(lineNo, "partid takes one value")
			}
			sig, err := strconv.ParseUint(fields[1], 0, 32)
			if err != nil {
				return nil, warnings, malformed(lineNo, "invalid disk signature %q", fields[1])
			}
			d.Signature = uint32(sig)

		case "part1", "part2":
			spec, err := parsePartition(lineNo, fields[1:], warn)
			if err != nil {
				return nil, warnings, err
			}
			if record == "part1" {
				d.Part1 = spec
			} else {
				d.Part2 = spec
			}

		case "uuid":
			if len(fields) != 2 {
				return nil, warnings, malformed(lineNo, "uuid takes one value")
			}
			d.UUID = fields[1]

		default:
			warn(lineNo, "ignoring unknown record %q", strings.Join(fields, " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, warnings, fmt.Errorf("failed to read geometry: %w", err)
	}

	for _, required := range []string{"partid", "part1", "part2"} {
		if _, ok := seen[required]; !ok {
			return nil, warnings, fmt.Errorf("%w: %s", ErrMissingRecord, required)
		}
	}
	if _, ok := seen["uuid"]; !ok {
		warn(0, "no uuid record")
	}

	if d.Part1.Format != d.Part2.Format {
		warn(seen["part2"], "partition records mix %s and %s formats", d.Part1.Format, d.Part2.Format)
	}
	if d.Part2.Start <= d.Part1.End {
		warn(seen["part2"], "part2 starts at %d, inside part1 (ends at %d)", d.Part2.Start, d.Part1.End)
	}

	return &d, warnings, nil
}

func parsePartition(lineNo int, values []string, warn func(int, string, ...interface{})) (PartitionSpec, error) {
	var spec PartitionSpec

	if len(values) != 4 {
		return spec, malformed(lineNo, "partition record needs start, end, sectors and type, got %d values", len(values))
	}

	nums := make([]uint64, 3)
	for i, raw := range values[:3] {
		text := raw
		if strings.HasSuffix(text, "s") {
			text = strings.TrimSuffix(text, "s")
			warn(lineNo, "sector value %q carries a unit suffix", raw)
		}
		n, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return spec, malformed(lineNo, "invalid sector value %q", raw)
		}
		nums[i] = n
	}
	spec.Start, spec.End, spec.Sectors = nums[0], nums[1], nums[2]

	if spec.End < spec.Start {
		return spec, malformed(lineNo, "end sector %d precedes start sector %d", spec.End, spec.Start)
	}

	token := values[3]
	if code, err := strconv.ParseUint(token, 0, 8); err == nil {
		spec.Format = FormatTypeCode
		spec.TypeCode = uint8(code)
		fs, ok := typeCodes[spec.TypeCode]
		if !ok {
			return spec, malformed(lineNo, "type code 0x%02x (%s) has no known filesystem", spec.TypeCode, token)
		}
		spec.FSType = fs
		return spec, nil
	}

	fs := FSType(strings.ToLower(token))
	if !knownFSTypes[fs] {
		return spec, malformed(lineNo, "unknown filesystem type %q", token)
	}
	if string(fs) != token {
		warn(lineNo, "filesystem type %q normalised to %q", token, fs)
	}
	spec.Format = FormatNamed
	spec.FSType = fs
	return spec, nil
}

func malformed(lineNo int, format string, args ...interface{}) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformedLine, lineNo, fmt.Sprintf(format, args...))
}
