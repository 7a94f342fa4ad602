package burner

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// SignatureOffset is where the MBR keeps the 32-bit disk signature
const SignatureOffset = 0x1B8

// DeviceFile is the raw block device handle the signature patch writes through
type DeviceFile interface {
	io.WriteSeeker
	io.Closer
}

// DeviceOpener opens a raw block device for writing
type DeviceOpener func(path string) (DeviceFile, error)

// OpenRawDevice opens path read-write without truncation
func OpenRawDevice(path string) (DeviceFile, error) {
	return os.OpenFile(path, os.O_RDWR, 0)
}

// PatchSignature writes sig little-endian at the MBR disk signature offset
func PatchSignature(dev io.WriteSeeker, sig uint32) error {
	if _, err := dev.Seek(SignatureOffset, io.SeekStart); err != nil {
		return fmt.Errorf("seek to signature: %w", err)
	}
	if err := binary.Write(dev, binary.LittleEndian, sig); err != nil {
		return fmt.Errorf("write signature: %w", err)
	}
	if s, ok := dev.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			return fmt.Errorf("flush signature: %w", err)
		}
	}
	return nil
}
