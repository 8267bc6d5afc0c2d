package npysink

import (
	"fmt"
	"os"
)

// npy file header must be a multiple of 64 bytes
const headerUnits = 64

// shapeDigits is the room reserved in the header for the record count.
const shapeDigits = 10

// appendableNPY writes records of one fixed dtype to an *.npy file that can be
// extended after it is written: the header's shape is rewritten on every append.
type appendableNPY struct {
	file         *os.File
	dtype        string
	shapePtr     int
	itemsWritten int
}

var npyMagic = []byte{0x93, 'N', 'U', 'M', 'P', 'Y', 0x01, 0x00}

// createAppendableNPY creates filename with an empty array of dtype.
func createAppendableNPY(filename, dtype string) (*appendableNPY, error) {
	fp, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	an := &appendableNPY{file: fp, dtype: dtype}
	if _, err := fp.Write(an.header()); err != nil {
		fp.Close()
		return nil, err
	}
	return an, nil
}

func (an *appendableNPY) header() []byte {
	const preheaderSize = 10 // magic plus the 2-byte header length
	header := append([]byte{}, npyMagic...)
	header = append(header, 0, 0)
	header = append(header, []byte("{'descr': ")...)
	header = append(header, []byte(an.dtype)...)
	header = append(header, []byte(", 'fortran_order': False, 'shape': (")...)
	an.shapePtr = len(header)
	header = append(header, []byte(fmt.Sprintf("%-*d,), }", shapeDigits, 0))...)

	// Header length goes into bytes 8-9, little-endian, so that the total is a multiple of 64 bytes.
	nunits := (len(header) + headerUnits) / headerUnits
	headerSize := nunits*headerUnits - preheaderSize
	header[8] = byte(headerSize % 256)
	header[9] = byte(headerSize / 256)

	// Pad with spaces plus one newline to the promised size.
	for len(header) < headerSize+preheaderSize-1 {
		header = append(header, ' ')
	}
	return append(header, '\n')
}

// Append writes the encoded records and updates the header's record count.
func (an *appendableNPY) Append(records [][]byte) error {
	for _, r := range records {
		if _, err := an.file.Write(r); err != nil {
			return err
		}
	}
	an.itemsWritten += len(records)
	shape := []byte(fmt.Sprintf("%-*d", shapeDigits, an.itemsWritten))
	if _, err := an.file.WriteAt(shape, int64(an.shapePtr)); err != nil {
		return err
	}
	return nil
}

// Len returns the number of records written so far.
func (an *appendableNPY) Len() int {
	return an.itemsWritten
}

func (an *appendableNPY) Close() error {
	return an.file.Close()
}
