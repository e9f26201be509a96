// Package image loads the boot memory image an external toolchain
// produces: a flat array of big-endian 32-bit words, with word 1 holding
// a pointer to the boot method's pointer. It is a read boundary, not a
// format this repository gets to choose or round-trip.
package image

import (
	"encoding/binary"
	"fmt"
	"io"
)

// BootPointerWord is the fixed word index holding the boot method's
// pointer-to-pointer.
const BootPointerWord = 1

// StackImageWords is how many leading words of a stack image seed
// reset-time stack-RAM slots 0..31.
const StackImageWords = 32

// Image is a parsed memory image: Words is main memory as 32-bit words
// (index, not byte, addressed — callers multiply by 4 for a byte
// address), and BootMethodPtrPtr is the word at BootPointerWord.
type Image struct {
	Words            []uint32
	BootMethodPtrPtr uint32
}

// Load parses r as a whole-file sequence of big-endian 32-bit words.
func Load(r io.Reader) (*Image, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("image: read: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("image: %d bytes is not a whole number of 32-bit words", len(raw))
	}
	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = binary.BigEndian.Uint32(raw[i*4 : i*4+4])
	}
	if len(words) <= BootPointerWord {
		return nil, fmt.Errorf("image: too short to contain the boot pointer word")
	}
	return &Image{Words: words, BootMethodPtrPtr: words[BootPointerWord]}, nil
}

// Bytes returns the image as a big-endian byte slice, the layout a BMB
// slave backing main memory expects.
func (img *Image) Bytes() []byte {
	out := make([]byte, len(img.Words)*4)
	for i, w := range img.Words {
		binary.BigEndian.PutUint32(out[i*4:i*4+4], w)
	}
	return out
}

// StackImage seeds reset-time stack-RAM slots 0..31 from the leading
// words of a separately supplied stack image (distinct from main
// memory: it is the initial constant/configuration-slot contents a
// debugger or test harness primes a core with, not part of the boot
// image proper).
func StackImage(words []uint32) [StackImageWords]uint32 {
	var out [StackImageWords]uint32
	copy(out[:], words)
	return out
}
