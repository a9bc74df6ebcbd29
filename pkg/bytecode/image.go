package bytecode

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ImageVersion is the current program image format version.
// Increment when making incompatible changes to the format.
const ImageVersion uint16 = 1

// ImageMagic identifies program images: "NBC" (Noodle ByteCode).
const ImageMagic = "NBC"

// programImage is the CBOR envelope of a program. Each function body is
// the concatenated instruction encoding, so images share the instruction
// wire format.
type programImage struct {
	Magic     string            `cbor:"1,keyasint"`
	Version   uint16            `cbor:"2,keyasint"`
	Entry     string            `cbor:"3,keyasint"`
	Functions map[string][]byte `cbor:"4,keyasint"`
}

var imageEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	imageEncMode = em
}

// MarshalImage serializes a program to a deterministic CBOR image.
func MarshalImage(p *Program) ([]byte, error) {
	img := programImage{
		Magic:     ImageMagic,
		Version:   ImageVersion,
		Entry:     p.Entry,
		Functions: make(map[string][]byte, len(p.Functions)),
	}
	for name, code := range p.Functions {
		body, err := EncodeInstructions(code)
		if err != nil {
			return nil, fmt.Errorf("bytecode: encode %s: %w", name, err)
		}
		img.Functions[name] = body
	}
	return imageEncMode.Marshal(img)
}

// UnmarshalImage decodes a program image.
func UnmarshalImage(data []byte) (*Program, error) {
	var img programImage
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("%w: unmarshal image: %v", ErrEncoding, err)
	}
	if img.Magic != ImageMagic {
		return nil, encodingErrorf("invalid image magic: expected %q, got %q", ImageMagic, img.Magic)
	}
	if img.Version > ImageVersion {
		return nil, encodingErrorf("image version %d is newer than supported version %d", img.Version, ImageVersion)
	}

	p := &Program{Entry: img.Entry, Functions: make(map[string][]Instruction, len(img.Functions))}
	if p.Entry == "" {
		p.Entry = DefaultEntry
	}
	for name, body := range img.Functions {
		code, err := DecodeInstructions(body)
		if err != nil {
			return nil, fmt.Errorf("bytecode: decode %s: %w", name, err)
		}
		if code == nil {
			code = []Instruction{}
		}
		p.Functions[name] = code
	}
	return p, nil
}
