// Package program handles the .3b program image format.
package program

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/fxamacker/cbor/v2"

	"go.creack.net/threebit/op"
	"go.creack.net/threebit/vm"
)

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("program: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	dm, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("program: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

type Header struct {
	Magic   uint32 `cbor:"1,keyasint"`
	Name    string `cbor:"2,keyasint"`
	Comment string `cbor:"3,keyasint,omitempty"`
}

type Registers struct {
	A uint64 `cbor:"1,keyasint"`
	B uint64 `cbor:"2,keyasint"`
	C uint64 `cbor:"3,keyasint"`
}

// Image is a program along with the initial state of the machine.
type Image struct {
	Header    Header    `cbor:"1,keyasint"`
	Registers Registers `cbor:"2,keyasint"`
	Code      []byte    `cbor:"3,keyasint"`
}

func New(name, comment string, regs Registers, code []byte) *Image {
	return &Image{
		Header: Header{
			Magic:   op.ImageMagic,
			Name:    name,
			Comment: comment,
		},
		Registers: regs,
		Code:      slices.Clone(code),
	}
}

func (img *Image) Validate() error {
	if img.Header.Magic != op.ImageMagic {
		return fmt.Errorf("invalid magic 0x%x", img.Header.Magic)
	}
	if img.Header.Name == "" {
		return fmt.Errorf("missing program name")
	}
	if !op.HeaderFieldsValid(img.Header.Name, img.Header.Comment) {
		return fmt.Errorf("name or comment exceeds maximum length")
	}
	return nil
}

// Encode serializes the image to canonical CBOR.
func (img *Image) Encode() ([]byte, error) {
	if err := img.Validate(); err != nil {
		return nil, fmt.Errorf("invalid image: %w", err)
	}
	buf, err := cborEncMode.Marshal(img)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image: %w", err)
	}
	return buf, nil
}

// Decode deserializes an image produced by Encode.
func Decode(data []byte) (*Image, error) {
	var img Image
	if err := cborDecMode.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("failed to unmarshal image: %w", err)
	}
	if err := img.Validate(); err != nil {
		return nil, fmt.Errorf("invalid image: %w", err)
	}
	return &img, nil
}

// Digest returns the hex encoded SHA-256 of the code.
func (img *Image) Digest() string {
	return Digest(img.Code)
}

func Digest(code []byte) string {
	sum := sha256.Sum256(code)
	return hex.EncodeToString(sum[:])
}

// Config returns the machine configuration described by the image.
func (img *Image) Config(maxSteps int) vm.Config {
	return vm.Config{
		Registers: vm.Registers{
			A: img.Registers.A,
			B: img.Registers.B,
			C: img.Registers.C,
		},
		Program:  slices.Clone(img.Code),
		MaxSteps: maxSteps,
	}
}
