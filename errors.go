// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package heif

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the broad category of a failure, per spec.md 7.
//
//go:generate stringer -type=Kind
type Kind int

const (
	// Ok is the zero value; never attached to a real error.
	Ok Kind = iota
	// InvalidInput covers malformed or self-inconsistent boxes.
	InvalidInput
	// Unsupported covers recognized-but-not-implemented combinations (e.g.
	// an unci tile grid wider than 1x1, or an unsupported FullBox version).
	Unsupported
	// UsageError covers caller misuse of the public API.
	UsageError
	// MemoryAllocation covers security-limit or allocation failures.
	MemoryAllocation
	// DecoderPlugin covers failures surfaced by a codec.Decoder.
	DecoderPlugin
	// EncoderPlugin covers failures surfaced by a codec.Encoder.
	EncoderPlugin
	// ColorProfile covers NCLX/ICC inconsistencies.
	ColorProfile
	// EndOfSequence is a sentinel, not a fault: the track iterator has no
	// more samples.
	EndOfSequence
)

// SubKind enumerates concrete failure sites within a Kind.
//
//go:generate stringer -type=SubKind
type SubKind int

const (
	SubKindNone SubKind = iota
	SubKindTruncatedBox
	SubKindUnknownBoxVersion
	SubKindMissingRequiredBox
	SubKindBoxSizeInconsistent
	SubKindTooDeeplyNested
	SubKindReferenceCycle
	SubKindNonexistentItemReferenced
	SubKindPrimaryItemMissing
	SubKindPrimaryItemIsAuxiliary
	SubKindGridTileCountMismatch
	SubKindGridChromaMismatch
	SubKindInvalidPropertyIndex
	SubKindInvalidCleanAperture
	SubKindPixiDisagreement
	SubKindMissingCodecConfiguration
	SubKindUnsupportedCodec
	SubKindUnsupportedConstructionMethod
	SubKindUnsupportedUncompressedLayout
	SubKindSecurityLimitExceeded
	SubKindSampleTableInconsistent
	SubKindExtentOutOfRange
	SubKindInvalidBrand
	SubKindItemNotFound
	SubKindUnsupportedVariant
)

// Error is the (kind, sub-kind, message) triple spec.md 7 requires every
// fallible operation to return instead of throwing.
type Error struct {
	Kind    Kind
	SubKind SubKind
	Msg     string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap exposes the wrapped low-level cause, if any, to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

func (k Kind) String() string {
	switch k {
	case Ok:
		return "Ok"
	case InvalidInput:
		return "InvalidInput"
	case Unsupported:
		return "Unsupported"
	case UsageError:
		return "UsageError"
	case MemoryAllocation:
		return "MemoryAllocation"
	case DecoderPlugin:
		return "DecoderPlugin"
	case EncoderPlugin:
		return "EncoderPlugin"
	case ColorProfile:
		return "ColorProfile"
	case EndOfSequence:
		return "EndOfSequence"
	default:
		return "Unknown"
	}
}

// newError builds an *Error with a formatted message.
func newError(kind Kind, sub SubKind, format string, args ...any) *Error {
	return &Error{Kind: kind, SubKind: sub, Msg: fmt.Sprintf(format, args...)}
}

// wrapErrorf wraps a lower-level cause (typically from bitio or an io.Reader)
// with box-path context, using github.com/pkg/errors so the original stack
// is preserved without changing Kind/SubKind, per spec.md 7 ("container
// parsers propagate child errors upward unchanged").
func wrapErrorf(cause error, kind Kind, sub SubKind, format string, args ...any) *Error {
	return &Error{Kind: kind, SubKind: sub, Msg: fmt.Sprintf(format, args...), cause: errors.WithStack(cause)}
}

// IsEndOfSequence reports whether err is the EndOfSequence sentinel.
func IsEndOfSequence(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == EndOfSequence
	}
	return false
}

// ErrEndOfSequence is returned by SampleIterator.DecodeNextImageSample and
// SampleIterator.GetNextRawSequenceSample once every sample has been consumed.
var ErrEndOfSequence = &Error{Kind: EndOfSequence, SubKind: SubKindNone, Msg: "no more samples"}
