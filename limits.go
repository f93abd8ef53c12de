// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package heif

import "github.com/go-heif/heif/codec"

// Limits holds the security limits from spec.md 5/6. MaxItems (iinf and
// iloc), MaxExtentsPerItem (iloc) and MaxChildrenPerBox (every container)
// are checked while parsing and fail with a SecurityLimitExceeded sub-kind;
// MaxBoxDepth is checked by parseContainerChildren and fails with
// TooDeeplyNested. MaxImageWidth, MaxImageHeight, MaxMemoryBlock and
// MaxTotalPixels are carried here but are not checked by this package.
type Limits struct {
	// MaxImageWidth and MaxImageHeight bound any single decoded plane.
	MaxImageWidth, MaxImageHeight uint32
	// MaxBoxDepth bounds container nesting (spec.md default: 20).
	MaxBoxDepth int
	// MaxItems bounds the number of iloc/iinf entries (spec.md default: 32768).
	MaxItems int
	// MaxExtentsPerItem bounds per-item iloc extents (spec.md default: 32).
	MaxExtentsPerItem int
	// MaxChildrenPerBox bounds how many child boxes a container may declare
	// (spec.md default: 65536).
	MaxChildrenPerBox int
	// MaxMemoryBlock bounds any single contiguous allocation, in bytes.
	MaxMemoryBlock int64
	// MaxTotalPixels bounds the sum of width*height across every plane
	// decoded for one file.
	MaxTotalPixels uint64
}

// DefaultLimits returns the conservative defaults spec.md 6 documents as
// "implementation" for width/height and total memory, made concrete here.
func DefaultLimits() Limits {
	return Limits{
		MaxImageWidth:     16384,
		MaxImageHeight:    16384,
		MaxBoxDepth:       20,
		MaxItems:          32768,
		MaxExtentsPerItem: 32,
		MaxChildrenPerBox: 65536,
		MaxMemoryBlock:    1 << 30, // 1 GiB
		MaxTotalPixels:    16384 * 16384 * 4,
	}
}

// Context threads the codec registry, security limits, concurrency knobs, and
// a warning sink through a parse or write, replacing the process-wide
// mutable plugin lists the original implementation uses (spec.md 9,
// "Plugin registration") — an explicit value instead of a global.
type Context struct {
	// Limits are the security limits applied while parsing and decoding.
	Limits Limits
	// Codecs is the registry of codec plugins available to decode or encode
	// item and sample payloads.
	Codecs *codec.Registry
	// MaxDecodingThreads bounds the worker pool used to fan grid-tile
	// decoding out; 0 decodes every tile inline (spec.md 5).
	MaxDecodingThreads int
	// Warnf is called for recoverable anomalies (unsupported FullBox
	// version, dropped unknown box, etc.), mirroring the teacher's
	// Options.Warnf hook. If nil, warnings are discarded.
	Warnf func(format string, args ...any)
}

// NewContext returns a Context with default limits, no codecs registered,
// inline tile decoding, and a no-op warning sink.
func NewContext() *Context {
	return &Context{
		Limits: DefaultLimits(),
		Codecs: codec.NewRegistry(),
		Warnf:  func(string, ...any) {},
	}
}

func (c *Context) warnf(format string, args ...any) {
	if c.Warnf != nil {
		c.Warnf(format, args...)
	}
}
