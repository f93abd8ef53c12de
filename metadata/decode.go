// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package metadata

// withTagCollector wraps opts.HandleTag so every tag handed to the decoder
// is also collected into tags, preserving any HandleTag the caller set.
func withTagCollector(opts Options, tags *Tags) Options {
	next := opts.HandleTag
	opts.HandleTag = func(ti TagInfo) error {
		tags.Add(ti)
		if next != nil {
			return next(ti)
		}
		return nil
	}
	return opts
}

// recoverDecodeError turns a panic recovered from the streamReader's
// panic-on-short-read protocol into a regular error. Decode* entry points
// must defer this immediately after calling opts.init(), mirroring the
// recover pattern used throughout this decoder family.
func recoverDecodeError(r any, err error) error {
	if r == nil {
		return err
	}
	if errp, ok := r.(error); ok {
		if isInvalidFormatErrorCandidate(errp) {
			return newInvalidFormatError(errp)
		}
		return errp
	}
	return err
}

// finalDecodeError normalizes the terminal error from a decode pass: the
// sentinel stop errors and a clean EOF are not real failures.
func finalDecodeError(err error, s *streamReader) error {
	if err == nil && s != nil {
		err = s.streamErr()
	}
	if err == nil {
		return nil
	}
	if err == ErrStopWalking || err == errStop {
		return nil
	}
	if isInvalidFormatErrorCandidate(err) {
		return newInvalidFormatError(err)
	}
	return err
}
