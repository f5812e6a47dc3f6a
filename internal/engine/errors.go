/*
PURPOSE:
  Sentinel errors for the unrecoverable pipeline failures. Recoverable
  conditions (short phases, low-quality fits) are model.Exclusion records,
  never errors.

REQUIREMENTS:
  User-specified:
  - A chamber's fatal error must not abort the other chambers.

  Implementation-discovered:
  - The runner classifies failures with errors.Is, so these must be
    stable sentinels wrapped with context, not ad-hoc strings.

ARCHITECTURE INTEGRATION:
  - Raised by: normalize, background, rate stages
  - Checked by: internal/engine/runner.go

ERROR HANDLING:
  - This file is the error handling design.

IMPLEMENTATION RULES:
  - Wrap with fmt.Errorf("...: %w", Err...) so callers keep errors.Is.

USAGE:
  if errors.Is(err, engine.ErrMalformedTimeseries) { ... }

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/engine/runner.go

MAINTENANCE:
  - Add a sentinel only for genuinely fatal per-chamber conditions.
*/

package engine

import "errors"

var (
	// ErrMalformedTimeseries marks clock anomalies the normalizer cannot
	// repair (backwards jumps beyond tolerance, e.g. a clock reset).
	ErrMalformedTimeseries = errors.New("malformed timeseries")

	// ErrMissingBackgroundTest marks a requested background correction
	// without the required pre- or post-test data.
	ErrMissingBackgroundTest = errors.New("missing background test")

	// ErrInvalidChamberGeometry marks a chamber whose declared volume does
	// not exceed the animal volume.
	ErrInvalidChamberGeometry = errors.New("invalid chamber geometry")
)
