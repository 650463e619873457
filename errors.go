package kaiku

import "errors"

var (
	// ErrMissingAsset is reported when a clip refers to an asset that has
	// not been decoded. Such clips are skipped, playback continues.
	ErrMissingAsset = errors.New("asset not decoded")
	// ErrDecode wraps failures to decode an asset. A key that failed to
	// decode stays failed for the rest of the session.
	ErrDecode = errors.New("cannot decode asset")
	// ErrInputUnavailable wraps failures to acquire the input device,
	// including denied permissions.
	ErrInputUnavailable = errors.New("input device unavailable")
)
