package segment

import "errors"

// ErrNetwork wraps failures of segment retrieval and credential installation.
var ErrNetwork = errors.New("segment network failure")
