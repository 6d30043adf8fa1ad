package turn

import "errors"

var (
	// ErrStorageUnavailable means no persistence backend could be opened.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrNotReady is returned by store operations invoked before Initialize succeeded.
	ErrNotReady = errors.New("store not ready")
	ErrWriteFailed        = errors.New("write failed")
	ErrTrimFailed         = errors.New("retention trim failed")
	// ErrTranscriptUnavailable means the projector could not read the store.
	ErrTranscriptUnavailable = errors.New("transcript unavailable")
	// ErrAnswerFailed covers transport errors, non-success statuses and
	// replies without text. It is the only error shown to the user.
	ErrAnswerFailed = errors.New("answer failed")

	ErrEmptyContent       = errors.New("empty content")
	ErrUnsupportedContent = errors.New("unsupported content")
	ErrEmptySubmission    = errors.New("empty submission")
)
