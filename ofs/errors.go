package ofs

import "errors"

var (
	// ErrTruncatedImage means the image holds fewer sectors than the scan window needs
	ErrTruncatedImage = errors.New("truncated image")

	// ErrInvalidWindow is returned for a negative or inverted scan window
	ErrInvalidWindow = errors.New("invalid scan window")

	// ErrIndexOutOfRange is returned for sector references outside the store
	ErrIndexOutOfRange = errors.New("sector index out of range")

	// ErrNotHeader means a referenced sector does not carry the header type tag
	ErrNotHeader = errors.New("not a header block")

	// ErrNotData means a sector does not carry the data type tag
	ErrNotData = errors.New("not a data block")

	// ErrBadSequence is returned for data blocks whose sequence number cannot
	// belong to a file on this volume
	ErrBadSequence = errors.New("bad sequence number")

	// ErrUnresolvedParentChain means a parent walk hit the depth bound or a cycle
	ErrUnresolvedParentChain = errors.New("unresolved parent chain")
)
