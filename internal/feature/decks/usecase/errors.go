package usecase

import "errors"

var (
	// ErrDeckNotFound は指定されたデッキが存在しない場合に返されます。
	ErrDeckNotFound = errors.New("deck not found")

	// ErrPersistenceConflict is returned when a write lost a race with a
	// concurrent write of the same deck and the retry also failed.
	ErrPersistenceConflict = errors.New("persistence conflict")

	// ErrInvalidResolution は手動解決の対象インデックスが不正な場合に返されます。
	ErrInvalidResolution = errors.New("invalid manual resolution")
)
