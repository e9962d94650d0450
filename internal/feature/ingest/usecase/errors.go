package usecase

import "errors"

var (
	// ErrNoImages は提出フォルダに画像が含まれていない場合に返されます。
	ErrNoImages = errors.New("submission has no images")

	// ErrInvalidMetadata is returned when pilot or match data cannot be read
	// from the submission.
	ErrInvalidMetadata = errors.New("invalid submission metadata")
)
