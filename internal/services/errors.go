// Package services defines the business logic for reviews, comments, and
// chat. This file centralizes common service-level error values so that they
// can be consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the
// handler layer.
//
// Note the split the error design rests on: transient remote unavailability
// is never surfaced through these errors — it is absorbed by the local
// fallback tier and reported via the record's Source tag. The sentinels below
// cover logical failures (missing records, rejected permissions, invalid
// input) that no fallback can repair.
package services

import "errors"

// Review-related errors.
var (
	// ErrReviewNotFound indicates that the requested review does not exist in
	// either tier.
	ErrReviewNotFound = errors.New("review not found")

	// ErrCommentNotFound indicates that the requested comment does not exist
	// in the tier its identifiers route to.
	ErrCommentNotFound = errors.New("comment not found")

	// ErrInvalidRating is returned when a review rating falls outside [1,5].
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrLocalEditUnsupported is returned when an edit targets a device-local
	// record. Edits are remote-only; a record created offline has no remote
	// row to patch.
	ErrLocalEditUnsupported = errors.New("device-local records cannot be edited")
)

// Chat-related errors.
var (
	// ErrRoomNotFound indicates that the requested chat room does not exist.
	ErrRoomNotFound = errors.New("chat room not found")

	// ErrEmptyRoomName is returned when a room is created without a name.
	ErrEmptyRoomName = errors.New("room name is empty")

	// ErrEmptyMessage is returned when a chat message has no content.
	ErrEmptyMessage = errors.New("message content is empty")
)

// Shared errors.
var (
	// ErrForbidden indicates the acting identity may not mutate the resource.
	ErrForbidden = errors.New("not allowed to modify this resource")

	// ErrStorageUnavailable indicates that the remote backend failed AND the
	// device-local fallback refused the write. There is no further tier.
	ErrStorageUnavailable = errors.New("no storage tier available")
)
