// Package authz decides whether the acting identity may mutate a review or
// comment. It is a pure function of the identity, the demo-admin flag, and
// the resource's ownership fields; it performs no I/O.
//
// Rules are evaluated in order, first match wins:
//
//  1. demo admin mode        -> allow
//  2. admin role             -> allow
//  3. user ID matches owner  -> allow
//  4. display name matches the stored author string -> allow (legacy rows)
//  5. email local part is prefixed by the author string -> allow (legacy rows)
//  6. otherwise              -> deny
//
// Rules 4 and 5 exist because rows created before ownership tracking carry
// only a free-text author name. They are spoofable: anyone can set their
// display name to another user's author string. They remain the only owner
// path for legacy rows, so they are kept and documented rather than silently
// dropped; new rows always carry a user ID and match on rule 3.
package authz

import (
	"strings"

	"github.com/reviewhub/go-review-backend/internal/identity"
)

// CanModify reports whether user (with demoAdmin state) may edit or delete a
// resource owned by ownerID and authored under authorName.
//
// An empty authorName never satisfies the legacy name rules; an empty
// ownerID simply means rule 3 cannot match.
func CanModify(user *identity.User, demoAdmin bool, ownerID, authorName string) bool {
	// Demo mode is always treated as full admin, even without an identity.
	if demoAdmin {
		return true
	}
	if user == nil {
		return false
	}
	if user.IsAdmin() {
		return true
	}
	if ownerID != "" && user.ID == ownerID {
		return true
	}
	if authorName == "" {
		return false
	}
	if user.DisplayName() == authorName {
		return true
	}
	if user.Email != "" && strings.HasPrefix(user.Email, authorName) {
		return true
	}
	return false
}

// CanModifyReview is a convenience wrapper naming the review fields.
func CanModifyReview(user *identity.User, demoAdmin bool, reviewOwnerID, reviewAuthor string) bool {
	return CanModify(user, demoAdmin, reviewOwnerID, reviewAuthor)
}

// CanModifyComment is a convenience wrapper naming the comment fields.
func CanModifyComment(user *identity.User, demoAdmin bool, commentOwnerID, commentAuthor string) bool {
	return CanModify(user, demoAdmin, commentOwnerID, commentAuthor)
}
