// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "time"

// PermissionFor returns the grant userID holds on the annotation, or "" for
// none. The owner holds write. A private annotation grants nothing to anyone
// else, whatever its share list says.
func (a Annotation) PermissionFor(userID string) string {
	if userID == "" {
		return ""
	}
	if a.UserID == userID {
		return PermissionWrite
	}
	if a.IsPrivate {
		return ""
	}
	for _, s := range a.SharedWith {
		if s.UserID == userID {
			return s.Permission
		}
	}
	return ""
}

func (a Annotation) CanRead(userID string) bool {
	p := a.PermissionFor(userID)
	return p == PermissionRead || p == PermissionWrite
}

func (a Annotation) CanWrite(userID string) bool {
	return a.PermissionFor(userID) == PermissionWrite
}

// Grant upserts a share for userID and makes the annotation visible to its
// share list.
func (a *Annotation) Grant(userID, permission string, at time.Time) {
	a.IsPrivate = false
	for i := range a.SharedWith {
		if a.SharedWith[i].UserID == userID {
			a.SharedWith[i].Permission = permission
			a.SharedWith[i].SharedAt = at
			return
		}
	}
	a.SharedWith = append(a.SharedWith, Share{UserID: userID, Permission: permission, SharedAt: at})
}
