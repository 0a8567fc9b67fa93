// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides password hashing and token utilities.

# Passwords

Passwords are hashed with bcrypt before they reach the store:

	hash, err := auth.HashPassword(password)
	err = auth.CheckPassword(hash, candidate) // ErrInvalidCredentials on mismatch

# Access Tokens

Access tokens are HS256 JWTs signed with JWT_SECRET. The subject claim is the
user ID; username and role ride along for logging and UI hints:

	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiresIn)
	token, expiresAt, err := issuer.Issue(user.ID, user.Username, user.Role)
	claims, err := issuer.Parse(token)

Parse only accepts HS256 and requires an expiry. Expired tokens return
ErrExpiredToken, everything else ErrInvalidToken.

# Refresh Tokens

Refresh tokens are random 32-byte (256-bit) secrets, URL-safe base64 encoded:

	token, err := auth.GenerateRefreshToken()

They are stored per user with RefreshTokenTTL (7 days) and rotated on every
refresh.

# IDs

GenerateID returns a random UUID for users, viewer states and annotations.
*/
package auth
