// Package common contains shared constants and sentinel errors used across
// WinCloud components. Callers should use errors.Is to match the sentinels.
package common

// ClientVersion is reported to the server during authentication.
const ClientVersion = "1.0.0"

// AuthScheme is the authorization scheme expected by the archive server.
const AuthScheme = "Bearer"
