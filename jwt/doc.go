// Package jwt signs and verifies the session-ID tokens carried in session
// cookies when cookie signing is enabled.
package jwt
