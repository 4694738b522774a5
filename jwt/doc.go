// Package jwt signs and checks the access and refresh tokens handed to
// clients. The "knd" claim separates the two so neither can stand in for
// the other. Refresh-token state and rotation live in package refresh.
package jwt
