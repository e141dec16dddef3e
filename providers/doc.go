// Package providers contains the shared OAuth2 authorization-code
// implementation and the platform packages built on it.
package providers
