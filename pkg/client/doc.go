/*
Package client is a Go client for the daybreak HTTP API.

It mirrors the server's operations one-to-one and decodes the API's
error envelope into Go errors. Intended for the mobile backend, ops
tooling, and integration tests.
*/
package client
