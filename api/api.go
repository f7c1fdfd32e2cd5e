// Package api carries the OpenAPI contract for the HTTP adapter.
package api

import _ "embed"

// Spec is the raw OpenAPI document served at /openapi.yaml and verified by
// the adapter's contract test.
//
//go:embed openapi.yaml
var Spec []byte
