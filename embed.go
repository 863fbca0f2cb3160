package intelliscript

import _ "embed"

// SchemaSQL is the database schema applied on first start.
//
//go:embed schema.sql
var SchemaSQL []byte

// OpenAPISpec documents the HTTP API.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
