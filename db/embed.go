// Package db provides the embedded schema for the postgres state store.
package db

import _ "embed"

// Schema contains the DDL for the key-value state table.
//
//go:embed migrations/001_schema.sql
var Schema string
