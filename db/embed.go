// Package db embeds the storefront PostgreSQL schema.
package db

import _ "embed"

// Schema creates the products, users, coupons and orders tables. It is
// idempotent and applied on every start.
//
//go:embed migrations/001_schema.sql
var Schema string
