// Package db carries the SQL migrations applied to the record store.
package db

import _ "embed"

//go:embed migrations/001_init.sql
var InitSQL string
