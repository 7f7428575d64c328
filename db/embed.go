// Package db expõe as migrations SQL embutidas no binário.
package db

import "embed"

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var Migrations embed.FS
