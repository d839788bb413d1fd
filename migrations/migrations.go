// Package migrations embeds the goose migration scripts so deployments
// and tests run the same schema without a checkout of this directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
