//go:build !cgo
// +build !cgo

package snapshot

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

func open(path string) (*sqlx.DB, error) {
	return nil, fmt.Errorf("%s: sqlite snapshots need a cgo-enabled build", path)
}
