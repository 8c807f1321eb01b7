//go:build !sqlite
// +build !sqlite

package storage

import (
	"errors"

	logx "ontime/pkg/logx"
)

func openSQLite(Config, logx.Logger) (Store, error) {
	return nil, errors.New("sqlite storage not compiled in (build with -tags sqlite)")
}
