package postgres

import (
	"github.com/redbco/redb-broker/pkg/adapter"
)

func init() {
	adapter.Register(NewDialer())
}
