package redis

import (
	"github.com/redbco/redb-broker/pkg/adapter"
)

func init() {
	// Register Redis dialer with the global registry
	adapter.Register(NewDialer())
}
