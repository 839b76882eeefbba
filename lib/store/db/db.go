// Package db implements the opening and graceful closing of persistence media.
package db

import (
	"errors"
	"fmt"

	"github.com/tarancss/walletboot/lib/store"
	"github.com/tarancss/walletboot/lib/store/file"
	"github.com/tarancss/walletboot/lib/store/memory"
	"github.com/tarancss/walletboot/lib/store/mongo"
	"github.com/tarancss/walletboot/lib/store/postgres"
	"github.com/tarancss/walletboot/lib/store/redis"
)

// Medium types accepted by New.
const (
	MEMORY   string = "memory"
	FILE     string = "file"
	MONGODB  string = "mongodb"
	POSTGRES string = "postgresql"
	REDIS    string = "redis"
)

// ErrUnknownType is returned by New for an unsupported medium type.
var ErrUnknownType = errors.New("unknown store type")

// New returns a new medium according to the options (medium type) connected to connection.
func New(options, connection string) (store.Medium, error) {
	switch options {
	case MEMORY:
		return memory.New(), nil
	case FILE:
		return file.New(connection)
	case MONGODB:
		return mongo.New(connection)
	case POSTGRES:
		return postgres.New(connection)
	case REDIS:
		return redis.New(connection)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownType, options)
}

// Close gracefully closes the medium.
func Close(m store.Medium) error {
	if m == nil {
		return nil
	}

	return m.Close()
}
