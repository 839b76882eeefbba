// Package mongo implements the medium interface for MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/tarancss/walletboot/lib/store"
)

// Database and collection holding the key material documents.
const (
	Database   = "walletboot"
	Collection = "keys"
)

// Mongo implements a connection to a MongoDB database.
type Mongo struct {
	c   *mgo.Client
	col *mgo.Collection
}

// New returns a Mongo client connection to the specified MongoDB database uri.
func New(uri string) (*Mongo, error) {
	// get a client
	c, err := mgo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}
	// connect client
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	if err = c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	// writes are acknowledged by a majority and journaled before Set returns
	wc := writeconcern.New(writeconcern.WMajority(), writeconcern.J(true))
	col := c.Database(Database).Collection(Collection, options.Collection().SetWriteConcern(wc))

	return &Mongo{c: c, col: col}, nil
}

// Close will close a database connection. Must be called at termination time.
func (m *Mongo) Close() error {
	return m.c.Disconnect(context.Background())
}

// Get loads the value saved under key.
func (m *Mongo) Get(ctx context.Context, key string) ([]byte, error) {
	var e store.Entry

	err := m.col.FindOne(ctx, bson.M{"_id": key}).Decode(&e)
	if errors.Is(err, mgo.ErrNoDocuments) {
		return nil, store.ErrDataNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("could not read %s from db: %w", key, err)
	}

	return e.Value, nil
}

// Set upserts the value saved under key.
func (m *Mongo) Set(ctx context.Context, key string, value []byte) error {
	_, err := m.col.UpdateOne(ctx,
		bson.M{"_id": key}, // filter
		bson.D{ // update
			{
				Key: "$set", Value: bson.D{
					{Key: "value", Value: value},
					{Key: "updated", Value: time.Now().UTC()},
				},
			},
		},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("could not save %s in db: %w", key, err)
	}

	return nil
}

// Exists reports whether a document is saved under key.
func (m *Mongo) Exists(ctx context.Context, key string) (bool, error) {
	n, err := m.col.CountDocuments(ctx, bson.M{"_id": key}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("could not count %s in db: %w", key, err)
	}

	return n > 0, nil
}
