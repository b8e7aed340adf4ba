// Package mongodb implements the repository on MongoDB, used by cloud
// deployments.
package mongodb

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"
)

const (
	SuitesCollection    = "suites"     // suite ticket snapshots, one per corp
	CorpAuthsCollection = "corp_auths" // corp authorization grants
	UsersCollection     = "ding_users" // assembled identity records
)

// Connect opens the MongoDB client, verifies the connection and returns the
// database handle plus a disconnect func.
func Connect(ctx context.Context, uri, dbName string) (*mongo.Database, func(context.Context) error, error) {
	log.Info().Str("db", dbName).Msg("connecting to mongodb")

	opts := options.Client().ApplyURI(uri)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetMonitor(otelmongo.NewMonitor())

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}

	return client.Database(dbName), client.Disconnect, nil
}
