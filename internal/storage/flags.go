package storage

import (
	"flag"
	"os"

	"github.com/xenking/storefront/internal/storage/mongodb"
	"github.com/xenking/storefront/internal/storage/postgres"
)

// RegisterFlags binds cfg to command line flags of the maintenance tools.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.Func("storage", "storage backend: postgres, mongo or memory (default postgres)", func(s string) error {
		c.Driver = Driver(s)
		return nil
	})
	fs.StringVar(&c.PostgresURL, "postgres-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	fs.StringVar(&c.SynchronousCommit, "synchronous-commit", postgres.DefaultSynchronousCommit, "synchronous_commit for transactions")
	fs.StringVar(&c.MongoURL, "mongo-url", "", "MongoDB connection URL (or MONGO_URL env)")
	fs.StringVar(&c.MongoDatabase, "mongo-database", "shop", "MongoDB database name")
	fs.DurationVar(&c.MongoWriteTimeout, "mongo-write-timeout", mongodb.DefaultWriteTimeout, "majority write concern timeout")
}

// ApplyEnv fills unset fields from the platform environment variables.
func (c *Config) ApplyEnv() {
	if c.Driver == "" {
		c.Driver = DriverPostgres
	}
	if c.PostgresURL == "" {
		c.PostgresURL = os.Getenv("DATABASE_URL")
	}
	if c.MongoURL == "" {
		c.MongoURL = os.Getenv("MONGO_URL")
	}
}
