package service

import (
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/pathways/internal/persistence"
)

// InMemoryPersistence keeps pathways and their history in process memory.
func InMemoryPersistence() persistence.Persistence {
	return persistence.Persistence{
		Pathways: persistence.NewInMemoryStore(),
		Events:   persistence.NewInMemoryEventStore(),
	}
}

// SQLitePersistence stores pathways and history in db, which must use a
// SQLite driver.
func SQLitePersistence(db *sql.DB) (persistence.Persistence, error) {
	pathways, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return persistence.Persistence{}, err
	}
	events, err := persistence.NewSQLiteEventStore(db)
	if err != nil {
		return persistence.Persistence{}, err
	}
	return persistence.Persistence{Pathways: pathways, Events: events}, nil
}

// PostgresPersistence stores pathways and history in db, which must use a
// PostgreSQL driver such as pgx's stdlib adapter.
func PostgresPersistence(db *sql.DB) (persistence.Persistence, error) {
	pathways, err := persistence.NewPostgresStore(db)
	if err != nil {
		return persistence.Persistence{}, err
	}
	events, err := persistence.NewPostgresEventStore(db)
	if err != nil {
		return persistence.Persistence{}, err
	}
	return persistence.Persistence{Pathways: pathways, Events: events}, nil
}

// RedisPersistence stores pathways and history under prefix.
func RedisPersistence(client *redis.Client, prefix string) persistence.Persistence {
	return persistence.Persistence{
		Pathways: persistence.NewRedisStore(client, prefix),
		Events:   persistence.NewRedisEventStore(client, prefix),
	}
}

// MongoPersistence stores pathways and history in the named database.
func MongoPersistence(client *mongo.Client, dbName string) persistence.Persistence {
	return persistence.Persistence{
		Pathways: persistence.NewMongoStore(client, dbName, ""),
		Events:   persistence.NewMongoEventStore(client, dbName, ""),
	}
}
