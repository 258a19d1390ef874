package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ridechat/pkg/logger"
)

type Migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, db *mongo.Database) error
}

type Migrator struct {
	db              *mongo.Database
	chatsCollection string
	migrations      []Migration
	logger          *logger.Logger
}

func NewMigrator(db *mongo.Database, chatsCollection string, log *logger.Logger) *Migrator {
	if log == nil {
		log = logger.NewNop()
	}
	m := &Migrator{
		db:              db,
		chatsCollection: chatsCollection,
		logger:          log,
	}
	m.migrations = m.getMigrations()
	return m
}

func (m *Migrator) Up(ctx context.Context) error {
	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if migration.Version <= currentVersion {
			continue
		}

		m.logger.Infof("Running migration %d: %s", migration.Version, migration.Description)

		if err := migration.Up(ctx, m.db); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		if err := m.updateVersion(ctx, migration.Version); err != nil {
			return fmt.Errorf("failed to update migration version: %w", err)
		}
	}

	return nil
}

func (m *Migrator) getCurrentVersion(ctx context.Context) (int, error) {
	var result struct {
		Version int `bson:"version"`
	}

	err := m.db.Collection("migrations").FindOne(ctx, bson.D{}).Decode(&result)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, nil
		}
		return 0, err
	}

	return result.Version, nil
}

func (m *Migrator) updateVersion(ctx context.Context, version int) error {
	_, err := m.db.Collection("migrations").ReplaceOne(
		ctx,
		bson.D{},
		bson.D{{Key: "version", Value: version}, {Key: "updated_at", Value: time.Now()}},
		options.Replace().SetUpsert(true),
	)

	return err
}

func (m *Migrator) getMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create chats collection with participant indexes",
			Up:          m.createChatsIndexes,
		},
	}
}

func (m *Migrator) createChatsIndexes(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection(m.chatsCollection)

	indexes := []mongo.IndexModel{
		{
			// One chat per rider, driver and ride.
			Keys: bson.D{
				{Key: "rider_id", Value: 1},
				{Key: "driver_id", Value: 1},
				{Key: "ride_id", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("chat_participants_ride"),
		},
		{
			Keys:    bson.D{{Key: "rider_id", Value: 1}, {Key: "last_message_at", Value: -1}},
			Options: options.Index().SetName("chat_rider_recent"),
		},
		{
			Keys:    bson.D{{Key: "driver_id", Value: 1}, {Key: "last_message_at", Value: -1}},
			Options: options.Index().SetName("chat_driver_recent"),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
