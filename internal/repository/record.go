package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/liverex/leela-zero-ui/internal/domain/game"
	errs "github.com/liverex/leela-zero-ui/internal/errors"
)

// RecordSink stores a finished game record.
type RecordSink interface {
	Save(ctx context.Context, rec *game.Record) error
}

// Encoder renders a record as game record text.
type Encoder func(rec *game.Record) string

// FileRecordStore writes records to one file. The first Save of a run
// truncates the file; later games are appended as further game trees.
type FileRecordStore struct {
	path   string
	encode Encoder
	log    *zap.SugaredLogger

	mu      sync.Mutex
	written bool
}

func NewFileRecordStore(path string, encode Encoder, log *zap.SugaredLogger) *FileRecordStore {
	return &FileRecordStore{path: path, encode: encode, log: log}
}

func (f *FileRecordStore) Save(_ context.Context, rec *game.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if f.written {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(f.path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open record file %s: %w", f.path, err)
	}
	defer file.Close()

	if _, err := file.WriteString(f.encode(rec)); err != nil {
		return fmt.Errorf("write record file %s: %w", f.path, err)
	}
	f.written = true
	f.log.Infof("game %s written to %s", rec.ID, f.path)
	return nil
}

const (
	recordKeyPrefix = "record:"
	recordIndexKey  = "records"
)

// RedisRecordStore keeps the encoded record under "record:<id>" and the id in
// the "records" list, newest last.
type RedisRecordStore struct {
	redis  redis.Cmdable
	encode Encoder
	ttl    time.Duration
	log    *zap.SugaredLogger
}

func NewRedisRecordStore(client redis.Cmdable, encode Encoder, ttl time.Duration, log *zap.SugaredLogger) *RedisRecordStore {
	return &RedisRecordStore{redis: client, encode: encode, ttl: ttl, log: log}
}

func RecordKey(id string) string {
	return recordKeyPrefix + id
}

func (r *RedisRecordStore) Save(ctx context.Context, rec *game.Record) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, RecordKey(rec.ID), r.encode(rec), r.ttl)
		pipe.RPush(ctx, recordIndexKey, rec.ID)
		return nil
	})
	if err != nil {
		r.log.Errorf("failed to save record %s to redis: %v", rec.ID, err)
		return fmt.Errorf("save record %s to redis: %w", rec.ID, err)
	}
	r.log.Debugw("record saved to redis", "id", rec.ID)
	return nil
}

// Load returns the encoded record stored for id.
func (r *RedisRecordStore) Load(ctx context.Context, id string) (string, error) {
	text, err := r.redis.Get(ctx, RecordKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s", errs.ErrRecordNotFound, id)
	}
	return text, err
}

const recordsCollection = "records"

type recordDocument struct {
	game.Record `bson:",inline"`
	SGF         string `bson:"sgf"`
	Plies       int    `bson:"plies"`
}

// MongoRecordStore archives records with their result for later querying.
type MongoRecordStore struct {
	mongo  *mongo.Database
	encode Encoder
	log    *zap.SugaredLogger
}

func NewMongoRecordStore(db *mongo.Database, encode Encoder, log *zap.SugaredLogger) *MongoRecordStore {
	return &MongoRecordStore{mongo: db, encode: encode, log: log}
}

func (m *MongoRecordStore) Save(ctx context.Context, rec *game.Record) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	doc := recordDocument{Record: *rec, SGF: m.encode(rec), Plies: rec.Plies()}
	_, err := m.mongo.Collection(recordsCollection).InsertOne(ctx, doc)
	if err != nil {
		m.log.Errorf("failed to insert record %s: %v", rec.ID, err)
		return fmt.Errorf("insert record %s: %w", rec.ID, err)
	}
	m.log.Infof("record inserted successfully with id: %s", rec.ID)
	return nil
}

// CountByWinner counts archived games won by winner.
func (m *MongoRecordStore) CountByWinner(ctx context.Context, winner game.Winner) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"result.winner": string(winner)}
	return m.mongo.Collection(recordsCollection).CountDocuments(ctx, filter)
}

// Recent returns up to limit records, newest first.
func (m *MongoRecordStore) Recent(ctx context.Context, limit int64) ([]game.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}}).SetLimit(limit)
	cursor, err := m.mongo.Collection(recordsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []game.Record
	for cursor.Next(ctx) {
		var rec game.Record
		if err := cursor.Decode(&rec); err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	return records, cursor.Err()
}

// RecordSinks saves to every sink and joins the failures.
type RecordSinks []RecordSink

func (s RecordSinks) Save(ctx context.Context, rec *game.Record) error {
	var failures []error
	for _, sink := range s {
		if err := sink.Save(ctx, rec); err != nil {
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}
