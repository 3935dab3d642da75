// Copyright (c) 2017 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package quotasource

import (
	"context"
	"fmt"
	"net"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/multierr"
)

// quotaDocument is the on-disk shape of one tag's quota row. ID is the
// watcher's scan prefix joined to the bare tag (see quotaDocumentID), so a
// lexicographic range scan over _id actually implements the prefix scan
// Transaction.GetRange promises; the bare tag itself is recovered by
// trimming the prefix back off when a row is read.
type quotaDocument struct {
	ID                 string  `bson:"_id"`
	TotalReadQuota     float64 `bson:"total_read_quota"`
	TotalWriteQuota    float64 `bson:"total_write_quota"`
	ReservedReadQuota  float64 `bson:"reserved_read_quota"`
	ReservedWriteQuota float64 `bson:"reserved_write_quota"`
}

// quotaDocumentID joins the watcher's scan prefix to a bare tag to produce
// the _id a provisioning system must write for that tag's quota row, so
// rangeFilter's prefix scan actually matches it.
func quotaDocumentID(prefix []byte, tag string) string {
	return string(prefix) + tag
}

// rangeFilter bounds a query to every _id that starts with prefix: from
// prefix itself (inclusive) up to the first _id that could not share it
// (exclusive). "\xff" is not a valid UTF-8 continuation byte, so it sorts
// after every string that starts with prefix.
func rangeFilter(prefix []byte) bson.M {
	lower := string(prefix)
	return bson.M{"_id": bson.M{"$gte": lower, "$lt": lower + "\xff"}}
}

// Config describes how to reach the MongoDB replica set that owns the quota
// collection.
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Database   string
	Collection string
}

func (c Config) uri() string {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 27017
	}
	return fmt.Sprintf("mongodb://%s", net.JoinHostPort(host, fmt.Sprint(port)))
}

type mongoSource struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoSource connects to the configured replica set and returns a
// read-only quota Source.
func NewMongoSource(ctx context.Context, cfg Config) (Source, error) {
	clientOpts := options.Client().ApplyURI(cfg.uri())
	if cfg.Username != "" {
		clientOpts = clientOpts.SetAuth(options.Credential{
			AuthMechanism: "SCRAM-SHA-256",
			Username:      cfg.Username,
			Password:      cfg.Password,
		})
	}
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to quota source: %w", err)
	}
	dbName := cfg.Database
	if dbName == "" {
		dbName = "globaltagthrottler"
	}
	collName := cfg.Collection
	if collName == "" {
		collName = "tag_quotas"
	}
	return &mongoSource{
		client: client,
		coll:   client.Database(dbName).Collection(collName),
	}, nil
}

func (s *mongoSource) OpenReadTx(ctx context.Context) (Transaction, error) {
	// Read-only, secondary-preferred: the watcher never needs
	// linearizable freshness, only an eventually-consistent full scan,
	// so it never competes with primary write traffic.
	coll, err := s.coll.Clone(options.Collection().SetReadPreference(readpref.SecondaryPreferred()))
	if err != nil {
		return nil, fmt.Errorf("quota source clone collection: %w", err)
	}
	return &mongoTx{coll: coll}, nil
}

type mongoTx struct {
	coll *mongo.Collection
}

func (tx *mongoTx) GetRange(ctx context.Context, prefix []byte, limit int) ([]KeyValue, error) {
	filter := rangeFilter(prefix)
	findOpts := options.Find().
		SetSort(bson.M{"_id": 1}).
		SetLimit(int64(limit)).
		SetBatchSize(int32(limit))

	cursor, err := tx.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("quota source find: %w", err)
	}

	var docs []quotaDocument
	decodeErr := cursor.All(ctx, &docs)
	closeErr := cursor.Close(ctx)
	if err := multierr.Append(decodeErr, closeErr); err != nil {
		return nil, fmt.Errorf("quota source read: %w", err)
	}

	rows := make([]KeyValue, 0, len(docs))
	for _, d := range docs {
		row, err := rowFromDocument(prefix, d)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// rowFromDocument strips prefix back off a decoded document's _id to
// recover the bare tag, then re-encodes the document as the KeyValue's
// Value so DecodeQuota can round-trip it.
func rowFromDocument(prefix []byte, d quotaDocument) (KeyValue, error) {
	tag := strings.TrimPrefix(d.ID, string(prefix))
	value, err := bson.Marshal(d)
	if err != nil {
		return KeyValue{}, fmt.Errorf("quota source re-encode %q: %w", tag, err)
	}
	return KeyValue{Key: []byte(tag), Value: value}, nil
}

// DecodeQuota round-trips a KeyValue.Value produced by mongoTx.GetRange back
// into the four-field Quota the core understands.
func DecodeQuota(value []byte) (QuotaFields, error) {
	var d quotaDocument
	if err := bson.Unmarshal(value, &d); err != nil {
		return QuotaFields{}, fmt.Errorf("malformed quota value: %w", err)
	}
	return QuotaFields{
		TotalReadQuota:     d.TotalReadQuota,
		TotalWriteQuota:    d.TotalWriteQuota,
		ReservedReadQuota:  d.ReservedReadQuota,
		ReservedWriteQuota: d.ReservedWriteQuota,
	}, nil
}

// QuotaFields mirrors throttler.Quota without importing that package, so
// quotasource has no dependency on the core's domain types; the watcher
// does the conversion.
type QuotaFields struct {
	TotalReadQuota     float64
	TotalWriteQuota    float64
	ReservedReadQuota  float64
	ReservedWriteQuota float64
}
