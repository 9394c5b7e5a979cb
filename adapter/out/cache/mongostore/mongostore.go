// Package mongostore adapts go.mongodb.org/mongo-driver to the cache
// core's DistributedStore port: a single collection with a TTL index on
// expires_at, grounded on the teacher's adapter/out/mongodb usage.
package mongostore

import (
	"context"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"hybridcache/core/port/out"
)

// document is the collection's schema: _id is the cache key.
type document struct {
	ID        string     `bson:"_id"`
	Value     []byte     `bson:"value"`
	IsNull    bool       `bson:"is_null"`
	ExpiresAt *time.Time `bson:"expires_at,omitempty"`
}

// Store is a DistributedStore backed by a single MongoDB collection.
type Store struct {
	collection *mongo.Collection
}

// New builds a Store over collection.
func New(collection *mongo.Collection) *Store {
	return &Store{collection: collection}
}

// Ping verifies connectivity, used by the admin surface's /ready probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.collection.Database().Client().Ping(ctx, nil)
}

// EnsureIndexes creates the TTL index on expires_at so Mongo expires
// stale entries server-side, mirroring the Redis/Postgres adapters'
// lazy expiry checks with an active one instead.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0).SetSparse(true),
	})
	return err
}

func notExpiredFilter(key string) bson.M {
	return bson.M{
		"_id": key,
		"$or": []bson.M{
			{"expires_at": bson.M{"$exists": false}},
			{"expires_at": nil},
			{"expires_at": bson.M{"$gt": time.Now()}},
		},
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, bool, error) {
	var doc document
	err := s.collection.FindOne(ctx, notExpiredFilter(key)).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, false, false, nil
	}
	if err != nil {
		return nil, false, false, err
	}
	return doc.Value, true, doc.IsNull, nil
}

func (s *Store) GetMany(ctx context.Context, keys []string) (map[string]out.StoredValue, error) {
	if len(keys) == 0 {
		return map[string]out.StoredValue{}, nil
	}
	filter := bson.M{
		"_id": bson.M{"$in": keys},
		"$or": []bson.M{
			{"expires_at": bson.M{"$exists": false}},
			{"expires_at": nil},
			{"expires_at": bson.M{"$gt": time.Now()}},
		},
	}
	cursor, err := s.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	result := make(map[string]out.StoredValue, len(keys))
	for cursor.Next(ctx) {
		var doc document
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		result[doc.ID] = out.StoredValue{Value: doc.Value, IsNull: doc.IsNull, ExpiresAt: doc.ExpiresAt}
	}
	return result, cursor.Err()
}

func expiresAtFromTTL(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := time.Now().Add(ttl)
	return &t
}

func (s *Store) Set(ctx context.Context, key string, value []byte, isNull bool, ttl time.Duration, onlyIfAbsent, onlyIfPresent bool) (out.ChangeResult, error) {
	expiresAt := expiresAtFromTTL(ttl)
	doc := document{ID: key, Value: value, IsNull: isNull, ExpiresAt: expiresAt}

	switch {
	case onlyIfAbsent:
		_, err := s.collection.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return out.ChangeResult{Changed: false}, nil
		}
		if err != nil {
			return out.ChangeResult{}, err
		}
		return out.ChangeResult{Changed: true, ExpiresAt: expiresAt}, nil
	case onlyIfPresent:
		res, err := s.collection.UpdateByID(ctx, key, bson.M{"$set": bson.M{"value": value, "is_null": isNull, "expires_at": expiresAt}})
		if err != nil {
			return out.ChangeResult{}, err
		}
		return out.ChangeResult{Changed: res.MatchedCount > 0, ExpiresAt: expiresAt}, nil
	default:
		opts := options.Replace().SetUpsert(true)
		_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, opts)
		if err != nil {
			return out.ChangeResult{}, err
		}
		return out.ChangeResult{Changed: true, ExpiresAt: expiresAt}, nil
	}
}

func (s *Store) ReplaceIfEqual(ctx context.Context, key string, expected, value []byte, ttl time.Duration) (out.ChangeResult, error) {
	expiresAt := expiresAtFromTTL(ttl)
	filter := bson.M{"_id": key, "is_null": false, "value": expected}
	res, err := s.collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"value": value, "expires_at": expiresAt}})
	if err != nil {
		return out.ChangeResult{}, err
	}
	return out.ChangeResult{Changed: res.MatchedCount > 0, ExpiresAt: expiresAt}, nil
}

func (s *Store) Remove(ctx context.Context, key string) (out.ChangeResult, error) {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return out.ChangeResult{}, err
	}
	return out.ChangeResult{Changed: res.DeletedCount > 0, Count: int(res.DeletedCount)}, nil
}

func (s *Store) RemoveIfEqual(ctx context.Context, key string, expected []byte) (out.ChangeResult, error) {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": key, "is_null": false, "value": expected})
	if err != nil {
		return out.ChangeResult{}, err
	}
	return out.ChangeResult{Changed: res.DeletedCount > 0}, nil
}

func (s *Store) RemoveMany(ctx context.Context, keys []string) (out.ChangeResult, error) {
	if len(keys) == 0 {
		return out.ChangeResult{}, nil
	}
	res, err := s.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return out.ChangeResult{}, err
	}
	return out.ChangeResult{Changed: res.DeletedCount > 0, Count: int(res.DeletedCount)}, nil
}

func (s *Store) RemoveByPrefix(ctx context.Context, prefix string) (out.ChangeResult, error) {
	res, err := s.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$regex": "^" + regexQuoteMeta(prefix)}})
	if err != nil {
		return out.ChangeResult{}, err
	}
	return out.ChangeResult{Changed: res.DeletedCount > 0, Count: int(res.DeletedCount)}, nil
}

func (s *Store) RemoveAll(ctx context.Context) (out.ChangeResult, error) {
	res, err := s.collection.DeleteMany(ctx, bson.M{})
	if err != nil {
		return out.ChangeResult{}, err
	}
	return out.ChangeResult{Changed: res.DeletedCount > 0, Count: int(res.DeletedCount)}, nil
}

// regexQuoteMeta escapes Mongo regex metacharacters in a literal prefix
// match; avoids pulling in the full regexp package for one call site.
func regexQuoteMeta(s string) string {
	special := `\.+*?()|[]{}^$`
	out := make([]byte, 0, len(s)*2)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if containsByte(special, c) {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}

func containsByte(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
}

// loadForUpdate reads the current document for a read-modify-write
// cycle. Unlike the Redis/Postgres adapters there is no explicit lock:
// a single document ReplaceOne is already atomic at the storage engine
// level, so the only race window is between this read and that write,
// acceptable for the counter/list semantics this adapter implements.
func (s *Store) loadForUpdate(ctx context.Context, key string) (document, bool, error) {
	var doc document
	err := s.collection.FindOne(ctx, notExpiredFilter(key)).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return document{}, false, nil
	}
	if err != nil {
		return document{}, false, err
	}
	return doc, true, nil
}

func (s *Store) Increment(ctx context.Context, key string, delta int64, ttl time.Duration, hasTTL bool) (int64, out.ChangeResult, error) {
	doc, found, err := s.loadForUpdate(ctx, key)
	if err != nil {
		return 0, out.ChangeResult{}, err
	}
	var current int64
	if found && !doc.IsNull {
		current, _ = strconv.ParseInt(string(doc.Value), 10, 64)
	}
	newValue := current + delta

	expiresAt := doc.ExpiresAt
	if hasTTL {
		if ttl <= 0 {
			if _, err := s.Remove(ctx, key); err != nil {
				return 0, out.ChangeResult{}, err
			}
			return newValue, out.ChangeResult{Changed: true}, nil
		}
		expiresAt = expiresAtFromTTL(ttl)
	}

	opts := options.Replace().SetUpsert(true)
	newDoc := document{ID: key, Value: []byte(strconv.FormatInt(newValue, 10)), ExpiresAt: expiresAt}
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": key}, newDoc, opts); err != nil {
		return 0, out.ChangeResult{}, err
	}
	return newValue, out.ChangeResult{Changed: true, ExpiresAt: expiresAt}, nil
}

func (s *Store) IncrementFloat(ctx context.Context, key string, delta float64, ttl time.Duration, hasTTL bool) (float64, out.ChangeResult, error) {
	doc, found, err := s.loadForUpdate(ctx, key)
	if err != nil {
		return 0, out.ChangeResult{}, err
	}
	var current float64
	if found && !doc.IsNull {
		current, _ = strconv.ParseFloat(string(doc.Value), 64)
	}
	newValue := current + delta

	expiresAt := doc.ExpiresAt
	if hasTTL {
		if ttl <= 0 {
			if _, err := s.Remove(ctx, key); err != nil {
				return 0, out.ChangeResult{}, err
			}
			return newValue, out.ChangeResult{Changed: true}, nil
		}
		expiresAt = expiresAtFromTTL(ttl)
	}

	opts := options.Replace().SetUpsert(true)
	newDoc := document{ID: key, Value: []byte(strconv.FormatFloat(newValue, 'g', -1, 64)), ExpiresAt: expiresAt}
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": key}, newDoc, opts); err != nil {
		return 0, out.ChangeResult{}, err
	}
	return newValue, out.ChangeResult{Changed: true, ExpiresAt: expiresAt}, nil
}

func (s *Store) setIfCompare(ctx context.Context, key string, value float64, ttl time.Duration, better func(current, candidate float64) bool) (float64, out.ChangeResult, error) {
	doc, found, err := s.loadForUpdate(ctx, key)
	if err != nil {
		return 0, out.ChangeResult{}, err
	}
	var current float64
	hadCurrent := found && !doc.IsNull
	if hadCurrent {
		current, _ = strconv.ParseFloat(string(doc.Value), 64)
	}
	if hadCurrent && !better(current, value) {
		return 0, out.ChangeResult{Changed: false}, nil
	}

	var diff float64
	if hadCurrent {
		diff = value - current
	} else {
		diff = value
	}

	expiresAt := expiresAtFromTTL(ttl)
	opts := options.Replace().SetUpsert(true)
	newDoc := document{ID: key, Value: []byte(strconv.FormatFloat(value, 'g', -1, 64)), ExpiresAt: expiresAt}
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": key}, newDoc, opts); err != nil {
		return 0, out.ChangeResult{}, err
	}
	return diff, out.ChangeResult{Changed: true, ExpiresAt: expiresAt}, nil
}

func (s *Store) SetIfHigher(ctx context.Context, key string, value float64, ttl time.Duration) (float64, out.ChangeResult, error) {
	return s.setIfCompare(ctx, key, value, ttl, func(current, candidate float64) bool { return candidate > current })
}

func (s *Store) SetIfLower(ctx context.Context, key string, value float64, ttl time.Duration) (float64, out.ChangeResult, error) {
	return s.setIfCompare(ctx, key, value, ttl, func(current, candidate float64) bool { return candidate < current })
}

func decodeListBlob(data []byte) [][]byte {
	var items [][]byte
	for len(data) >= 4 {
		n := int(data[0])<<24 | int(data[1])<<16 | int(data[2])<<8 | int(data[3])
		data = data[4:]
		if len(data) < n {
			break
		}
		items = append(items, data[:n])
		data = data[n:]
	}
	return items
}

func encodeListBlob(items [][]byte) []byte {
	var out []byte
	for _, item := range items {
		n := len(item)
		out = append(out, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
		out = append(out, item...)
	}
	return out
}

func containsItem(items [][]byte, target []byte) bool {
	for _, item := range items {
		if string(item) == string(target) {
			return true
		}
	}
	return false
}

func (s *Store) ListAdd(ctx context.Context, key string, items [][]byte, ttl time.Duration) (int, out.ChangeResult, error) {
	doc, found, err := s.loadForUpdate(ctx, key)
	if err != nil {
		return 0, out.ChangeResult{}, err
	}
	var existing [][]byte
	if found && !doc.IsNull {
		existing = decodeListBlob(doc.Value)
	}
	added := 0
	for _, item := range items {
		if !containsItem(existing, item) {
			existing = append(existing, item)
			added++
		}
	}

	expiresAt := doc.ExpiresAt
	if ttl > 0 {
		expiresAt = expiresAtFromTTL(ttl)
	}

	opts := options.Replace().SetUpsert(true)
	newDoc := document{ID: key, Value: encodeListBlob(existing), ExpiresAt: expiresAt}
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": key}, newDoc, opts); err != nil {
		return 0, out.ChangeResult{}, err
	}
	return added, out.ChangeResult{Changed: added > 0, ExpiresAt: expiresAt}, nil
}

func (s *Store) ListRemove(ctx context.Context, key string, items [][]byte) (int, out.ChangeResult, error) {
	doc, found, err := s.loadForUpdate(ctx, key)
	if err != nil {
		return 0, out.ChangeResult{}, err
	}
	if !found || doc.IsNull {
		return 0, out.ChangeResult{}, nil
	}
	existing := decodeListBlob(doc.Value)
	removed := 0
	kept := existing[:0]
	for _, item := range existing {
		if containsItem(items, item) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	if removed == 0 {
		return 0, out.ChangeResult{}, nil
	}

	opts := options.Replace().SetUpsert(true)
	newDoc := document{ID: key, Value: encodeListBlob(kept), ExpiresAt: doc.ExpiresAt}
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": key}, newDoc, opts); err != nil {
		return 0, out.ChangeResult{}, err
	}
	return removed, out.ChangeResult{Changed: true}, nil
}

func (s *Store) GetExpiration(ctx context.Context, key string) (time.Duration, bool, error) {
	doc, found, err := s.loadForUpdate(ctx, key)
	if err != nil {
		return 0, false, err
	}
	if !found || doc.ExpiresAt == nil {
		return 0, false, nil
	}
	return time.Until(*doc.ExpiresAt), true, nil
}

func (s *Store) SetExpiration(ctx context.Context, key string, ttl time.Duration) error {
	expiresAt := expiresAtFromTTL(ttl)
	_, err := s.collection.UpdateByID(ctx, key, bson.M{"$set": bson.M{"expires_at": expiresAt}})
	return err
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.collection.CountDocuments(ctx, notExpiredFilter(key))
	return n > 0, err
}
