package connections

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreKV stores one document per key in a single collection. Document
// IDs are the escaped key; the raw key is kept in a field for prefix queries.
type FirestoreKV struct {
	client     *firestore.Client
	collection string
}

var _ KV = (*FirestoreKV)(nil)

type kvDoc struct {
	Key       string    `firestore:"key"`
	Value     string    `firestore:"value"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func NewFirestoreKV(client *firestore.Client, collection string) *FirestoreKV {
	if collection == "" {
		collection = "finboard"
	}
	return &FirestoreKV{client: client, collection: collection}
}

// docID escapes the characters Firestore does not allow in document IDs.
func docID(key string) string {
	return strings.NewReplacer("%", "%25", "/", "%2F").Replace(key)
}

func (f *FirestoreKV) Get(ctx context.Context, key string) ([]byte, error) {
	snap, err := f.client.Collection(f.collection).Doc(docID(key)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	var d kvDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return []byte(d.Value), nil
}

func (f *FirestoreKV) Set(ctx context.Context, key string, value []byte) error {
	d := kvDoc{Key: key, Value: string(value), UpdatedAt: time.Now().UTC()}
	if _, err := f.client.Collection(f.collection).Doc(docID(key)).Set(ctx, d); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (f *FirestoreKV) Remove(ctx context.Context, key string) error {
	ref := f.client.Collection(f.collection).Doc(docID(key))
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (f *FirestoreKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	q := f.client.Collection(f.collection).Query
	if prefix != "" {
		q = q.Where("key", ">=", prefix).Where("key", "<", prefix+"\uf8ff")
	}
	docs, err := q.Select("key").Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list keys %q: %w", prefix, err)
	}
	keys := make([]string, 0, len(docs))
	for _, doc := range docs {
		if k, ok := doc.Data()["key"].(string); ok && strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
