package rag

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/Azurakun/AnTiMa-sub000/internal/models"
)

const (
	defaultCollection = "memory_fragments"
	defaultVectorSize = 1536
)

// QdrantIndex implements the archival memory index on a Qdrant
// collection. Fragments carry a payload of {session_id, text, timestamp,
// provenance} so purge and per-session retrieval run as payload filters.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	vectorSize uint64
}

// NewQdrantIndex connects to Qdrant and ensures the fragment collection
// exists.
func NewQdrantIndex(ctx context.Context, host string, port int, apiKey, collection string, vectorSize int) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}

	idx := &QdrantIndex{
		client:     client,
		collection: collection,
		vectorSize: uint64(vectorSize),
	}
	if idx.collection == "" {
		idx.collection = defaultCollection
	}
	if idx.vectorSize == 0 {
		idx.vectorSize = defaultVectorSize
	}

	exists, err := client.CollectionExists(ctx, idx.collection)
	if err != nil {
		return nil, fmt.Errorf("check collection: %w", err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: idx.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     idx.vectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("create collection: %w", err)
		}
	}

	return idx, nil
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// StoreFragment indexes a fragment with its embedding.
func (q *QdrantIndex) StoreFragment(ctx context.Context, fragment *models.MemoryFragment, vector []float32) error {
	if fragment.ID == "" {
		fragment.ID = NewFragmentID()
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(fragment.ID),
				Vectors: qdrant.NewVectors(vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					"session_id": fragment.SessionID,
					"turn_id":    int64(fragment.TurnID),
					"text":       fragment.Text,
					"timestamp":  fragment.Timestamp.Unix(),
					"provenance": string(fragment.Provenance),
				}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert fragment: %w", err)
	}
	return nil
}

// Search returns a session's fragments ranked by similarity.
func (q *QdrantIndex) Search(ctx context.Context, sessionID string, vector []float32, limit int) ([]*models.MemoryFragment, error) {
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("session_id", sessionID),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query fragments: %w", err)
	}

	fragments := make([]*models.MemoryFragment, 0, len(points))
	for _, point := range points {
		payload := point.GetPayload()
		if payload == nil {
			continue
		}
		fragments = append(fragments, &models.MemoryFragment{
			ID:         point.GetId().GetUuid(),
			SessionID:  payload["session_id"].GetStringValue(),
			TurnID:     int(payload["turn_id"].GetIntegerValue()),
			Text:       payload["text"].GetStringValue(),
			Timestamp:  time.Unix(payload["timestamp"].GetIntegerValue(), 0),
			Provenance: models.Provenance(payload["provenance"].GetStringValue()),
		})
	}
	return fragments, nil
}

// PurgeTurns removes fragments derived from turns with id > afterTurn,
// so a rewind cannot leave future memories retrievable.
func (q *QdrantIndex) PurgeTurns(ctx context.Context, sessionID string, afterTurn int) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("session_id", sessionID),
				qdrant.NewRange("turn_id", &qdrant.Range{
					Gt: qdrant.PtrOf(float64(afterTurn)),
				}),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("purge fragments: %w", err)
	}
	return nil
}

// Clear removes every fragment for a session.
func (q *QdrantIndex) Clear(ctx context.Context, sessionID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("session_id", sessionID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("clear fragments: %w", err)
	}
	return nil
}

// NewFragmentID returns a random UUIDv4 string. Qdrant point ids must be
// UUIDs or integers.
func NewFragmentID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
