package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

const valkeyKeyPrefix = "session:"

// ValkeyStore persists sessions in Valkey, sharing the keyspace the HTTP
// stack writes to. Records carry their own TTL.
type ValkeyStore struct {
	client valkey.Client
}

func NewValkeyStore(addr string) (*ValkeyStore, error) {
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("connect to valkey: %w", err)
	}
	return &ValkeyStore{client: client}, nil
}

var _ Store = (*ValkeyStore)(nil)

func (s *ValkeyStore) Get(ctx context.Context, sid string) (*Record, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(valkeyKeyPrefix+sid).Build())
	data, err := resp.AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session %s: %w", sid, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sid, err)
	}
	return &rec, nil
}

func (s *ValkeyStore) Put(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", rec.ID, err)
	}

	builder := s.client.B().Set().Key(valkeyKeyPrefix + rec.ID).Value(valkey.BinaryString(data))
	var cmd valkey.Completed
	if ttl := time.Until(rec.ExpiresAt); !rec.ExpiresAt.IsZero() && ttl > 0 {
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("store session %s: %w", rec.ID, err)
	}
	return nil
}

func (s *ValkeyStore) Delete(ctx context.Context, sid string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(valkeyKeyPrefix+sid).Build()).Error(); err != nil {
		return fmt.Errorf("delete session %s: %w", sid, err)
	}
	return nil
}

func (s *ValkeyStore) Close() {
	s.client.Close()
}
