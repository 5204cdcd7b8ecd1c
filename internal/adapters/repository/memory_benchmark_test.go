package repository

import (
	"context"
	"math/rand"
	"testing"

	"github.com/google/uuid"

	"github.com/okian/tops/internal/domain/model"
)

func BenchmarkMemoryStoreSave(b *testing.B) {
	ctx := context.Background()
	s := NewMemoryStore()
	ids := make([]model.Identifier, 1000)
	for i := range ids {
		ids[i] = uuid.New()
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.Save(ctx, "bench", ids[i%len(ids)], "p", rand.Float64()*1000, 100)
	}
}

func BenchmarkMemoryStorePosition(b *testing.B) {
	ctx := context.Background()
	s := NewMemoryStore()
	ids := make([]model.Identifier, 1000)
	for i := range ids {
		ids[i] = uuid.New()
		_, _ = s.Save(ctx, "bench", ids[i], "p", float64(i), len(ids))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.Position(ctx, "bench", ids[i%len(ids)])
	}
}
