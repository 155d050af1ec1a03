package tieredkv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"encore.dev/storage/sqldb"

	"encore.app/cachetier"
	"encore.app/durabletier"
	"encore.app/pkg/config"
)

// db is the durable tier's database, named the way audit/logger.go names
// its own database via sqldb.Named — one logical database per service.
var db = sqldb.Named("tieredkv_db")

var (
	svc     *Service
	svcErr  error
	svcOnce sync.Once
)

// initService constructs the package singleton the way
// cache-manager/service.go's initService does: a once.Do guarding
// construction of every tier, plus the C7 filter load, called lazily by
// the first incoming request (Encore also calls this automatically for
// //encore:service types that export it under this exact signature).
func initService() (*Service, error) {
	svcOnce.Do(func() {
		cfg := config.Load()

		durable, err := durabletier.New(db, 30*time.Second)
		if err != nil {
			svcErr = fmt.Errorf("tieredkv: durable tier init: %w", err)
			return
		}

		cache := cachetier.New(100000, time.Duration(cfg.CacheTTL)*time.Second)

		filter, err := loadOrInit(context.Background(), durable, cuckooCapacityHint)
		if err != nil {
			svcErr = fmt.Errorf("tieredkv: filter load: %w", err)
			return
		}

		svc = New(cfg, cache, cache, durable, filter)
	})
	return svc, svcErr
}

// cuckooCapacityHint sizes the initial filter for roughly a million
// distinct addresses. The filter is never resized: once it cannot place
// a new fingerprint, writes fail with FilterFull. A filter sized on first
// use is a concrete capacity-planning decision implementations are free
// to make per spec.md §4.2.
const cuckooCapacityHint = 1 << 20
