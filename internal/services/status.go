package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wisenet/wisenet-backend/internal/graph"
	"github.com/wisenet/wisenet-backend/internal/platform/envutil"
	"github.com/wisenet/wisenet-backend/internal/platform/logger"
	"github.com/wisenet/wisenet-backend/internal/repos"
	"github.com/wisenet/wisenet-backend/internal/types"
)

// ProjectionName is the shared similarity projection over the whole graph.
const ProjectionName = "wisenet_similarity"

// StatusOracle reports and transitions a library's lifecycle status.
// Generation polls it between expansion steps; a PENDING readback there
// means the run was canceled.
type StatusOracle interface {
	Status(ctx context.Context, libID int64) (string, error)
	SetStatus(ctx context.Context, libID int64, status string) error
	Publish(ctx context.Context, libID int64) error
	Unpublish(ctx context.Context, libID int64) error
}

type statusService struct {
	libs       repos.KnowledgeLibRepo
	cache      *redis.Client
	similarity graph.SimilarityRepo
	ttl        time.Duration
	log        *logger.Logger
}

func NewStatusService(libs repos.KnowledgeLibRepo, cache *redis.Client, similarity graph.SimilarityRepo, baseLog *logger.Logger) StatusOracle {
	ttl := time.Duration(envutil.Int("LIB_STATUS_CACHE_SECONDS", 3)) * time.Second
	return &statusService{
		libs:       libs,
		cache:      cache,
		similarity: similarity,
		ttl:        ttl,
		log:        baseLog.With("service", "status"),
	}
}

func statusKey(libID int64) string {
	return fmt.Sprintf("wisenet:lib_status:%d", libID)
}

// Status is a read-through: a short-lived cache entry in front of the
// relational row. The TTL bounds how stale a cancellation check can be.
func (s *statusService) Status(ctx context.Context, libID int64) (string, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, statusKey(libID)).Result()
		if err == nil && cached != "" {
			return cached, nil
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			s.log.Warn("status cache read failed", "lib_id", libID, "error", err)
		}
	}
	status, found, err := s.libs.GetStatus(ctx, nil, libID)
	if err != nil {
		return "", graph.StoreErr("read library status", err)
	}
	if !found {
		return "", graph.NotFoundf("knowledge lib %d", libID)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, statusKey(libID), status, s.ttl).Err(); err != nil {
			s.log.Warn("status cache write failed", "lib_id", libID, "error", err)
		}
	}
	return status, nil
}

func (s *statusService) SetStatus(ctx context.Context, libID int64, status string) error {
	switch status {
	case types.LibStatusPending, types.LibStatusGenerating, types.LibStatusAnalyzing, types.LibStatusPublished:
	default:
		return graph.Validationf("unknown library status %q", status)
	}
	if err := s.libs.SetStatus(ctx, nil, libID, status); err != nil {
		return graph.StoreErr("write library status", err)
	}
	if s.cache != nil {
		if err := s.cache.Del(ctx, statusKey(libID)).Err(); err != nil {
			s.log.Warn("status cache invalidation failed", "lib_id", libID, "error", err)
		}
	}
	return nil
}

// Publish flips the library to PUBLISHED and rebuilds the similarity
// projection so related-node lookups see the final tree.
func (s *statusService) Publish(ctx context.Context, libID int64) error {
	if err := s.SetStatus(ctx, libID, types.LibStatusPublished); err != nil {
		return err
	}
	if err := s.similarity.RebuildProjection(ctx, ProjectionName); err != nil {
		return err
	}
	s.log.Info("library published", "lib_id", libID)
	return nil
}

func (s *statusService) Unpublish(ctx context.Context, libID int64) error {
	if err := s.SetStatus(ctx, libID, types.LibStatusPending); err != nil {
		return err
	}
	if err := s.similarity.RebuildProjection(ctx, ProjectionName); err != nil {
		return err
	}
	s.log.Info("library unpublished", "lib_id", libID)
	return nil
}
