package http

import (
	"github.com/gofiber/fiber/v2"

	"hybridcache/core/cache"
)

// CacheAdminHandler exposes the coordinator's observable state (§6) and
// a bounded set of destructive operations (flush, remove-by-prefix) for
// operators, grounded on the teacher's webhook/settings handlers'
// thin-handler-delegates-to-service shape.
type CacheAdminHandler struct {
	coordinator *cache.HybridCoordinator
}

func NewCacheAdminHandler(coordinator *cache.HybridCoordinator) *CacheAdminHandler {
	return &CacheAdminHandler{coordinator: coordinator}
}

func (h *CacheAdminHandler) Register(router fiber.Router) {
	router.Get("/stats", h.Stats)
	router.Post("/flush", h.Flush)
	router.Delete("/keys/:prefix", h.RemoveByPrefix)
}

// Stats returns the current Snapshot (§6): hits, misses, evictions,
// localCacheHits, invalidation counters, itemCount, currentMemorySize.
func (h *CacheAdminHandler) Stats(c *fiber.Ctx) error {
	return SuccessResponse(c, h.coordinator.Snapshot())
}

// Flush removes every L1 and L2 entry and publishes a flushAll
// invalidation, per §4.3's RemoveAll semantics.
func (h *CacheAdminHandler) Flush(c *fiber.Ctx) error {
	count, err := h.coordinator.RemoveAll(c.Context())
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"removed": count})
}

// RemoveByPrefix evicts every key under prefix from L1 and L2 and
// publishes the matching invalidation, per §4.3.
func (h *CacheAdminHandler) RemoveByPrefix(c *fiber.Ctx) error {
	prefix := c.Params("prefix")
	count, err := h.coordinator.RemoveByPrefix(c.Context(), prefix)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"removed": count})
}
