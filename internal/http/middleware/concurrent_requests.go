package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"
)

// LimitConcurrentRequests rejects requests with 429 once maxConcurrent
// admin requests are already in flight. Non-blocking: a request never
// queues for a permit.
//
// Example usage:
//
//	router.Use(LimitConcurrentRequests(16))
func LimitConcurrentRequests(maxConcurrent int64) gin.HandlerFunc {
	sem := semaphore.NewWeighted(maxConcurrent)

	return func(c *gin.Context) {
		if !sem.TryAcquire(1) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message": "too many concurrent requests",
			})
			return
		}
		defer sem.Release(1)
		c.Next()
	}
}
