package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const SlotKey = "slot"

// RequireValidSlot ensures the path param ":slot" is an int in [0, capacity)
// and stores the parsed value under SlotKey.
func RequireValidSlot(capacity int) gin.HandlerFunc {
	return func(c *gin.Context) {
		slot, err := strconv.Atoi(c.Param("slot"))
		if err != nil || slot < 0 || slot >= capacity {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid slot"})
			return
		}
		c.Set(SlotKey, slot)
		c.Next()
	}
}

// GetSlot returns the slot stored by RequireValidSlot.
func GetSlot(c *gin.Context) int {
	return c.GetInt(SlotKey)
}
