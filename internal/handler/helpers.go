package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// parseID 解析路径中的正整数 ID
func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id < 1 {
		BadRequest(c, "无效的ID")
		return 0, false
	}
	return id, true
}
