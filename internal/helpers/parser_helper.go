package helpers

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
)

const MaxPageLimit = 100

func StringToInt(s string) (int, error) {
	return strconv.Atoi(s)
}

func ParsePagination(c *gin.Context) (page, limit int, err error) {
	page, err = StringToInt(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		return 0, 0, fmt.Errorf("invalid page number")
	}

	limit, err = StringToInt(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 {
		return 0, 0, fmt.Errorf("invalid limit")
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit, nil
}

func TotalPages(total int64, limit int) int64 {
	return (total + int64(limit) - 1) / int64(limit)
}
