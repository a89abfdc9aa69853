// middleware/ratelimit.go
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// 客房面板空闲超过该时长后，其令牌桶被回收
const defaultLimiterIdle = 10 * time.Minute

// IPRateLimiter 为每个客户端 IP 维护一个令牌桶，空闲的桶到期后由 go-cache 清理
type IPRateLimiter struct {
	limiters *cache.Cache
	mu       sync.Mutex // 保证同一 IP 只创建一个令牌桶
	r        rate.Limit
	b        int
}

func NewIPRateLimiter(r rate.Limit, b int, idle time.Duration) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: cache.New(idle, 2*idle),
		r:        r,
		b:        b,
	}
}

// GetLimiter 返回 IP 对应的限流器，首次出现或已过期时新建；每次访问都会顺延过期时间
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	limiter, ok := i.limiters.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(i.r, i.b)
	}
	i.limiters.Set(ip, limiter, cache.DefaultExpiration)
	return limiter.(*rate.Limiter)
}

// Len 当前保留的令牌桶数量，含已过期但尚未清理的
func (i *IPRateLimiter) Len() int {
	return i.limiters.ItemCount()
}

// RateLimiter 客房面板接口按 IP 限流，超限返回 429
func RateLimiter(rps float64, burst int) gin.HandlerFunc {
	limiter := NewIPRateLimiter(rate.Limit(rps), burst, defaultLimiterIdle)
	return func(c *gin.Context) {
		if !limiter.GetLimiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": http.StatusTooManyRequests,
				"msg":  "请求过于频繁",
			})
			return
		}
		c.Next()
	}
}
