// Package clock 把真实时间映射到调度器使用的压缩逻辑时间：
// 每 scaleMs 真实毫秒对应 1 逻辑分钟
package clock

import (
	"fmt"
	"time"
)

// Source 返回当前真实时间
type Source func() time.Time

type Clock struct {
	source        Source
	realOrigin    time.Time
	logicalOrigin time.Time
	scaleMs       int64
}

type Option func(*Clock)

// WithSource 替换 time.Now，主要用于测试
func WithSource(src Source) Option {
	return func(c *Clock) { c.source = src }
}

// WithLogicalOrigin 指定真实起点对应的逻辑时间
func WithLogicalOrigin(t time.Time) Option {
	return func(c *Clock) { c.logicalOrigin = t }
}

// New 创建时钟，以 source 的当前时间作为真实起点；未指定逻辑起点时两者相同
func New(scaleMs int64, opts ...Option) (*Clock, error) {
	if scaleMs <= 0 {
		return nil, fmt.Errorf("time scale must be positive, got %d", scaleMs)
	}
	c := &Clock{source: time.Now, scaleMs: scaleMs}
	for _, opt := range opts {
		opt(c)
	}
	c.realOrigin = c.source()
	if c.logicalOrigin.IsZero() {
		c.logicalOrigin = c.realOrigin
	}
	return c, nil
}

// Now 逻辑起点加上已走过的整逻辑秒
func (c *Clock) Now() time.Time {
	return c.logicalOrigin.Add(time.Duration(c.ElapsedSeconds()) * time.Second)
}

// ElapsedSeconds 自起点以来走过的整逻辑秒数，向下取整
func (c *Clock) ElapsedSeconds() int64 {
	ms := c.source().Sub(c.realOrigin).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return ms * 60 / c.scaleMs
}

// ToReal 逻辑时间换算为对应的真实时间
func (c *Clock) ToReal(logical time.Time) time.Time {
	d := float64(logical.Sub(c.logicalOrigin)) * float64(c.scaleMs) / 60000.0
	return c.realOrigin.Add(time.Duration(d))
}

// ToLogical 真实时间换算为逻辑时间，ToReal 的逆运算
func (c *Clock) ToLogical(wall time.Time) time.Time {
	d := float64(wall.Sub(c.realOrigin)) * 60000.0 / float64(c.scaleMs)
	return c.logicalOrigin.Add(time.Duration(d))
}

// ScaleMs 每逻辑分钟对应的真实毫秒数
func (c *Clock) ScaleMs() int64 {
	return c.scaleMs
}

// LogicalDuration 真实时长换算为逻辑时长
func (c *Clock) LogicalDuration(wall time.Duration) time.Duration {
	return time.Duration(float64(wall) * 60000.0 / float64(c.scaleMs))
}
