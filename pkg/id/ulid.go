// Package id 提供基于 ULID 的唯一 ID 生成。
package id

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator 定义 ID 生成器接口。
type Generator interface {
	Generate() string
}

// ULIDGenerator 使用 ULID 算法生成时间可排序的唯一 ID。
//
// 格式: 01AN4Z07BY79KA1307SR9X4MV3
//   - 前 10 字符: 时间戳 (毫秒)
//   - 后 16 字符: 随机熵
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewULIDGenerator 创建新的 ULID 生成器。
// 使用单调熵源，同一毫秒内生成的 ID 仍然有序。
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Generate 实现 Generator 接口。
func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

var (
	defaultGen  *ULIDGenerator
	defaultOnce sync.Once
)

// NewULID 使用默认生成器生成 ULID。
func NewULID() string {
	defaultOnce.Do(func() {
		defaultGen = NewULIDGenerator()
	})
	return defaultGen.Generate()
}

// IsValidULID 判断字符串是否为合法的 ULID。
func IsValidULID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// Time 返回 ULID 中编码的时间戳。
func Time(s string) (time.Time, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
