// Package roomcode 生成短小、可手动输入的房间码。
package roomcode

import (
	"crypto/rand"
	"fmt"

	goaway "github.com/TwiN/go-away"

	"github.com/metacurb/nestjs-websocket-starter/internal/domain"
)

// Generator 从配置的字母表中抽取候选码，拒绝命中脏词判定的候选，
// 在有限次尝试内重试。超出尝试上限说明字母表/长度配置有问题
// （对冲突和脏词压力来说太小或太短），这是致命错误，上层不再重试。
type Generator struct {
	alphabet    string
	length      int
	maxAttempts int
	isProfane   func(string) bool
}

// NewGenerator 创建 Generator 实例。
// isProfane 为 nil 时使用 go-away 的默认脏词判定。
func NewGenerator(alphabet string, length, maxAttempts int, isProfane func(string) bool) *Generator {
	if alphabet == "" {
		panic("alphabet cannot be empty for Generator")
	}
	if length <= 0 {
		panic("length must be positive for Generator")
	}
	if maxAttempts <= 0 {
		panic("maxAttempts must be positive for Generator")
	}
	if isProfane == nil {
		isProfane = goaway.IsProfane
	}
	return &Generator{
		alphabet:    alphabet,
		length:      length,
		maxAttempts: maxAttempts,
		isProfane:   isProfane,
	}
}

// Generate 返回一个通过脏词判定的随机房间码。
// 尝试次数耗尽时返回 ErrRoomCodeGenerationFailed。
func (g *Generator) Generate() (string, error) {
	b := make([]byte, g.length)
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for i := range b {
			b[i] = g.alphabet[int(b[i])%len(g.alphabet)]
		}
		code := string(b)
		if g.isProfane(code) {
			continue
		}
		return code, nil
	}
	return "", domain.ErrRoomCodeGenerationFailed
}
