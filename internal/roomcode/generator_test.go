package roomcode_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metacurb/nestjs-websocket-starter/internal/domain"
	"github.com/metacurb/nestjs-websocket-starter/internal/roomcode"
)

const testAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func TestGenerator_Generate_ProducesValidCodes(t *testing.T) {
	// Arrange: 使用永不命中的脏词判定，保证第一次尝试就成功
	gen := roomcode.NewGenerator(testAlphabet, 4, 100, func(string) bool { return false })

	// Act & Assert: 连续生成多个码，全部应符合字母表和长度约束
	for i := 0; i < 50; i++ {
		code, err := gen.Generate()
		require.NoError(t, err, "正常配置下生成不应失败")
		assert.Len(t, code, 4, "房间码长度应为 4")
		for _, ch := range code {
			assert.True(t, strings.ContainsRune(testAlphabet, ch), "房间码字符应来自配置的字母表: %q", code)
		}
	}
}

func TestGenerator_Generate_RejectsProfaneCandidates(t *testing.T) {
	// Arrange: 前两次候选都被判定为脏词，第三次放行
	calls := 0
	gen := roomcode.NewGenerator(testAlphabet, 4, 10, func(string) bool {
		calls++
		return calls <= 2
	})

	// Act
	code, err := gen.Generate()

	// Assert: 被拒绝的候选触发重试，最终仍能生成
	require.NoError(t, err)
	assert.Len(t, code, 4)
	assert.Equal(t, 3, calls, "应在第三次尝试时通过脏词判定")
}

func TestGenerator_Generate_ExhaustsAttemptBudget(t *testing.T) {
	// Arrange: 脏词判定永远命中，尝试预算必然耗尽
	gen := roomcode.NewGenerator(testAlphabet, 4, 5, func(string) bool { return true })

	// Act
	code, err := gen.Generate()

	// Assert: 预算耗尽返回 ErrRoomCodeGenerationFailed
	require.Error(t, err, "预算耗尽时应返回错误")
	assert.Empty(t, code)
	assert.True(t, errors.Is(err, domain.ErrRoomCodeGenerationFailed), "错误类型应为 ErrRoomCodeGenerationFailed")
	assert.Equal(t, domain.CodeRoomCodeGenerationFailed, domain.CodeOf(err))
}

func TestGenerator_Generate_NoCollisionBiasOnShortAlphabet(t *testing.T) {
	// Arrange: 长度为 1 的码空间很小，验证每个字符都可能出现
	small := "AB"
	gen := roomcode.NewGenerator(small, 1, 10, func(string) bool { return false })

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := gen.Generate()
		require.NoError(t, err)
		seen[code] = true
	}

	// Assert: 两个字符都应被抽到
	assert.True(t, seen["A"], "字符 A 应出现")
	assert.True(t, seen["B"], "字符 B 应出现")
}
