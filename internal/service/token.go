package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken 表示会话令牌缺失、格式错误、签名无效或已过期。
// 这是基础设施级错误（HTTP 401 / 直接断开连接），不属于业务错误全集。
var ErrInvalidToken = errors.New("invalid or expired session token")

// TokenClaims 是会话令牌携带的声明：把一个用户身份绑定到一个房间。
// 令牌只签发和校验，从不在服务端存储。
type TokenClaims struct {
	RoomCode string
	UserID   string
}

// TokenService 负责签发和校验会话令牌（HS256 JWT）。
type TokenService struct {
	secret []byte
	expiry time.Duration
}

// NewTokenService 创建 TokenService 实例。
func NewTokenService(secret string, expiry time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	if expiry <= 0 {
		expiry = 30 * time.Minute
	}
	return &TokenService{secret: []byte(secret), expiry: expiry}, nil
}

// Issue 为 (roomCode, userID) 签发一个短期会话令牌。
func (s *TokenService) Issue(roomCode, userID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"room_code": roomCode,
		"user_id":   userID,
		"exp":       now.Add(s.expiry).Unix(),
		"iat":       now.Unix(),
	})
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Verify 校验令牌并返回其中的声明。
// 任何解析/签名/过期问题都归一为 ErrInvalidToken。
func (s *TokenService) Verify(tokenStr string) (*TokenClaims, error) {
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		// 只接受 HMAC 签名，拒绝 alg 混淆
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	roomCode, _ := claims["room_code"].(string)
	userID, _ := claims["user_id"].(string)
	if roomCode == "" || userID == "" {
		return nil, ErrInvalidToken
	}
	return &TokenClaims{RoomCode: roomCode, UserID: userID}, nil
}
