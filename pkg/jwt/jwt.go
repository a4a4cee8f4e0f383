package jwt

import (
	"errors"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"sn-sync/backend/config"
)

var (
	ErrTokenExpired = errors.New("token 已过期")
	ErrTokenInvalid = errors.New("token 无效")
)

// Claims 外部认证服务签发的 JWT 声明
type Claims struct {
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
	EmployeeID string `json:"employee_id,omitempty"`
	TokenType  string `json:"token_type"` // 只接受 "access"
	jwtv5.RegisteredClaims
}

// Manager JWT 校验器
// 本服务不签发 Token，只校验 HS256 签名与有效期
type Manager struct {
	secret []byte
}

// NewManager 创建 JWT 校验器
func NewManager(cfg *config.AuthConfig) *Manager {
	return &Manager{secret: []byte(cfg.JWTSecret)}
}

// ParseToken 解析并验证 Access Token
func (m *Manager) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwtv5.ParseWithClaims(tokenString, &Claims{}, func(t *jwtv5.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return m.secret, nil
	}, jwtv5.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	// refresh token 不能用于访问接口
	if claims.TokenType != "" && claims.TokenType != "access" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
