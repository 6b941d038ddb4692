package token

import (
	"fmt"
	"strconv"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/hertz-contrib/jwt"

	"TripMate/config"
	"TripMate/pkg/errors"
)

const (
	IdentityKey = "uid"
)

// middleware 和签发共用同一份密钥与过期配置
var sharedGenerator *jwt.HertzJWTMiddleware

func Init() error {
	var err error
	sharedGenerator, err = jwt.New(&jwt.HertzJWTMiddleware{
		Key:         []byte(config.Cfg.JWTSecret),
		Timeout:     time.Duration(config.Cfg.JWTExpireMinutes) * time.Minute,
		MaxRefresh:  time.Duration(config.Cfg.JWTRefreshDays) * 24 * time.Hour,
		IdentityKey: IdentityKey,
		TimeFunc:    time.Now,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token generator: %w", err)
	}

	return nil
}

// GetGenerator 获取共享的 token 生成器（供 middleware 使用）
func GetGenerator() *jwt.HertzJWTMiddleware {
	return sharedGenerator
}

// GenerateTokenPair 生成 access token 和 refresh token，uid 以十进制字符串写入
func GenerateTokenPair(userID int64) (accessToken, refreshToken string, expiresIn int, err error) {
	if sharedGenerator == nil {
		return "", "", 0, errors.ErrTokenGeneratorNotInitialized
	}

	uid := strconv.FormatInt(userID, 10)
	now := sharedGenerator.TimeFunc()
	expiresAt := now.Add(sharedGenerator.Timeout)

	accessToken, err = sign(jwtv5.MapClaims{
		IdentityKey: uid,
		"iat":       now.Unix(),
		"exp":       expiresAt.Unix(),
	})
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err = sign(jwtv5.MapClaims{
		IdentityKey: uid,
		"iat":       now.Unix(),
		"type":      "refresh",
		"exp":       now.Add(sharedGenerator.MaxRefresh).Unix(),
	})
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return accessToken, refreshToken, int(sharedGenerator.Timeout.Seconds()), nil
}

func sign(claims jwtv5.MapClaims) (string, error) {
	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(sharedGenerator.Key)
}

// ValidateRefreshToken 验证 refresh token 并返回用户 ID
func ValidateRefreshToken(tokenString string) (int64, error) {
	if sharedGenerator == nil {
		return 0, errors.ErrTokenGeneratorNotInitialized
	}

	token, err := jwtv5.ParseWithClaims(tokenString, jwtv5.MapClaims{}, func(token *jwtv5.Token) (interface{}, error) {
		if token.Method != jwtv5.SigningMethodHS256 {
			return nil, fmt.Errorf("%w: %v, expected HS256", errors.ErrUnexpectedSigningMethod, token.Header["alg"])
		}
		return sharedGenerator.Key, nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return 0, errors.ErrInvalidToken
	}

	claims, ok := token.Claims.(jwtv5.MapClaims)
	if !ok {
		return 0, errors.ErrInvalidTokenClaims
	}

	if tokenType, _ := claims["type"].(string); tokenType != "refresh" {
		return 0, errors.ErrInvalidTokenType
	}

	return UserIDFromClaim(claims[IdentityKey])
}

// UserIDFromClaim 兼容字符串与数字两种 uid 写法
func UserIDFromClaim(v interface{}) (int64, error) {
	switch uid := v.(type) {
	case string:
		id, err := strconv.ParseInt(uid, 10, 64)
		if err != nil || id <= 0 {
			return 0, errors.ErrUserIDNotFound
		}
		return id, nil
	case float64:
		if uid <= 0 {
			return 0, errors.ErrUserIDNotFound
		}
		return int64(uid), nil
	default:
		return 0, errors.ErrUserIDNotFound
	}
}
