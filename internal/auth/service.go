package auth

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Service issues and revokes token pairs, keeping a registry of live refresh
// tokens in Redis so a stolen refresh token can be invalidated by logout.
type Service struct {
	jwt         *JWTManager
	redisClient *redis.Client
}

func NewService(jwt *JWTManager, redisClient *redis.Client) *Service {
	return &Service{
		jwt:         jwt,
		redisClient: redisClient,
	}
}

func refreshKey(userID, tokenID string) string {
	return fmt.Sprintf("refresh:%s:%s", userID, tokenID)
}

func (s *Service) GenerateTokens(ctx context.Context, userID, email string) (*TokenPair, error) {
	pair, tokenID, err := s.jwt.GenerateTokenPair(userID, email)
	if err != nil {
		return nil, err
	}

	err = s.redisClient.Set(ctx, refreshKey(userID, tokenID), "1", s.jwt.RefreshExpiry()).Err()
	if err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}

	return pair, nil
}

// RedeemRefreshToken validates a refresh token, revokes it, and returns the
// user ID it belongs to. The caller issues a fresh pair afterwards; single use
// per refresh token.
func (s *Service) RedeemRefreshToken(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return "", fmt.Errorf("invalid refresh token: %w", err)
	}

	key := refreshKey(claims.UserID, claims.TokenID)
	exists, err := s.redisClient.Exists(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("checking refresh token: %w", err)
	}
	if exists == 0 {
		return "", fmt.Errorf("refresh token revoked")
	}

	if err := s.redisClient.Del(ctx, key).Err(); err != nil {
		return "", fmt.Errorf("revoking refresh token: %w", err)
	}

	return claims.UserID, nil
}

// Logout deletes every live refresh token for the user.
func (s *Service) Logout(ctx context.Context, userID string) error {
	pattern := fmt.Sprintf("refresh:%s:*", userID)
	iter := s.redisClient.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		s.redisClient.Del(ctx, iter.Val())
	}
	return iter.Err()
}

func (s *Service) ValidateAccessToken(token string) (*AccessClaims, error) {
	return s.jwt.ValidateAccessToken(token)
}
