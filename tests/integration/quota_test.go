//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptforge-app/promptforge/internal/quota"
)

func TestQuotaLifecycle(t *testing.T) {
	env := SetupTestEnv(t)

	RegisterUser(t, env, "quota-lifecycle@example.com", "password123")
	token := LoginUser(t, env, "quota-lifecycle@example.com", "password123")

	genBody := map[string]string{"initialIdea": "a landing page for a bakery"}

	t.Run("fresh user has full allowance", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/api/v1/quota", nil, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		data := ParseResponse(t, resp)["data"].(map[string]any)
		assert.Equal(t, float64(0), data["used_today"])
		assert.Equal(t, float64(testDailyLimit), data["remaining"])
	})

	t.Run("generations succeed up to the limit", func(t *testing.T) {
		for i := 0; i < testDailyLimit; i++ {
			resp := DoRequest(t, env, "POST", "/api/v1/prompts/generate", genBody, token)
			require.Equal(t, http.StatusOK, resp.StatusCode, "generation %d should succeed", i+1)

			data := ParseResponse(t, resp)["data"].(map[string]any)
			assert.NotEmpty(t, data["magicalPrompt"])
		}
	})

	t.Run("generation past the limit is rejected", func(t *testing.T) {
		resp := DoRequest(t, env, "POST", "/api/v1/prompts/generate", genBody, token)
		require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

		result := ParseResponse(t, resp)
		assert.Equal(t, "resource-exhausted", result["code"])
		assert.Contains(t, result["error"], fmt.Sprintf("%d", testDailyLimit))
	})

	t.Run("allowance reads as exhausted", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/api/v1/quota", nil, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		data := ParseResponse(t, resp)["data"].(map[string]any)
		assert.Equal(t, float64(testDailyLimit), data["used_today"])
		assert.Equal(t, float64(0), data["remaining"])
	})

	t.Run("questions remain available", func(t *testing.T) {
		resp := DoRequest(t, env, "POST", "/api/v1/prompts/questions",
			map[string]string{"initialIdea": "a landing page for a bakery"}, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		data := ParseResponse(t, resp)["data"].(map[string]any)
		questions := data["questions"].([]any)
		assert.NotEmpty(t, questions)
	})
}

func TestQuotaRequiresAuth(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	var before int64
	require.NoError(t, env.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_quotas`).Scan(&before))

	for _, path := range []string{"/api/v1/prompts/generate", "/api/v1/prompts/questions"} {
		resp := DoRequest(t, env, "POST", path, map[string]string{"initialIdea": "x"}, "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)

		result := ParseResponse(t, resp)
		assert.Equal(t, "unauthenticated", result["code"])
	}

	var after int64
	require.NoError(t, env.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_quotas`).Scan(&after))
	assert.Equal(t, before, after, "rejected calls must not touch quota storage")
}

func TestQuestionsDoNotConsumeQuota(t *testing.T) {
	env := SetupTestEnv(t)

	RegisterUser(t, env, "questions-free@example.com", "password123")
	token := LoginUser(t, env, "questions-free@example.com", "password123")

	for i := 0; i < testDailyLimit+2; i++ {
		resp := DoRequest(t, env, "POST", "/api/v1/prompts/questions",
			map[string]string{"initialIdea": "a podcast intro"}, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp := DoRequest(t, env, "GET", "/api/v1/quota", nil, token)
	data := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, float64(0), data["used_today"])
}

// TestStore_ConcurrentConsumeIsAtomic drives the real row-locked transaction
// with two goroutines racing for the last unit of the allowance.
func TestStore_ConcurrentConsumeIsAtomic(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	userID := uuid.New()
	_, err := env.Pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash) VALUES ($1, $2, 'x')`,
		userID, fmt.Sprintf("race-%s@example.com", userID))
	require.NoError(t, err)

	// Seed one unit below the limit so exactly one racer can win.
	for i := 0; i < testDailyLimit-1; i++ {
		require.NoError(t, env.Guard.Consume(ctx, userID))
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- env.Guard.Consume(ctx, userID)
		}()
	}
	wg.Wait()
	close(results)

	var successes, rejections int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case quota.IsExceeded(err):
			rejections++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, rejections)

	rec, err := env.Store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, testDailyLimit, rec.Count, "count must never exceed the limit")
}

// TestStore_AbortedDecisionLeavesNoTrace verifies a decision error rolls the
// transaction back without persisting anything.
func TestStore_AbortedDecisionLeavesNoTrace(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	userID := uuid.New()
	_, err := env.Pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash) VALUES ($1, $2, 'x')`,
		userID, fmt.Sprintf("abort-%s@example.com", userID))
	require.NoError(t, err)

	require.NoError(t, env.Guard.Consume(ctx, userID))

	sentinel := errors.New("verdict")
	err = env.Store.Apply(ctx, userID, func(rec quota.Record) (quota.Record, error) {
		rec.Count = 999
		return rec, sentinel
	})
	require.ErrorIs(t, err, sentinel)

	rec, err := env.Store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Count)
}
