package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fairclaim/protest-engine/internal/application/workflow"
	"github.com/fairclaim/protest-engine/internal/infrastructure/database/redis"
	"github.com/fairclaim/protest-engine/pkg/types/common"
)

// sessionLocker adapts the Redis lock to the workflow service's Locker.
type sessionLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func newSessionLocker(client *redis.Client) workflow.Locker {
	return &sessionLocker{client: client, ttl: 30 * time.Second}
}

func (l *sessionLocker) Lock(ctx context.Context, sessionID common.ID) (func(context.Context) error, error) {
	lock, err := redis.AcquireLock(ctx, l.client, fmt.Sprintf("session-lock:%s", sessionID), l.ttl)
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}
