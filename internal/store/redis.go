package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pavelanni/coursegen/internal/model"
)

// RedisArtifacts keeps chapter lists and quizzes as JSON values in Redis.
// SETNX makes every write first-write-wins.
type RedisArtifacts struct {
	client *redis.Client
	prefix string
	ctx    context.Context
}

// ConnectRedis connects to addr and checks the connection.
func ConnectRedis(addr, prefix string) (*RedisArtifacts, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return &RedisArtifacts{client: client, prefix: prefix, ctx: ctx}, nil
}

func (r *RedisArtifacts) chaptersKey(courseID string) string {
	return r.prefix + "chapters:" + courseID
}

func (r *RedisArtifacts) quizKey(courseID string) string {
	return r.prefix + "quiz:" + courseID
}

// GetChapters returns the stored chapters, or nil if none.
func (r *RedisArtifacts) GetChapters(courseID string) ([]model.Chapter, error) {
	var chapters []model.Chapter
	found, err := r.get(r.chaptersKey(courseID), &chapters)
	if err != nil || !found {
		return nil, err
	}
	return chapters, nil
}

// PutChapters stores chapters unless the course already has some.
func (r *RedisArtifacts) PutChapters(courseID string, chapters []model.Chapter) error {
	return r.setOnce(r.chaptersKey(courseID), chapters)
}

// GetChapterTitles returns chapter titles in index order.
func (r *RedisArtifacts) GetChapterTitles(courseID string) ([]string, error) {
	chapters, err := r.GetChapters(courseID)
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(chapters))
	for _, ch := range chapters {
		titles = append(titles, ch.Title)
	}
	return titles, nil
}

// GetQuiz returns the stored quiz, or nil if none.
func (r *RedisArtifacts) GetQuiz(courseID string) (*model.QuizContent, error) {
	var q model.QuizContent
	found, err := r.get(r.quizKey(courseID), &q)
	if err != nil || !found {
		return nil, err
	}
	return &q, nil
}

// PutQuiz stores a quiz unless the course already has one.
func (r *RedisArtifacts) PutQuiz(courseID string, q *model.QuizContent) error {
	return r.setOnce(r.quizKey(courseID), q)
}

// Close closes the Redis connection.
func (r *RedisArtifacts) Close() error {
	return r.client.Close()
}

func (r *RedisArtifacts) get(key string, v any) (bool, error) {
	data, err := r.client.Get(r.ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (r *RedisArtifacts) setOnce(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	ok, err := r.client.SetNX(r.ctx, key, data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrConflict)
	}
	return nil
}
