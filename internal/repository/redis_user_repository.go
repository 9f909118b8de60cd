package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/videotube-api/internal/models"
)

// Hash fields of a user record.
const (
	fieldID           = "id"
	fieldUsername     = "username"
	fieldEmail        = "email"
	fieldFullName     = "full_name"
	fieldAvatar       = "avatar"
	fieldCoverImage   = "cover_image"
	fieldPasswordHash = "password_hash"
	fieldRefreshToken = "refresh_token"
	fieldCreatedAt    = "created_at"
	fieldUpdatedAt    = "updated_at"
)

const maxWatchRetries = 3

// RedisUserRepository stores principals as Redis hashes with unique index
// keys for username and email.
type RedisUserRepository struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisUserRepository constructs a Redis-backed user store.
func NewRedisUserRepository(client *redis.Client, prefix string, logger *zap.Logger) *RedisUserRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "videotube"
	}
	return &RedisUserRepository{client: client, prefix: prefix, logger: logger}
}

func (r *RedisUserRepository) userKey(id string) string {
	return fmt.Sprintf("%s:user:%s", r.prefix, id)
}

func (r *RedisUserRepository) usernameKey(username string) string {
	return fmt.Sprintf("%s:user:username:%s", r.prefix, username)
}

func (r *RedisUserRepository) emailKey(email string) string {
	return fmt.Sprintf("%s:user:email:%s", r.prefix, email)
}

// FindByUsernameOrEmail resolves the username index first, then the email index.
func (r *RedisUserRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error) {
	for _, key := range r.identifierKeys(username, email) {
		id, err := r.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis get %s: %w", key, err)
		}
		return r.FindByID(ctx, id)
	}
	return nil, ErrNotFound
}

// FindByID returns the full user record.
func (r *RedisUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	fields, err := r.client.HGetAll(ctx, r.userKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall user %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeUser(fields)
}

// FindProfileByID returns the user without credential fields.
func (r *RedisUserRepository) FindProfileByID(ctx context.Context, id string) (*models.UserProfile, error) {
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.Profile(), nil
}

// ExistsByUsernameOrEmail reports whether either index key is taken.
func (r *RedisUserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	keys := r.identifierKeys(username, email)
	if len(keys) == 0 {
		return false, nil
	}
	n, err := r.client.Exists(ctx, keys...).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Create reserves the username and email index keys and writes the record.
// A taken identifier yields ErrDuplicate.
func (r *RedisUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	usernameKey := r.usernameKey(user.Username)
	ok, err := r.client.SetNX(ctx, usernameKey, user.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("redis reserve username: %w", err)
	}
	if !ok {
		return ErrDuplicate
	}

	emailKey := r.emailKey(user.Email)
	ok, err = r.client.SetNX(ctx, emailKey, user.ID, 0).Result()
	if err != nil || !ok {
		r.release(ctx, usernameKey)
		if err != nil {
			return fmt.Errorf("redis reserve email: %w", err)
		}
		return ErrDuplicate
	}

	if err := r.client.HSet(ctx, r.userKey(user.ID), encodeUser(user)).Err(); err != nil {
		r.release(ctx, usernameKey, emailKey)
		return fmt.Errorf("redis hset user: %w", err)
	}
	return nil
}

// UpdateRefreshToken sets or clears the refresh token field.
func (r *RedisUserRepository) UpdateRefreshToken(ctx context.Context, id string, slot models.RefreshSlot) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := r.updateExisting(ctx, r.userKey(id), func(pipe redis.Pipeliner, key string) {
		if token, ok := slot.Token(); ok {
			pipe.HSet(ctx, key, fieldRefreshToken, token, fieldUpdatedAt, now)
			return
		}
		pipe.HDel(ctx, key, fieldRefreshToken)
		pipe.HSet(ctx, key, fieldUpdatedAt, now)
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("redis update refresh token: %w", err)
	}
	return err
}

// UpdatePassword replaces the stored password hash.
func (r *RedisUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	err := r.updateExisting(ctx, r.userKey(id), func(pipe redis.Pipeliner, key string) {
		pipe.HSet(ctx, key, fieldPasswordHash, passwordHash, fieldUpdatedAt, updatedAt.UTC().Format(time.RFC3339Nano))
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("redis update password: %w", err)
	}
	return err
}

// updateExisting runs write in a MULTI/EXEC guarded by WATCH on key, so a
// record deleted concurrently is never recreated as a partial hash.
func (r *RedisUserRepository) updateExisting(ctx context.Context, key string, write func(pipe redis.Pipeliner, key string)) error {
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			write(pipe, key)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

func (r *RedisUserRepository) release(ctx context.Context, keys ...string) {
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.logger.Warn("failed to release user index keys", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (r *RedisUserRepository) identifierKeys(username, email string) []string {
	keys := make([]string, 0, 2)
	if username != "" {
		keys = append(keys, r.usernameKey(username))
	}
	if email != "" {
		keys = append(keys, r.emailKey(email))
	}
	return keys
}

func encodeUser(user *models.User) map[string]interface{} {
	fields := map[string]interface{}{
		fieldID:           user.ID,
		fieldUsername:     user.Username,
		fieldEmail:        user.Email,
		fieldFullName:     user.FullName,
		fieldAvatar:       user.Avatar,
		fieldCoverImage:   user.CoverImage,
		fieldPasswordHash: user.PasswordHash,
		fieldCreatedAt:    user.CreatedAt.UTC().Format(time.RFC3339Nano),
		fieldUpdatedAt:    user.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if token, ok := user.RefreshToken.Token(); ok {
		fields[fieldRefreshToken] = token
	}
	return fields
}

func decodeUser(fields map[string]string) (*models.User, error) {
	user := &models.User{
		ID:           fields[fieldID],
		Username:     fields[fieldUsername],
		Email:        fields[fieldEmail],
		FullName:     fields[fieldFullName],
		Avatar:       fields[fieldAvatar],
		CoverImage:   fields[fieldCoverImage],
		PasswordHash: fields[fieldPasswordHash],
		RefreshToken: models.ActiveRefresh(fields[fieldRefreshToken]),
	}
	var err error
	if user.CreatedAt, err = parseTimestamp(fields[fieldCreatedAt]); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if user.UpdatedAt, err = parseTimestamp(fields[fieldUpdatedAt]); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	return user, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}
