package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// IdempotencyKeyHeader is sent by clients that may retry a submission.
const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotencyReplayHeader marks a response served from the idempotency store.
const IdempotencyReplayHeader = "X-Idempotency-Replay"

// DefaultIdempotencyLockTTL bounds how long a key stays marked as in flight.
// It must outlive the slowest request it guards, or a retry arriving after
// expiry is processed a second time.
const DefaultIdempotencyLockTTL = 60 * time.Second

const (
	idempotencyPrefix = "idempotency:"
	processingMarker  = "PROCESSING"
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// A key still being processed yields 409. 5xx responses are not stored so the
// client may retry. Redis errors let the request through unprotected.
// lockTTL is the in-flight marker lifetime; zero means DefaultIdempotencyLockTTL.
func Idempotency(rdb *redis.Client, ttl, lockTTL time.Duration, log *zap.Logger) gin.HandlerFunc {
	if lockTTL <= 0 {
		lockTTL = DefaultIdempotencyLockTTL
	}
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if rdb == nil || key == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		redisKey := idempotencyPrefix + c.FullPath() + ":" + key

		val, err := rdb.Get(ctx, redisKey).Result()
		switch {
		case err == nil && val == processingMarker:
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"success": false,
				"message": "Requête déjà en cours de traitement",
			})
			return
		case err == nil:
			var stored storedResponse
			if jerr := json.Unmarshal([]byte(val), &stored); jerr == nil {
				c.Header(IdempotencyReplayHeader, "true")
				c.Data(stored.Status, stored.ContentType, stored.Body)
				c.Abort()
				return
			}
			log.Warn("discarding malformed idempotency record", zap.String("key", redisKey))
		case !errors.Is(err, redis.Nil):
			log.Warn("idempotency store unavailable", zap.Error(err))
			c.Next()
			return
		}

		acquired, err := rdb.SetNX(ctx, redisKey, processingMarker, lockTTL).Result()
		if err != nil {
			log.Warn("idempotency lock failed", zap.Error(err))
			c.Next()
			return
		}
		if !acquired {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"success": false,
				"message": "Requête déjà en cours de traitement",
			})
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()

		status := w.Status()
		if status >= http.StatusInternalServerError {
			rdb.Del(bg, redisKey)
			return
		}
		payload, err := json.Marshal(storedResponse{
			Status:      status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.buf.Bytes(),
		})
		if err != nil {
			rdb.Del(bg, redisKey)
			return
		}
		if err := rdb.Set(bg, redisKey, payload, ttl).Err(); err != nil {
			log.Warn("failed to store idempotent response", zap.String("key", redisKey), zap.Error(err))
		}
	}
}
