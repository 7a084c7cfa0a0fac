package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/iho/goescrow/internal/usecase"
)

const (
	// IdempotencyKeyHeader is the metadata key for idempotency
	IdempotencyKeyHeader = "x-idempotency-key"

	// ReplayHeader is set on responses served from the idempotency store.
	ReplayHeader = "x-idempotency-replay"
)

// storedCall is what the store keeps for a completed call.
type storedCall struct {
	RequestHash string `json:"request_hash"`
	Response    []byte `json:"response"`
}

// IdempotencyInterceptor replays the response of a completed call that
// carried the same idempotency key. Reusing a key with a different request
// is rejected and failed calls release their key.
func IdempotencyInterceptor(store usecase.IdempotencyStore, ttl time.Duration, readOnly ...string) grpc.UnaryServerInterceptor {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	skip := make(map[string]bool, len(readOnly))
	for _, method := range readOnly {
		skip[method] = true
	}

	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if store == nil || skip[info.FullMethod] {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return handler(ctx, req)
		}

		keys := md.Get(IdempotencyKeyHeader)
		if len(keys) == 0 {
			return handler(ctx, req)
		}

		idempotencyKey := keys[0]
		if idempotencyKey == "" {
			return nil, status.Error(codes.InvalidArgument, "idempotency key cannot be empty")
		}

		cacheKey := fmt.Sprintf("grpc:%s:%s", info.FullMethod, idempotencyKey)

		requestHash, err := hashRequest(req)
		if err != nil {
			return nil, status.Error(codes.Internal, "failed to generate request hash")
		}

		exists, cached, err := store.CheckAndSet(ctx, cacheKey, nil, ttl)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("idempotency check failed")
			return nil, status.Error(codes.Unavailable, "idempotency check failed")
		}

		if exists {
			return replay(ctx, cached, requestHash)
		}

		resp, err := handler(ctx, req)
		if err != nil {
			if releaseErr := store.Release(ctx, cacheKey); releaseErr != nil {
				zerolog.Ctx(ctx).Warn().Err(releaseErr).Str("key", idempotencyKey).Msg("failed to release idempotency key")
			}
			return resp, err
		}

		if err := save(ctx, store, cacheKey, ttl, requestHash, resp); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("key", idempotencyKey).Msg("failed to store idempotent response")
		}

		return resp, nil
	}
}

func replay(ctx context.Context, cached []byte, requestHash string) (any, error) {
	if string(cached) == usecase.IdempotencyInFlight {
		return nil, status.Error(codes.Aborted, "a request with this idempotency key is in progress")
	}

	var stored storedCall
	if err := json.Unmarshal(cached, &stored); err != nil {
		return nil, status.Error(codes.Internal, "corrupt idempotency record")
	}

	if stored.RequestHash != requestHash {
		return nil, status.Error(codes.InvalidArgument, "idempotency key reused with different request body")
	}

	resp := &structpb.Struct{}
	if err := proto.Unmarshal(stored.Response, resp); err != nil {
		return nil, status.Error(codes.Internal, "corrupt idempotency record")
	}

	_ = grpc.SetHeader(ctx, metadata.Pairs(ReplayHeader, "true"))

	return resp, nil
}

func save(ctx context.Context, store usecase.IdempotencyStore, key string, ttl time.Duration, requestHash string, resp any) error {
	msg, ok := resp.(proto.Message)
	if !ok {
		return fmt.Errorf("response %T is not a proto message", resp)
	}

	body, err := proto.Marshal(msg)
	if err != nil {
		return err
	}

	record, err := json.Marshal(storedCall{RequestHash: requestHash, Response: body})
	if err != nil {
		return err
	}

	return store.Update(ctx, key, record, ttl)
}

// hashRequest fingerprints the request so that a reused key with a
// different body can be detected.
func hashRequest(req any) (string, error) {
	if protoMsg, ok := req.(proto.Message); ok {
		data, err := proto.MarshalOptions{Deterministic: true}.Marshal(protoMsg)
		if err != nil {
			return "", err
		}

		hash := sha256.Sum256(data)
		return hex.EncodeToString(hash[:]), nil
	}

	data := []byte(fmt.Sprintf("%+v", req))
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}
