package main

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/goescrow/internal/domain"
	"github.com/iho/goescrow/internal/infrastructure/config"
	"github.com/iho/goescrow/internal/infrastructure/eventpublisher"
	"github.com/iho/goescrow/internal/infrastructure/metrics"
	"github.com/iho/goescrow/internal/usecase"
)

func TestListenAddr(t *testing.T) {
	if got := listenAddr("8080"); got != ":8080" {
		t.Fatalf("expected :8080, got %s", got)
	}
}

func TestNewPublisher(t *testing.T) {
	pub, closeFn, err := newPublisher(&config.Config{EventPublisher: config.EventPublisherLog}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &eventpublisher.LogPublisher{}, pub)
	closeFn()

	pub, closeFn, err = newPublisher(&config.Config{
		EventPublisher:   config.EventPublisherKafka,
		KafkaBrokers:     []string{"localhost:9092"},
		KafkaTopicPrefix: "goescrow",
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &eventpublisher.KafkaPublisher{}, pub)
	closeFn()

	_, _, err = newPublisher(&config.Config{EventPublisher: config.EventPublisherKafka}, zerolog.Nop())
	assert.Error(t, err)
}

func TestMemoryStorageServesUseCases(t *testing.T) {
	cfg := &config.Config{StorageDriver: config.StorageDriverMemory}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	store, err := openStorage(context.Background(), cfg, zerolog.Nop(), m)
	require.NoError(t, err)
	defer store.close()
	require.NoError(t, store.ping(context.Background()))

	uc, err := newUseCases(cfg, store, nil, m)
	require.NoError(t, err)

	ctx := domain.ContextWithActor(context.Background(), domain.SystemActor())
	account, err := uc.accounts.CreateAccount(ctx, usecase.CreateAccountInput{
		Kind:     domain.AccountKindClient,
		OwnerID:  "client-1",
		Name:     "Client",
		Currency: "USD",
	})
	require.NoError(t, err)

	balance, err := uc.ledger.GetBalance(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestNewUseCasesRejectsFeeWithoutPlatformAccount(t *testing.T) {
	cfg := &config.Config{
		StorageDriver:   config.StorageDriverMemory,
		PlatformFeeRate: decimal.RequireFromString("0.05"),
	}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	store, err := openStorage(context.Background(), cfg, zerolog.Nop(), m)
	require.NoError(t, err)

	_, err = newUseCases(cfg, store, nil, m)
	assert.Error(t, err)
}
