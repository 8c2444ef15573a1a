package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Swaggermuffin64/vim-racing-sub000/internal/logger"
)

func Connect(dsn string) *pgxpool.Pool {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		logger.Fatal("failed to create database pool", "error", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		logger.Fatal("failed to ping database", "error", err)
	}

	logger.Info("database connected")
	return pool
}
