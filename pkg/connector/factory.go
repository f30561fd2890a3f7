package connector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/1vers1on/uls-ingress/pkg/config"
)

// ConnectorFactory creates destination connectors
type ConnectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewConnectorFactory creates a new connector factory
func NewConnectorFactory(cfg *config.Config, logger *zap.Logger) *ConnectorFactory {
	return &ConnectorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateDestination opens the connector selected by DESTINATION
func (f *ConnectorFactory) CreateDestination(ctx context.Context) (Destination, error) {
	f.logger.Info("Creating destination connector", zap.String("destination", f.cfg.Destination))

	switch f.cfg.Destination {
	case config.DestinationPostgres:
		conn, err := NewPostgresConnector(ctx, f.cfg.Postgres, f.cfg.Table, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL connector: %w", err)
		}
		return conn, nil
	case config.DestinationMySQL:
		conn, err := NewMySQLConnector(ctx, f.cfg.MySQL, f.cfg.Table, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create MySQL connector: %w", err)
		}
		return conn, nil
	case config.DestinationSnowflake:
		conn, err := NewSnowflakeConnector(ctx, f.cfg.Snowflake, f.cfg.Table, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Snowflake connector: %w", err)
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("unsupported destination %q", f.cfg.Destination)
	}
}
