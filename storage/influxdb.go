package storage

import (
	"context"
	"errors"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/eddielth/edge-nodes/config"
	"github.com/eddielth/edge-nodes/logger"
)

// InfluxDBStorage writes each reading as one point with temperature,
// humidity and pressure fields, tagged by topic.
type InfluxDBStorage struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	measurement string
}

// NewInfluxDBStorage connects and pings the server.
func NewInfluxDBStorage(cfg config.InfluxDBStorageConfig) (*InfluxDBStorage, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influxdb: url, org and bucket are required")
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb: ping failed: %w", err)
	}
	if !healthy {
		client.Close()
		return nil, errors.New("influxdb: server not healthy")
	}

	measurement := cfg.Measurement
	if measurement == "" {
		measurement = "environment"
	}

	logger.Info("InfluxDB storage ready: %s org=%s bucket=%s", cfg.URL, cfg.Org, cfg.Bucket)
	return &InfluxDBStorage{
		client:      client,
		writeAPI:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: measurement,
	}, nil
}

// Point converts rec to an InfluxDB point.
func (s *InfluxDBStorage) Point(rec Record) *write.Point {
	return write.NewPoint(
		s.measurement,
		map[string]string{
			"topic": rec.Topic,
		},
		map[string]interface{}{
			"temperature": rec.Reading.Temperature,
			"humidity":    rec.Reading.Humidity,
			"pressure":    rec.Reading.Pressure,
		},
		rec.ReceivedAt,
	)
}

// Store writes rec synchronously.
func (s *InfluxDBStorage) Store(ctx context.Context, rec Record) error {
	if err := s.writeAPI.WritePoint(ctx, s.Point(rec)); err != nil {
		return fmt.Errorf("influxdb: write point: %w", err)
	}
	return nil
}

// Close releases the client.
func (s *InfluxDBStorage) Close() error {
	s.client.Close()
	return nil
}
