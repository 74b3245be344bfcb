package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/fastygo/relational/internal/infrastructure/buffer"
)

// Backends lists the connections to watch; nil entries are not configured.
type Backends struct {
	Mongo       *mongodriver.Client
	Postgres    *pgxpool.Pool
	Redis       *redislib.Client
	RepairQueue *buffer.Queue
}

type Monitor struct {
	backends Backends

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

func New(backends Backends, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		backends: backends,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (m *Monitor) Start() {
	m.refresh()
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// IsOnline reports whether every store the relationship writes depend on is reachable.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Mongo && m.status.PostgreSQL && m.status.Redis
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.refresh()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) refresh() {
	queueOK, queueSize := m.checkRepairQueue()
	status := Status{
		Mongo:           m.checkMongo(),
		PostgreSQL:      m.checkPostgres(),
		Redis:           m.checkRedis(),
		RepairQueue:     queueOK,
		RepairQueueSize: queueSize,
		LastCheck:       time.Now(),
	}

	m.mu.Lock()
	previous := m.status
	m.status = status
	m.mu.Unlock()

	if previous.LastCheck.IsZero() {
		return
	}
	if previous.Mongo != status.Mongo || previous.PostgreSQL != status.PostgreSQL || previous.Redis != status.Redis {
		m.logger.Warn("backend connectivity changed",
			zap.Bool("mongo", status.Mongo),
			zap.Bool("postgresql", status.PostgreSQL),
			zap.Bool("redis", status.Redis),
		)
	}
}

func (m *Monitor) checkMongo() bool {
	if m.backends.Mongo == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return m.backends.Mongo.Ping(ctx, readpref.Primary()) == nil
}

func (m *Monitor) checkPostgres() bool {
	if m.backends.Postgres == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return m.backends.Postgres.Ping(ctx) == nil
}

func (m *Monitor) checkRedis() bool {
	if m.backends.Redis == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.backends.Redis.Ping(ctx).Err() == nil
}

func (m *Monitor) checkRepairQueue() (bool, int) {
	if m.backends.RepairQueue == nil {
		return false, 0
	}
	size, err := m.backends.RepairQueue.Size()
	if err != nil {
		m.logger.Warn("repair queue size check failed", zap.Error(err))
		return false, size
	}
	return true, size
}
