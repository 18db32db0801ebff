package relationaldb

import (
	"context"
	"log"
	"sync"
	"time"
)

// Logger interface for dependency injection.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// DefaultLogger provides a basic logger implementation.
type DefaultLogger struct {
	logger *log.Logger
}

func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{logger: log.Default()}
}

func (l *DefaultLogger) Debug(msg string, fields ...interface{}) {
	l.logger.Printf("[DEBUG] "+msg, fields...)
}

func (l *DefaultLogger) Info(msg string, fields ...interface{}) {
	l.logger.Printf("[INFO] "+msg, fields...)
}

func (l *DefaultLogger) Warn(msg string, fields ...interface{}) {
	l.logger.Printf("[WARN] "+msg, fields...)
}

func (l *DefaultLogger) Error(msg string, fields ...interface{}) {
	l.logger.Printf("[ERROR] "+msg, fields...)
}

// Manager provides lifecycle management around a RepositoryManager:
// connection state, periodic health checks and retry of transient failures.
type Manager struct {
	repos  RepositoryManager
	config *Config
	logger Logger

	healthCheckInterval time.Duration
	healthCtx           context.Context
	healthCancel        context.CancelFunc
	healthWg            sync.WaitGroup

	mu        sync.RWMutex
	connected bool
	lastError error
}

// ManagerOption defines functional options for Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger for the manager.
func WithLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithHealthCheckInterval sets the health check interval.
func WithHealthCheckInterval(interval time.Duration) ManagerOption {
	return func(m *Manager) {
		m.healthCheckInterval = interval
	}
}

// NewManager creates a new database manager.
func NewManager(repos RepositoryManager, config *Config, options ...ManagerOption) *Manager {
	manager := &Manager{
		repos:               repos,
		config:              config,
		logger:              NewDefaultLogger(),
		healthCheckInterval: time.Minute,
	}
	for _, option := range options {
		option(manager)
	}
	return manager
}

// Open opens the database connection and starts the health checker.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return nil
	}

	if err := m.repos.Open(ctx); err != nil {
		m.lastError = err
		m.logger.Error("Failed to open database connection: %v", err)
		return WrapError(err, "open_database")
	}
	if err := m.repos.Ping(ctx); err != nil {
		m.lastError = err
		m.logger.Error("Initial database health check failed: %v", err)
		return WrapError(err, "initial_health_check")
	}

	m.connected = true
	m.lastError = nil
	m.startHealthChecker()

	m.logger.Info("Database opened (driver=%s database=%s)", m.config.Driver, m.config.Database)
	return nil
}

// Close stops the health checker and closes the connection.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	m.stopHealthChecker()
	if err := m.repos.Close(ctx); err != nil {
		m.logger.Error("Failed to close database connection: %v", err)
		return WrapError(err, "close_database")
	}

	m.connected = false
	m.lastError = nil
	return nil
}

// IsConnected returns whether the database is connected.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// LastError returns the last error encountered.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// HealthCheck performs a manual health check.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if !m.IsConnected() {
		return ErrDatabaseClosed
	}
	if err := m.repos.Ping(ctx); err != nil {
		m.mu.Lock()
		m.lastError = err
		m.mu.Unlock()
		m.logger.Error("Health check failed: %v", err)
		return WrapError(err, "health_check")
	}
	return nil
}

// ExecuteWithRetry runs operation, retrying transient failures with linear
// backoff capped at RetryMaxDelay.
func (m *Manager) ExecuteWithRetry(ctx context.Context, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt <= m.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * m.config.RetryDelay
			if delay > m.config.RetryMaxDelay {
				delay = m.config.RetryMaxDelay
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if lastErr = operation(); lastErr == nil {
			if attempt > 0 {
				m.logger.Info("Operation succeeded after %d retries", attempt)
			}
			return nil
		}
		if !IsRetryable(lastErr) {
			break
		}
		m.logger.Debug("Retryable database error (attempt %d): %v", attempt, lastErr)
	}
	return WrapError(lastErr, "execute_with_retry")
}

// Repositories returns the underlying repository manager.
func (m *Manager) Repositories() RepositoryManager {
	return m.repos
}

// GetConfig returns the configuration.
func (m *Manager) GetConfig() *Config {
	return m.config
}

func (m *Manager) startHealthChecker() {
	m.healthCtx, m.healthCancel = context.WithCancel(context.Background())

	m.healthWg.Add(1)
	go func() {
		defer m.healthWg.Done()

		ticker := time.NewTicker(m.healthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-m.healthCtx.Done():
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(m.healthCtx, time.Second*10)
				if err := m.HealthCheck(ctx); err != nil {
					m.logger.Error("Background health check failed: %v", err)
				}
				cancel()
			}
		}
	}()
}

func (m *Manager) stopHealthChecker() {
	if m.healthCancel != nil {
		m.healthCancel()
		m.healthWg.Wait()
	}
}
