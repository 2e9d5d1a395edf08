// Package data provides database connection and data access functionality.
package data

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-resty/resty/v2"
	"github.com/jackc/pgx/v4/pgxpool"
	polygon "github.com/polygon-io/client-go/rest"
	"github.com/sirupsen/logrus"

	"valuationcore/internal/config"
)

// Conn encapsulates the valuation core's durable-store and external-client
// handles. It carries no global state; every component that needs storage
// or an external provider is constructed with a *Conn or with the specific
// field it needs.
type Conn struct {
	DB      *pgxpool.Pool
	Cache   *redis.Client // optional: nil when Config.RedisEnabled is false
	Polygon *polygon.Client
	HTTP    *resty.Client // shared client for curve/FX external providers

	Log *logrus.Entry

	ExecutionEnvironment string
}

type dbConnResult struct {
	conn *pgxpool.Pool
	err  error
}

type redisConnResult struct {
	client *redis.Client
	err    error
}

// InitConn establishes the database pool (and, if enabled, the Redis cache)
// using a bounded goroutine+context-timeout retry loop. Failure to connect
// to the primary database is fatal (panic) after the timeout elapses; a
// disabled or unreachable Redis cache is not fatal — Cache is left nil and
// callers fall back to uncached reads.
func InitConn(cfg *config.Config, inContainer bool) (*Conn, func()) {
	log := logrus.WithField("component", "data.conn")

	dbURL := cfg.PostgresURL(inContainer)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	dbResult := make(chan dbConnResult, 1)
	go func() {
		defer close(dbResult)
		var lastErr error
		for {
			select {
			case <-ctx.Done():
				dbResult <- dbConnResult{conn: nil, err: lastErr}
				return
			default:
				poolConfig, parseErr := pgxpool.ParseConfig(dbURL)
				if parseErr != nil {
					lastErr = parseErr
					time.Sleep(1 * time.Second)
					continue
				}
				poolConfig.MaxConns = 30
				poolConfig.MinConns = 5
				poolConfig.MaxConnLifetime = 60 * time.Minute
				poolConfig.MaxConnIdleTime = 5 * time.Minute
				poolConfig.HealthCheckPeriod = 30 * time.Second
				poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second

				dbConn, err := pgxpool.ConnectConfig(ctx, poolConfig)
				if err != nil {
					lastErr = err
					time.Sleep(1 * time.Second)
					continue
				}
				dbResult <- dbConnResult{conn: dbConn, err: nil}
				return
			}
		}
	}()

	dbRes := <-dbResult
	if dbRes.err != nil || dbRes.conn == nil {
		panic(fmt.Sprintf("failed to connect to database after 90 seconds. url=%s err=%v", dbURL, dbRes.err))
	}

	var cache *redis.Client
	if cfg.RedisEnabled {
		cache = connectRedis(cfg, inContainer, log)
	}

	httpClient := resty.New().
		SetTimeout(cfg.ExternalHTTPTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(250 * time.Millisecond)

	var polygonClient *polygon.Client
	if cfg.PolygonAPIKey != "" {
		rawHTTP := &http.Client{Timeout: cfg.ExternalHTTPTimeout}
		polygonClient = polygon.NewWithClient(cfg.PolygonAPIKey, rawHTTP)
		polygonClient.HTTP.SetDisableWarn(true)
		polygonClient.HTTP.SetLogger(noOpLogger{})
	}

	localConn := &Conn{
		DB:                   dbRes.conn,
		Cache:                cache,
		Polygon:              polygonClient,
		HTTP:                 httpClient,
		Log:                  log,
		ExecutionEnvironment: cfg.Environment,
	}

	cleanup := func() {
		if localConn.DB != nil {
			localConn.DB.Close()
		}
		if localConn.Cache != nil {
			if err := localConn.Cache.Close(); err != nil {
				log.WithError(err).Warn("error closing redis cache connection")
			}
		}
	}
	return localConn, cleanup
}

func connectRedis(cfg *config.Config, inContainer bool, log *logrus.Entry) *redis.Client {
	addr := cfg.RedisAddr(inContainer)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	redisResult := make(chan redisConnResult, 1)
	go func() {
		defer close(redisResult)
		var lastErr error
		for {
			select {
			case <-ctx.Done():
				redisResult <- redisConnResult{client: nil, err: lastErr}
				return
			default:
				opts := &redis.Options{
					Addr:            addr,
					PoolSize:        20,
					MinIdleConns:    5,
					PoolTimeout:     30 * time.Second,
					ReadTimeout:     10 * time.Second,
					WriteTimeout:    10 * time.Second,
					MaxRetries:      3,
					MinRetryBackoff: 1 * time.Second,
					MaxRetryBackoff: 5 * time.Second,
					DialTimeout:     5 * time.Second,
				}
				if cfg.RedisPassword != "" {
					opts.Password = cfg.RedisPassword
				}
				client := redis.NewClient(opts)
				if err := client.Ping(ctx).Err(); err != nil {
					lastErr = err
					time.Sleep(1 * time.Second)
					continue
				}
				redisResult <- redisConnResult{client: client, err: nil}
				return
			}
		}
	}()

	res := <-redisResult
	if res.err != nil || res.client == nil {
		log.WithError(res.err).Warn("redis cache unavailable, continuing without it")
		return nil
	}
	return res.client
}

// noOpLogger silences the Polygon SDK's internal HTTP request logging; the
// valuation core logs at the call-site level via logrus instead.
type noOpLogger struct{}

func (noOpLogger) Printf(string, ...interface{}) {}
func (noOpLogger) Errorf(string, ...interface{}) {}
func (noOpLogger) Warnf(string, ...interface{})  {}
func (noOpLogger) Debugf(string, ...interface{}) {}
