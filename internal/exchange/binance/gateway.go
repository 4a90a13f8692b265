// Package binance implements every gateway contract against Binance USDⓈ-M
// futures using the go-binance client.
package binance

import (
	"net/http"

	futures "github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"github.com/kleberhub/binance-futures-bot/config"
	"github.com/kleberhub/binance-futures-bot/logger"
)

// Gateway is a signed Binance futures client shared by the market-data,
// account, order and metadata contracts. All outbound calls pass through one
// rate limiter so the bot never exceeds its request budget no matter how many
// workers fan out.
type Gateway struct {
	cfg     *config.Config
	client  *futures.Client
	limiter *rate.Limiter
	log     *logger.Log

	precisions precisionCache
}

// NewGateway creates a Gateway from the exchange section of the configuration.
func NewGateway(cfg *config.Config) *Gateway {
	log := logger.GetLogger()

	transport := &http.Transport{
		MaxIdleConns:        cfg.Exchange.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Exchange.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.Exchange.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.Exchange.ConnectionPool.IdleConnTimeout,
		DisableCompression:  false,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.Exchange.Timeout,
	}

	client := futures.NewClient(cfg.Exchange.APIKey, cfg.Exchange.APISecret)
	client.HTTPClient = httpClient
	if cfg.Exchange.BaseURL != "" {
		client.SetApiEndpoint(cfg.Exchange.BaseURL)
	}

	rps := cfg.Exchange.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Exchange.RateLimit.BurstSize
	if burst <= 0 {
		burst = rps
	}

	g := &Gateway{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log,
	}

	log.WithComponent("binance_gateway").WithFields(logger.Fields{
		"requests_per_second": rps,
		"burst":               burst,
		"timeout":             cfg.Exchange.Timeout,
	}).Info("binance gateway initialized")

	return g
}
