package clients

import (
	"context"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/skinsync/internal/domain"
	"github.com/vadiminshakov/skinsync/pkg/retrier"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512

	pricePath           = "/auth/price"
	historyPath         = "/auth/history"
	predictPath         = "/auth/predict_price"
	recommendationsPath = "/auth/recommendations"
	resetCachePath      = "/auth/reset_cache"
	favoritesPath       = "/auth/favorites"
)

// MarketConfig holds remote API settings.
type MarketConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// MaxRetries retries of transient failures (transport errors, 5xx). 429 and 401 are never retried.
	MaxRetries int
	// RetryInterval initial backoff interval.
	RetryInterval time.Duration
}

// MarketClient talks to the remote price/history/prediction/recommendation API.
type MarketClient struct {
	http    *resty.Client
	retrier *retrier.Retrier
	logger  *zap.Logger
}

// NewMarketClient creates a client for the remote market API.
func NewMarketClient(cfg MarketConfig, logger *zap.Logger) (*MarketClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("market API base URL is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	retryOpts := []retrier.Option{
		retrier.WithMaxRetries(cfg.MaxRetries),
		retrier.WithRetryIf(IsTransient),
	}
	if cfg.RetryInterval > 0 {
		retryOpts = append(retryOpts, retrier.WithInitialInterval(cfg.RetryInterval))
	}
	rt := retrier.New(retryOpts...)

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		client.SetQueryParam("token", cfg.Token)
	}

	return &MarketClient{http: client, retrier: rt, logger: logger}, nil
}

type priceResponse struct {
	SteamPrice       *domain.RemotePrice `json:"steam_price"`
	MarketPrice      *domain.RemotePrice `json:"market_price"`
	MarketCSGOPrice  *domain.RemotePrice `json:"market_csgo_price"`
	MarketDota2Price *domain.RemotePrice `json:"market_dota2_price"`
	LisSkinsPrice    *domain.RemotePrice `json:"lis_skins_price"`
}

func pick(prices ...*domain.RemotePrice) domain.Price {
	for _, p := range prices {
		if p != nil && p.IsAvailable() {
			return p.Price
		}
	}
	return domain.Unavailable()
}

func (r priceResponse) quote(appID string) domain.PriceQuote {
	market := pick(r.MarketPrice, r.MarketDota2Price, r.MarketCSGOPrice)
	if appID == "730" {
		market = pick(r.MarketPrice, r.MarketCSGOPrice)
	}
	return domain.PriceQuote{
		Steam:    pick(r.SteamPrice),
		Market:   market,
		LisSkins: pick(r.LisSkinsPrice),
	}
}

// Price fetches the current quote of an item.
func (c *MarketClient) Price(ctx context.Context, item domain.Item, forceRefresh bool) (domain.PriceQuote, error) {
	out, err := fetch[priceResponse](ctx, c, pricePath, map[string]string{
		"appid":            item.AppID,
		"market_hash_name": item.MarketHashName,
		"force_refresh":    strconv.FormatBool(forceRefresh),
	})
	if err != nil {
		return domain.PriceQuote{}, errors.Wrapf(err, "fetch price for %s", item.Key())
	}
	return out.quote(item.AppID), nil
}

type historyResponse struct {
	History domain.History `json:"history"`
}

// History fetches the price history of an item, ascending by date.
func (c *MarketClient) History(ctx context.Context, item domain.Item) (domain.History, error) {
	out, err := fetch[historyResponse](ctx, c, historyPath, map[string]string{
		"appid":            item.AppID,
		"market_hash_name": item.MarketHashName,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetch history for %s", item.Key())
	}
	if out.History == nil {
		out.History = domain.History{}
	}
	return out.History, nil
}

// PredictPrice fetches the raw remote prediction for horizon days ahead.
func (c *MarketClient) PredictPrice(ctx context.Context, item domain.Item, horizon int) (domain.RawPrediction, error) {
	out, err := fetch[domain.RawPrediction](ctx, c, predictPath, map[string]string{
		"appid":            item.AppID,
		"market_hash_name": item.MarketHashName,
		"horizon":          strconv.Itoa(horizon),
	})
	if err != nil {
		return domain.RawPrediction{}, errors.Wrapf(err, "fetch prediction for %s", item.Key())
	}
	return out, nil
}

// SaveRecommendations stores a recommendation snapshot in the remote snapshot store.
func (c *MarketClient) SaveRecommendations(ctx context.Context, snapshot domain.RecommendationSnapshot) error {
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(snapshot).
			Post(recommendationsPath)
		return c.check(resp, err)
	})
	return errors.Wrap(err, "save recommendations")
}

// LastRecommendations loads the last stored snapshot.
func (c *MarketClient) LastRecommendations(ctx context.Context) (domain.RecommendationSnapshot, error) {
	out, err := fetch[domain.RecommendationSnapshot](ctx, c, recommendationsPath, nil)
	if err != nil {
		return domain.RecommendationSnapshot{}, errors.Wrap(err, "load recommendations")
	}
	return out, nil
}

// ResetCache invalidates the server-side cache.
func (c *MarketClient) ResetCache(ctx context.Context) error {
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		resp, err := c.http.R().SetContext(ctx).Get(resetCachePath)
		return c.check(resp, err)
	})
	return errors.Wrap(err, "reset remote cache")
}

type favoritesResponse struct {
	Items []domain.Item `json:"items"`
}

// Favorites returns the user's favorite items.
func (c *MarketClient) Favorites(ctx context.Context) ([]domain.Item, error) {
	out, err := fetch[favoritesResponse](ctx, c, favoritesPath, nil)
	if err != nil {
		return nil, errors.Wrap(err, "fetch favorites")
	}
	return out.Items, nil
}

// fetch GETs path with retries, decoding every attempt into a fresh T.
func fetch[T any](ctx context.Context, c *MarketClient, path string, params map[string]string) (T, error) {
	return retrier.DoWithData(c.retrier, ctx, func(ctx context.Context) (T, error) {
		var out T
		resp, err := c.http.R().SetContext(ctx).SetQueryParams(params).SetResult(&out).Get(path)
		if cerr := c.check(resp, err); cerr != nil {
			c.logger.Debug("market API request failed", zap.String("path", path), zap.Error(cerr))
			return out, cerr
		}
		return out, nil
	})
}

func (c *MarketClient) check(resp *resty.Response, err error) error {
	if err != nil {
		return errors.Wrap(ErrNetworkFailure, err.Error())
	}
	if resp.IsError() || resp.StatusCode() >= 300 {
		body := resp.String()
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return statusError(resp.StatusCode(), body)
	}
	return nil
}
