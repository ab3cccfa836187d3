// Package donationalerts はDonationAlerts APIのHTTPクライアントを提供する。
// 寄付一覧の取得と、失効したアクセストークンのリフレッシュを担当する。
package donationalerts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/donaman/internal/model"
)

// TokenSource はクライアントが参照・更新するトークンの供給元。
// settings.Storeが実装する。
type TokenSource interface {
	AccessToken() string
	RefreshToken() string
	UpdateTokens(accessToken, refreshToken string)
}

// ClientConfig はDonationAlertsクライアントの設定。
type ClientConfig struct {
	APIBase      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	PageLimit    int
}

// Client はDonationAlerts APIのクライアント。
// 401応答時はリフレッシュトークンでアクセストークンを更新し、1回だけ再試行する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	tokens     TokenSource
	config     ClientConfig
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, tokens TokenSource, config ClientConfig) *Client {
	if config.PageLimit <= 0 {
		config.PageLimit = 10
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		tokens:     tokens,
		config:     config,
	}
}

// FetchRecent は直近の寄付一覧をフィード提供順で取得する。
// トークン未設定はErrMissingToken、認証失敗（リフレッシュ不能）はErrUnauthorized、
// 一時障害はErrUnavailableを返す。
func (c *Client) FetchRecent(ctx context.Context) ([]model.Donation, error) {
	token := c.tokens.AccessToken()
	if token == "" {
		return nil, model.ErrMissingToken
	}

	donations, status, err := c.fetchPage(ctx, token)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		c.logger.Warn("認証エラー（401）のためトークンリフレッシュを試みます")
		if refreshErr := c.refreshAccessToken(ctx); refreshErr != nil {
			return nil, fmt.Errorf("token refresh failed: %w", model.ErrUnauthorized)
		}
		donations, status, err = c.fetchPage(ctx, c.tokens.AccessToken())
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, model.ErrUnauthorized
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: donation feed returned status %d", model.ErrUnavailable, status)
	}

	return donations, nil
}

// fetchPage は寄付一覧の1ページを取得する。
// 200の場合はパース済み寄付、401の場合は呼び出し元でのリフレッシュ判断のために
// ステータスのみを返す。その他のステータスもステータスとして返す。
func (c *Client) fetchPage(ctx context.Context, token string) ([]model.Donation, int, error) {
	endpoint := fmt.Sprintf("%s/alerts/donations?page=1&limit=%d",
		strings.TrimRight(c.config.APIBase, "/"), c.config.PageLimit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("寄付一覧リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s", model.ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading donation feed: %s", model.ErrUnavailable, err.Error())
	}

	var payload struct {
		Data []donationPayload `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, 0, fmt.Errorf("%w: parsing donation feed: %s", model.ErrUnavailable, err.Error())
	}

	donations := make([]model.Donation, 0, len(payload.Data))
	for _, d := range payload.Data {
		donations = append(donations, d.toDonation())
	}
	return donations, http.StatusOK, nil
}

// refreshAccessToken はリフレッシュトークングラントでアクセストークンを更新する。
// 成功時はTokenSourceへ新しいトークンペアを反映する。
func (c *Client) refreshAccessToken(ctx context.Context) error {
	refreshToken := c.tokens.RefreshToken()
	if c.config.ClientID == "" || c.config.ClientSecret == "" || refreshToken == "" {
		return fmt.Errorf("refresh credentials not configured")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.config.ClientID)
	form.Set("client_secret", c.config.ClientSecret)
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("トークンリフレッシュリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", model.ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("parsing token response: %w", err)
	}
	if payload.AccessToken == "" {
		return fmt.Errorf("token response missing access_token")
	}

	c.tokens.UpdateTokens(payload.AccessToken, payload.RefreshToken)
	c.logger.Info("アクセストークンをリフレッシュしました",
		slog.Int("expires_in", payload.ExpiresIn),
	)
	return nil
}

// donationPayload はDonationAlertsのレスポンス形式。
// IDは数値、金額は数値または文字列で届くため柔軟にパースする。
type donationPayload struct {
	ID        json.Number `json:"id"`
	Username  string      `json:"username"`
	Amount    json.Number `json:"amount"`
	Currency  string      `json:"currency"`
	Message   string      `json:"message"`
	IsTest    flexBool    `json:"is_test"`
	AlertType string      `json:"alert_type"`
	CreatedAt string      `json:"created_at"`
}

// toDonation はAPIペイロードをドメインモデルへ変換する。
func (p donationPayload) toDonation() model.Donation {
	amount, _ := p.Amount.Float64()
	username := p.Username
	if username == "" {
		username = "Anonymous"
	}
	return model.Donation{
		ID:        p.ID.String(),
		Username:  username,
		Amount:    amount,
		Currency:  p.Currency,
		Message:   p.Message,
		IsTest:    bool(p.IsTest) || strings.EqualFold(p.AlertType, "test"),
		CreatedAt: parseCreatedAt(p.CreatedAt),
	}
}

// createdAtLayouts はフィードで観測される日時フォーマット。
var createdAtLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// parseCreatedAt はフィードの日時文字列をUTCとしてパースする。
// パース不能な場合はゼロ値を返す（鮮度判定で古い寄付として扱われる）。
func parseCreatedAt(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

// flexBool はtrue/false/1/0のいずれでも受けられるbool。
type flexBool bool

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "true", "1", `"1"`, `"true"`:
		*b = true
	default:
		*b = false
	}
	return nil
}
