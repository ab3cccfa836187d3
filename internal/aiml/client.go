// Package aiml はAIML API（Veo3動画生成）のHTTPクライアントを提供する。
// ジョブ投入、ステータスポーリング、成果物ダウンロードの3操作を担当する。
package aiml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/donaman/internal/model"
)

// リモートジョブのステータス値。ローカルのJobStateへのマッピングは
// オーケストレーター側で行う。
const (
	StatusQueued     = "queued"
	StatusWaiting    = "waiting"
	StatusActive     = "active"
	StatusGenerating = "generating"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// JobStatus はポーリング1回分の結果。
type JobStatus struct {
	Status   string
	VideoURL string
}

// Client はAIML APIのクライアント。
// ダウンロードには成果物URLが外部供給であることを踏まえ、
// SSRF防止付きのHTTPクライアントを別に使用する。
type Client struct {
	httpClient     *http.Client
	downloadClient *http.Client
	logger         *slog.Logger
	baseURL        string
	model          string
	apiKey         string
	maxDownload    int64
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient, downloadClient *http.Client, logger *slog.Logger, baseURL, modelName, apiKey string, maxDownload int64) *Client {
	return &Client{
		httpClient:     httpClient,
		downloadClient: downloadClient,
		logger:         logger,
		baseURL:        strings.TrimRight(baseURL, "/"),
		model:          modelName,
		apiKey:         apiKey,
		maxDownload:    maxDownload,
	}
}

// HasAPIKey はAPIキーが設定されているかを返す。
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

// generationEndpoint はジョブの作成とポーリングで共用するエンドポイント。
func (c *Client) generationEndpoint() string {
	return c.baseURL + "/generate/video/google/generation"
}

// Submit は動画生成ジョブを投入し、リモートのジョブIDを返す。
// 冪等キーを付与するため、リトライによる二重ジョブ作成は起こらない（ベストエフォート）。
func (c *Client) Submit(ctx context.Context, prompt string) (string, error) {
	if !c.HasAPIKey() {
		return "", &model.RemoteError{Code: http.StatusUnauthorized, Detail: "AIML API key not configured"}
	}

	payload, err := json.Marshal(map[string]string{
		"model":  c.model,
		"prompt": prompt,
	})
	if err != nil {
		return "", fmt.Errorf("ジョブリクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.generationEndpoint(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("ジョブリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s", model.ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: generation API returned status %d", model.ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &model.RemoteError{Code: resp.StatusCode, Detail: strings.TrimSpace(string(detail))}
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: parsing submit response: %s", model.ErrUnavailable, err.Error())
	}
	if result.ID == "" {
		return "", &model.RemoteError{Code: resp.StatusCode, Detail: "response missing generation id"}
	}

	c.logger.Info("動画生成ジョブを投入しました",
		slog.String("generation_id", result.ID),
	)
	return result.ID, nil
}

// Poll は指定ジョブの現在のステータスを取得する。
func (c *Client) Poll(ctx context.Context, generationID string) (JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.generationEndpoint(), nil)
	if err != nil {
		return JobStatus{}, fmt.Errorf("ステータスリクエストの作成に失敗しました: %w", err)
	}
	q := req.URL.Query()
	q.Set("generation_id", generationID)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return JobStatus{}, fmt.Errorf("%w: %s", model.ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return JobStatus{}, fmt.Errorf("%w: status API returned %d", model.ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return JobStatus{}, &model.RemoteError{Code: resp.StatusCode, Detail: strings.TrimSpace(string(detail))}
	}

	var result struct {
		Status string `json:"status"`
		Video  struct {
			URL string `json:"url"`
		} `json:"video"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return JobStatus{}, fmt.Errorf("%w: parsing status response: %s", model.ErrUnavailable, err.Error())
	}

	return JobStatus{Status: result.Status, VideoURL: result.Video.URL}, nil
}

// Download は成果物URLから動画データを取得する。
// URLはプロバイダー供給のため、SSRF防止クライアントで取得し、サイズを制限する。
func (c *Client) Download(ctx context.Context, videoURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ダウンロードリクエストの作成に失敗しました: %w", err)
	}

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: artifact download returned status %d", model.ErrUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxDownload+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading artifact: %s", model.ErrUnavailable, err.Error())
	}
	if int64(len(data)) > c.maxDownload {
		return nil, &model.RemoteError{Code: http.StatusOK, Detail: fmt.Sprintf("artifact exceeds size limit (%d bytes)", c.maxDownload)}
	}

	c.logger.Info("成果物をダウンロードしました",
		slog.Int("size_bytes", len(data)),
	)
	return data, nil
}
