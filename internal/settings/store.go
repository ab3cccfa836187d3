// Package settings は実行中に変化する設定値のスレッドセーフな保持を提供する。
// 閾値、アクセストークン、システムプロンプトはAPIから随時更新され、
// ポーラーやオーケストレーターが評価時点の最新値を読み取る。
// すべてインメモリであり、プロセス再起動で失われる（設計上の非永続）。
package settings

import "sync"

// Store は実行中に変化する設定値を保持する。
// ゼロ値では閾値0のため、NewStoreで初期値を与えて生成する。
type Store struct {
	mu           sync.RWMutex
	thresholdRUB float64
	accessToken  string
	refreshToken string
	systemPrompt string
}

// NewStore は初期閾値とリフレッシュトークンを設定したStoreを生成する。
func NewStore(thresholdRUB float64, refreshToken string) *Store {
	return &Store{
		thresholdRUB: thresholdRUB,
		refreshToken: refreshToken,
	}
}

// Threshold は現在の閾値（RUB）を返す。
// ポーラーは寄付の評価のたびにこの値を読み直す。
func (s *Store) Threshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholdRUB
}

// SetThreshold は閾値（RUB）を更新する。
func (s *Store) SetThreshold(rub float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholdRUB = rub
}

// AccessToken は現在のアクセストークンを返す。未設定の場合は空文字列。
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// SetAccessToken はアクセストークンを更新する。空文字列でクリアできる。
func (s *Store) SetAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = token
}

// ClearAccessToken はアクセストークンをクリアする。
// 401応答を受けてポーラーが失効トークンを破棄する際に使用する。
func (s *Store) ClearAccessToken() {
	s.SetAccessToken("")
}

// RefreshToken は現在のリフレッシュトークンを返す。
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// UpdateTokens はトークンリフレッシュ成功時にアクセストークンと
// リフレッシュトークンを同時に更新する。
func (s *Store) UpdateTokens(accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = accessToken
	if refreshToken != "" {
		s.refreshToken = refreshToken
	}
}

// SystemPrompt は現在のシステムプロンプトを返す。
func (s *Store) SystemPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.systemPrompt
}

// SetSystemPrompt はシステムプロンプトを更新する。
func (s *Store) SetSystemPrompt(prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.systemPrompt = prompt
}
