package logger

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Entry は直近ログバッファが保持する1件のログレコード。
type Entry struct {
	Time    time.Time         `json:"time"`
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// Buffer は直近のログレコードを固定件数だけ保持するリングバッファ。
// 容量を超えると古いレコードから上書きされる。診断API用で、
// 永続ログはJSON構造化ログ側が担う。
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// NewBuffer はBufferの新しいインスタンスを生成する。
// capacityが0以下の場合は200を使用する。
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 200
	}
	return &Buffer{entries: make([]Entry, capacity)}
}

func (b *Buffer) add(e Entry) {
	b.mu.Lock()
	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
	b.mu.Unlock()
}

// Recent は直近のログレコードを新しい順で最大limit件返す。
// limitが0以下の場合は保持中の全件を返す。
func (b *Buffer) Recent(limit int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := b.next
	if b.full {
		size = len(b.entries)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]Entry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (b.next - i + len(b.entries)) % len(b.entries)
		out = append(out, b.entries[idx])
	}
	return out
}

// bufferHandler はログレコードをバッファへ複製してから内側のハンドラへ委譲する。
type bufferHandler struct {
	inner slog.Handler
	buf   *Buffer
	attrs []slog.Attr
}

func (h *bufferHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *bufferHandler) Handle(ctx context.Context, rec slog.Record) error {
	attrs := make(map[string]string, rec.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.String()
	}
	rec.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.String()
		return true
	})
	if len(attrs) == 0 {
		attrs = nil
	}

	h.buf.add(Entry{
		Time:    rec.Time,
		Level:   rec.Level.String(),
		Message: rec.Message,
		Attrs:   attrs,
	})
	return h.inner.Handle(ctx, rec)
}

func (h *bufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(append(merged, h.attrs...), attrs...)
	return &bufferHandler{inner: h.inner.WithAttrs(attrs), buf: h.buf, attrs: merged}
}

func (h *bufferHandler) WithGroup(name string) slog.Handler {
	return &bufferHandler{inner: h.inner.WithGroup(name), buf: h.buf, attrs: h.attrs}
}

// SetupWithBuffer はJSON構造化ログと直近ログバッファの両方へ出力する
// slog.Loggerを生成する。バッファは診断APIから参照する。
func SetupWithBuffer(w io.Writer, level slog.Level, capacity int) (*slog.Logger, *Buffer) {
	buf := NewBuffer(capacity)
	inner := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(&bufferHandler{inner: inner, buf: buf}), buf
}
