// Package generation は動画生成ジョブのオーケストレーションを提供する。
// プロンプト構築、ジョブの状態機械、成果物ファイルの保存を含む。
package generation

import (
	"fmt"
	"strings"

	"github.com/hitoshi/donaman/internal/model"
)

// Sanitizer はプロンプトへ埋め込む外部入力の無害化インターフェース。
type Sanitizer interface {
	Sanitize(raw string) string
}

// SystemPromptSource はシステムプロンプトの読み取りインターフェース。
type SystemPromptSource interface {
	SystemPrompt() string
}

// promptTier は金額帯ごとのフォールバックプロンプト。
// 寄付メッセージが空の場合に、金額に応じた演出を選ぶ。
type promptTier struct {
	minRUB float64
	base   string
}

// 金額の大きい順に評価する
var promptTiers = []promptTier{
	{50000, "A legendary dragon made of pure golden light soaring through crystal clouds, breathing rainbow fire that transforms into celebration fireworks, epic fantasy atmosphere with orchestral crescendo."},
	{10000, "An otherworldly cosmic celebration with stars exploding into rainbow colors, nebula clouds dancing through space, celestial music visualized as light waves across the universe."},
	{5000, "A grand royal celebration in a magnificent palace hall with golden chandeliers, flowing silk banners, rose petals falling gracefully, and majestic orchestral atmosphere."},
	{2000, "An epic fireworks display lighting up the night sky with brilliant colors, golden sparks cascading down like a waterfall of light, celebration atmosphere with magical sparkles."},
	{1000, "A spectacular celebration with golden confetti falling from the sky, sparkling lights, and festive decorations. Camera slowly zooms in on celebration scene with warm, joyful lighting."},
}

// fallbackPrompt は金額（RUB）に応じたフォールバックプロンプトを返す。
func fallbackPrompt(amountRUB float64) string {
	for _, tier := range promptTiers {
		if amountRUB >= tier.minRUB {
			return tier.base + amountEnhancement(amountRUB)
		}
	}
	return fmt.Sprintf("A beautiful celebration with sparkling lights and festive atmosphere, honoring a generous donation of %.0f RUB.", amountRUB)
}

func amountEnhancement(amountRUB float64) string {
	switch {
	case amountRUB >= 50000:
		return fmt.Sprintf(" This celebration honors an extraordinary donation of %.0f RUB - truly legendary generosity!", amountRUB)
	case amountRUB >= 10000:
		return fmt.Sprintf(" This magnificent celebration celebrates %.0f RUB of incredible generosity!", amountRUB)
	case amountRUB >= 5000:
		return fmt.Sprintf(" This grand celebration honors %.0f RUB of amazing support!", amountRUB)
	case amountRUB >= 2000:
		return fmt.Sprintf(" This epic celebration is for %.0f RUB of wonderful generosity!", amountRUB)
	default:
		return fmt.Sprintf(" This beautiful celebration thanks the donor for %.0f RUB!", amountRUB)
	}
}

// PromptBuilder は寄付情報と設定から生成プロンプトを組み立てる。
type PromptBuilder struct {
	sanitizer Sanitizer
	settings  SystemPromptSource
}

// NewPromptBuilder はPromptBuilderの新しいインスタンスを生成する。
func NewPromptBuilder(sanitizer Sanitizer, settings SystemPromptSource) *PromptBuilder {
	return &PromptBuilder{sanitizer: sanitizer, settings: settings}
}

// FromDonation は寄付イベントからプロンプトを組み立てる。
// 寄付メッセージがあればそれを（無害化して）ベースとし、
// 無ければ金額帯のフォールバックプロンプトを使用する。
// システムプロンプトが設定されていれば先頭に付加する。
func (b *PromptBuilder) FromDonation(event model.DonationEvent) string {
	message := b.sanitizer.Sanitize(event.Donation.Message)

	var base string
	if message != "" {
		base = message
	} else {
		base = fallbackPrompt(event.AmountRUB)
	}
	return b.applySystemPrompt(base)
}

// FromManual は手動投入されたプロンプトを無害化して組み立てる。
// 無害化後に空となるプロンプトは受け付けない。
func (b *PromptBuilder) FromManual(raw string) (string, error) {
	cleaned := b.sanitizer.Sanitize(raw)
	if cleaned == "" {
		return "", model.NewInvalidPromptError()
	}
	return b.applySystemPrompt(cleaned), nil
}

func (b *PromptBuilder) applySystemPrompt(base string) string {
	system := strings.TrimSpace(b.settings.SystemPrompt())
	if system == "" {
		return base
	}
	return system + "\n\n" + base
}
