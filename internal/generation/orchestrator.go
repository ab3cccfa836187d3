package generation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/donaman/internal/aiml"
	"github.com/hitoshi/donaman/internal/model"
)

// JobClient は生成プロバイダーへの操作インターフェース。
type JobClient interface {
	Submit(ctx context.Context, prompt string) (string, error)
	Poll(ctx context.Context, generationID string) (aiml.JobStatus, error)
	Download(ctx context.Context, videoURL string) ([]byte, error)
}

// ArtifactValidator は成果物URLの事前検証インターフェース。
type ArtifactValidator interface {
	ValidateURL(rawURL string) error
}

// VideoSaver は成果物データの保存インターフェース。
type VideoSaver interface {
	Save(data []byte) (string, error)
}

// Publisher は完成した動画を再生側へ通知するインターフェース。
type Publisher interface {
	Publish(videoRef string)
}

// metricsRecorder はオーケストレーターが記録するメトリクスのインターフェース。
type metricsRecorder interface {
	RecordGeneration(state string, duration time.Duration)
}

// Orchestrator は動画生成ジョブの状態機械。
// 同時に実行できるジョブは1件のみで、実行中の投入はErrBusyで拒否する。
// ジョブは投入→ポーリング→ダウンロード→保存と前進し、終端状態に達すると
// 次の投入を受け付ける。状態の読み書きはロック下で行い、ネットワーク
// 呼び出し中はロックを保持しない。
type Orchestrator struct {
	client    JobClient
	validator ArtifactValidator
	store     VideoSaver
	publisher Publisher
	prompts   *PromptBuilder
	logger    *slog.Logger
	metrics   metricsRecorder

	pollInterval time.Duration
	timeout      time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	job     model.GenerationJob
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
func NewOrchestrator(
	client JobClient,
	validator ArtifactValidator,
	store VideoSaver,
	publisher Publisher,
	prompts *PromptBuilder,
	logger *slog.Logger,
	metrics metricsRecorder,
	pollInterval time.Duration,
	timeout time.Duration,
) *Orchestrator {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &Orchestrator{
		client:       client,
		validator:    validator,
		store:        store,
		publisher:    publisher,
		prompts:      prompts,
		logger:       logger,
		metrics:      metrics,
		pollInterval: pollInterval,
		timeout:      timeout,
		job:          model.GenerationJob{State: model.JobStateIdle},
	}
}

// StartManual は手動投入されたプロンプトで動画生成を開始する。
func (o *Orchestrator) StartManual(rawPrompt string) error {
	prompt, err := o.prompts.FromManual(rawPrompt)
	if err != nil {
		return err
	}
	return o.start(prompt)
}

// TriggerFromDonation は寄付イベントから動画生成を開始する。
// 実行中のジョブがある場合はErrBusyを返す（キューはしない）。
func (o *Orchestrator) TriggerFromDonation(ctx context.Context, event model.DonationEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prompt := o.prompts.FromDonation(event)
	return o.start(prompt)
}

// Status は現在（または直近）のジョブのスナップショットを返す。
func (o *Orchestrator) Status() model.GenerationJob {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.job
}

// Stop は実行中のジョブをキャンセルし、終了を待つ。
// 実行中のジョブが無い場合は何もしない。
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	done := o.done
	o.mu.Unlock()

	cancel()
	<-done
}

// start はジョブを開始する。実行中の場合はErrBusyを返す。
func (o *Orchestrator) start(prompt string) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return model.ErrBusy
	}

	now := time.Now()
	// タイムアウトはウォールクロックで計測する
	ctx, cancel := context.WithDeadline(context.Background(), now.Add(o.timeout))
	o.running = true
	o.cancel = cancel
	o.done = make(chan struct{})
	o.job = model.GenerationJob{
		Prompt:      prompt,
		State:       model.JobStateSubmitting,
		SubmittedAt: &now,
	}
	done := o.done
	o.mu.Unlock()

	go o.runJob(ctx, cancel, prompt, now, done)
	return nil
}

// runJob はジョブ1件分の状態遷移を実行する。
func (o *Orchestrator) runJob(ctx context.Context, cancel context.CancelFunc, prompt string, startedAt time.Time, done chan struct{}) {
	defer close(done)
	defer cancel()

	generationID, err := o.client.Submit(ctx, prompt)
	if err != nil {
		o.finish(ctx, err, startedAt)
		return
	}

	o.setJob(func(j *model.GenerationJob) {
		j.JobID = generationID
		j.State = model.JobStateWaiting
	})
	o.logger.Info("動画生成ジョブのポーリングを開始します",
		slog.String("generation_id", generationID),
		slog.Duration("poll_interval", o.pollInterval),
	)

	videoURL, err := o.pollUntilCompleted(ctx, generationID)
	if err != nil {
		o.finish(ctx, err, startedAt)
		return
	}

	o.setJob(func(j *model.GenerationJob) { j.State = model.JobStateCompleted })

	if err := o.validator.ValidateURL(videoURL); err != nil {
		o.finish(ctx, err, startedAt)
		return
	}

	o.setJob(func(j *model.GenerationJob) { j.State = model.JobStateDownloading })

	data, err := o.client.Download(ctx, videoURL)
	if err != nil {
		o.finish(ctx, err, startedAt)
		return
	}

	filename, err := o.store.Save(data)
	if err != nil {
		o.finish(ctx, err, startedAt)
		return
	}

	o.publisher.Publish(filename)
	o.finishDone(filename, startedAt)
}

// pollUntilCompleted はリモートジョブが完了するまでポーリングし、成果物URLを返す。
// 一時的なプロバイダー障害ではポーリングを継続し、プロバイダーの失敗報告と
// タイムアウトでエラーを返す。
func (o *Orchestrator) pollUntilCompleted(ctx context.Context, generationID string) (string, error) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			status, err := o.client.Poll(ctx, generationID)
			if err != nil {
				if errors.Is(err, model.ErrUnavailable) && ctx.Err() == nil {
					// 一時障害はタイムアウトまでポーリングを継続する
					o.logger.Warn("ジョブステータスの取得に失敗しました。リトライします",
						slog.String("generation_id", generationID),
						slog.String("error", err.Error()),
					)
					continue
				}
				return "", err
			}

			switch status.Status {
			case aiml.StatusQueued, aiml.StatusWaiting:
				o.setJob(func(j *model.GenerationJob) { j.State = model.JobStateWaiting })
			case aiml.StatusActive, aiml.StatusGenerating:
				o.setJob(func(j *model.GenerationJob) { j.State = model.JobStateGenerating })
			case aiml.StatusCompleted:
				if status.VideoURL == "" {
					return "", errors.New("completed job has no artifact URL")
				}
				return status.VideoURL, nil
			case aiml.StatusError:
				return "", errors.New("provider reported generation failure")
			default:
				// 未知のステータスは生成中として扱い、ポーリングを継続する
				o.logger.Warn("未知のジョブステータスを受信しました",
					slog.String("generation_id", generationID),
					slog.String("status", status.Status),
				)
			}
		}
	}
}

// setJob はジョブスナップショットをロック下で更新する。
func (o *Orchestrator) setJob(update func(*model.GenerationJob)) {
	o.mu.Lock()
	update(&o.job)
	o.mu.Unlock()
}

// finish はジョブを失敗系の終端状態へ遷移させ、次の投入を受け付ける。
func (o *Orchestrator) finish(ctx context.Context, cause error, startedAt time.Time) {
	state := model.JobStateError
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(cause, model.ErrTimeout) {
		state = model.JobStateTimeout
		cause = model.ErrTimeout
	}

	now := time.Now()
	o.mu.Lock()
	o.job.State = state
	o.job.Error = cause.Error()
	o.job.FinishedAt = &now
	o.running = false
	o.cancel = nil
	o.mu.Unlock()

	o.metrics.RecordGeneration(string(state), now.Sub(startedAt))
	o.logger.Error("動画生成ジョブが失敗しました",
		slog.String("state", string(state)),
		slog.String("error", cause.Error()),
		slog.Duration("duration", now.Sub(startedAt)),
	)
}

// finishDone はジョブを成功の終端状態へ遷移させ、次の投入を受け付ける。
func (o *Orchestrator) finishDone(filename string, startedAt time.Time) {
	now := time.Now()
	o.mu.Lock()
	o.job.State = model.JobStateDone
	o.job.ArtifactPath = filename
	o.job.FinishedAt = &now
	o.running = false
	o.cancel = nil
	o.mu.Unlock()

	o.metrics.RecordGeneration(string(model.JobStateDone), now.Sub(startedAt))
	o.logger.Info("動画生成ジョブが完了しました",
		slog.String("filename", filename),
		slog.Duration("duration", now.Sub(startedAt)),
	)
}
