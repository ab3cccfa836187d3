package model

import "time"

// JobState は動画生成ジョブのローカル状態を表す。
// 遷移は前進のみで、error/timeoutを除き後退しない。
type JobState string

const (
	// JobStateIdle はジョブ未実行状態。新規投入を受け付ける。
	JobStateIdle JobState = "idle"
	// JobStateSubmitting はリモートジョブ作成中。
	JobStateSubmitting JobState = "submitting"
	// JobStateWaiting はリモートキュー待ち。
	JobStateWaiting JobState = "waiting"
	// JobStateGenerating はリモート生成中。
	JobStateGenerating JobState = "generating"
	// JobStateCompleted はリモート生成完了（ダウンロード前）。
	JobStateCompleted JobState = "completed"
	// JobStateDownloading は成果物ダウンロード中。
	JobStateDownloading JobState = "downloading"
	// JobStateDone は成果物保存まで完了した終端状態。
	JobStateDone JobState = "done"
	// JobStateError はリモート失敗またはローカル失敗の終端状態。
	JobStateError JobState = "error"
	// JobStateTimeout はウォールクロックタイムアウトの終端状態。
	JobStateTimeout JobState = "timeout"
)

// Terminal はジョブが終端状態かどうかを返す。
func (s JobState) Terminal() bool {
	return s == JobStateDone || s == JobStateError || s == JobStateTimeout
}

// GenerationJob は1件の動画生成ジョブのスナップショット。
type GenerationJob struct {
	JobID        string     `json:"job_id,omitempty"`
	Prompt       string     `json:"prompt,omitempty"`
	State        JobState   `json:"state"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ArtifactPath string     `json:"artifact_path,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Progress はUI表示用の進捗割合（0-100）を状態から導出する。
func (j GenerationJob) Progress() int {
	switch j.State {
	case JobStateIdle:
		return 0
	case JobStateSubmitting:
		return 5
	case JobStateWaiting:
		return 15
	case JobStateGenerating:
		return 70
	case JobStateCompleted:
		return 85
	case JobStateDownloading:
		return 90
	case JobStateDone, JobStateError, JobStateTimeout:
		return 100
	default:
		return 50
	}
}
