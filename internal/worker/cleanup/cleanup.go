// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// セッションはFindByID時に遅延削除されるが、一度も参照されないまま
// 期限を過ぎたセッションは残り続けるため、定期バッチで回収する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionPruner は期限切れセッションの一括削除インターフェース。
// repository.SessionRepositoryの部分集合として定義し、
// PostgreSQL・ファイルのどちらのバックエンドでも動作する。
type SessionPruner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// SweepJob は期限切れセッションの定期削除ジョブ。
// 冪等な削除処理を保証し、削除対象がない場合もエラーにならない。
type SweepJob struct {
	sessions SessionPruner
	logger   *slog.Logger
	Interval time.Duration // 実行間隔（デフォルト: 1時間）
}

// NewSweepJob は新しいSweepJobを生成する。
// デフォルトの実行間隔は1時間。
func NewSweepJob(sessions SessionPruner, logger *slog.Logger) *SweepJob {
	return &SweepJob{
		sessions: sessions,
		logger:   logger,
		Interval: time.Hour,
	}
}

// Run は期限切れセッションを1回削除する。
func (j *SweepJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("セッション削除ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッション削除の実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("セッション削除ジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start はInterval間隔のティッカーでジョブを起動する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
// 個々の実行の失敗はRunがログに残し、次の周期で再試行される。
func (j *SweepJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	j.logger.Info("セッション削除ジョブを開始しました",
		slog.Duration("interval", j.Interval),
	)

	// 起動直後に1回実行
	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッション削除ジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
