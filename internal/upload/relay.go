package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/taskman/internal/model"
)

// Relay はアップロードされたファイルを一時ファイルに受け、
// プライマリおよび任意のセカンダリのオブジェクトストアへ中継する。
//
// セカンダリが設定されている場合、両方への保存が成功して初めて
// アップロード成功とみなす。返すURLは常にプライマリ側のもの。
// 一時ファイルは成功・失敗を問わず必ず削除する。
type Relay struct {
	primary   ObjectStore
	secondary ObjectStore // nil可
	tempDir   string      // 空文字列の場合はOSのデフォルト
	logger    *slog.Logger
}

// NewRelay はRelayを生成する。secondaryはnil可。
func NewRelay(primary, secondary ObjectStore, tempDir string, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		primary:   primary,
		secondary: secondary,
		tempDir:   tempDir,
		logger:    logger,
	}
}

// Store はアップロードストリームをストアへ中継し、プライマリ側の公開URLを返す。
// 失敗はすべてUploadFailedに丸め、詳細はログにのみ残す。
func (r *Relay) Store(ctx context.Context, subjectID, filename string, body io.Reader) (string, error) {
	tmp, err := os.CreateTemp(r.tempDir, "taskman-upload-*")
	if err != nil {
		r.logger.Error("一時ファイルの作成に失敗しました", slog.String("error", err.Error()))
		return "", model.NewUploadFailedError()
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, body); err != nil {
		r.logger.Error("アップロードストリームの書き込みに失敗しました",
			slog.String("subject_id", subjectID),
			slog.String("error", err.Error()),
		)
		return "", model.NewUploadFailedError()
	}

	key := objectKey(subjectID, filename)
	contentType := contentTypeFor(filename)

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", model.NewUploadFailedError()
	}
	primaryURL, err := r.primary.Put(ctx, key, contentType, tmp)
	if err != nil {
		r.logger.Error("プライマリストアへの保存に失敗しました",
			slog.String("subject_id", subjectID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return "", model.NewUploadFailedError()
	}

	if r.secondary != nil {
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return "", model.NewUploadFailedError()
		}
		if _, err := r.secondary.Put(ctx, key, contentType, tmp); err != nil {
			r.logger.Error("セカンダリストアへの保存に失敗しました",
				slog.String("subject_id", subjectID),
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			return "", model.NewUploadFailedError()
		}
	}

	r.logger.Info("ファイルをアップロードしました",
		slog.String("subject_id", subjectID),
		slog.String("key", key),
	)
	return primaryURL, nil
}

// objectKey はsubjectごとに衝突しないオブジェクトキーを生成する。
func objectKey(subjectID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("uploads/%s/%s%s", subjectID, uuid.New().String(), ext)
}

// contentTypeFor は拡張子からContent-Typeを推定する。
func contentTypeFor(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
