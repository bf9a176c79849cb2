package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/padlog/padlog/internal/config"
	"github.com/padlog/padlog/internal/domain"
)

// FileService 文件生命周期：创建时连带签发文件级密钥三元组，
// 更新只改内容，删除留墓碑。
type FileService struct {
	files   FileRepository
	appends AppendRepository
	keys    *CapabilityService
	cfg     *config.Config
}

func NewFileService(files FileRepository, appends AppendRepository, keys *CapabilityService, cfg *config.Config) *FileService {
	return &FileService{files: files, appends: appends, keys: keys, cfg: cfg}
}

// FileUpsertResult Keys 仅在创建时非空，明文只出现这一次。
type FileUpsertResult struct {
	File    *File
	Created bool
	Keys    *KeyTriple
}

// resolveActiveFile 按路径取活跃文件；墓碑与从未存在分别映射
// FILE_DELETED 与 FILE_NOT_FOUND。追加与文件两条链路共用。
func resolveActiveFile(ctx context.Context, files FileRepository, workspaceID, path string) (*File, error) {
	f, err := files.GetActiveByPath(ctx, workspaceID, path)
	if err == nil {
		return f, nil
	}
	if errors.Is(err, ErrFileNotFound) {
		tombstoned, terr := files.TombstoneExists(ctx, workspaceID, path)
		if terr != nil {
			return nil, fmt.Errorf("check tombstone: %w", terr)
		}
		if tombstoned {
			return nil, ErrFileDeleted
		}
		return nil, ErrFileNotFound
	}
	return nil, fmt.Errorf("get file by path: %w", err)
}

// Upsert 创建或改写文件。创建成功后为该路径签发 read/append/write
// 三把文件级密钥。并发创建同一路径时败方退化为更新。
func (s *FileService) Upsert(ctx context.Context, workspaceID, path, content string, nowMS int64) (*FileUpsertResult, error) {
	existing, err := s.files.GetActiveByPath(ctx, workspaceID, path)
	if err == nil {
		if uerr := s.files.UpdateContent(ctx, existing.ID, content, nowMS); uerr != nil {
			return nil, fmt.Errorf("update file content: %w", uerr)
		}
		existing.Content = content
		existing.UpdatedAt = nowMS
		return &FileUpsertResult{File: existing}, nil
	}
	if !errors.Is(err, ErrFileNotFound) {
		return nil, fmt.Errorf("get file by path: %w", err)
	}

	f := &File{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Path:        path,
		Content:     content,
		CreatedAt:   nowMS,
		UpdatedAt:   nowMS,
	}
	if cerr := s.files.Create(ctx, f); cerr != nil {
		if errors.Is(cerr, ErrFileExists) {
			// 输掉创建竞争，当更新处理
			return s.Upsert(ctx, workspaceID, path, content, nowMS)
		}
		return nil, fmt.Errorf("create file: %w", cerr)
	}

	keys, kerr := s.keys.MintTriple(ctx, workspaceID, domain.ScopeFile, path)
	if kerr != nil {
		return nil, fmt.Errorf("mint file keys: %w", kerr)
	}
	return &FileUpsertResult{File: f, Created: true, Keys: keys}, nil
}

// Get 返回文件与全部追加（seq 升序）。
func (s *FileService) Get(ctx context.Context, workspaceID, path string) (*File, []*Append, error) {
	f, err := resolveActiveFile(ctx, s.files, workspaceID, path)
	if err != nil {
		return nil, nil, err
	}
	appends, err := s.appends.ListByFile(ctx, f.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list appends: %w", err)
	}
	return f, appends, nil
}

// Delete 软删除。重复删除回 FILE_DELETED，不存在回 FILE_NOT_FOUND。
func (s *FileService) Delete(ctx context.Context, workspaceID, path string, nowMS int64) (*File, error) {
	f, err := resolveActiveFile(ctx, s.files, workspaceID, path)
	if err != nil {
		return nil, err
	}
	deleted, err := s.files.SoftDelete(ctx, f.ID, nowMS)
	if err != nil {
		return nil, fmt.Errorf("soft delete file: %w", err)
	}
	if !deleted {
		// 并发删除抢先一步
		return nil, ErrFileDeleted
	}
	f.DeletedAt = nowMS
	return f, nil
}
