package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/padlog/padlog/internal/domain"
)

type memFileRepo struct {
	mu    sync.Mutex
	files map[string]*File
}

func newMemFileRepo() *memFileRepo {
	return &memFileRepo{files: make(map[string]*File)}
}

func cloneFile(in *File) *File {
	out := *in
	return &out
}

func (r *memFileRepo) seed(f *File) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[f.ID] = cloneFile(f)
}

func (r *memFileRepo) Create(_ context.Context, f *File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.files {
		if existing.WorkspaceID == f.WorkspaceID && existing.Path == f.Path && existing.DeletedAt == 0 {
			return ErrFileExists
		}
	}
	r.files[f.ID] = cloneFile(f)
	return nil
}

func (r *memFileRepo) GetActiveByPath(_ context.Context, workspaceID, path string) (*File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.files {
		if f.WorkspaceID == workspaceID && f.Path == path && f.DeletedAt == 0 {
			return cloneFile(f), nil
		}
	}
	return nil, ErrFileNotFound
}

func (r *memFileRepo) GetByID(_ context.Context, id string) (*File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.files[id]; ok {
		return cloneFile(f), nil
	}
	return nil, ErrFileNotFound
}

func (r *memFileRepo) TombstoneExists(_ context.Context, workspaceID, path string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.files {
		if f.WorkspaceID == workspaceID && f.Path == path && f.DeletedAt > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (r *memFileRepo) UpdateContent(_ context.Context, id, content string, nowMS int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return ErrFileNotFound
	}
	f.Content = content
	f.UpdatedAt = nowMS
	return nil
}

func (r *memFileRepo) SoftDelete(_ context.Context, id string, nowMS int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok || f.DeletedAt > 0 {
		return false, nil
	}
	f.DeletedAt = nowMS
	return true, nil
}

func (r *memFileRepo) PurgeTombstonedBefore(_ context.Context, cutoffMS int64, limit int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var purged int64
	for id, f := range r.files {
		if limit > 0 && purged >= int64(limit) {
			break
		}
		if f.DeletedAt > 0 && f.DeletedAt < cutoffMS {
			delete(r.files, id)
			purged++
		}
	}
	return purged, nil
}

func newFileFixture(t *testing.T) (*FileService, *memFileRepo, *memAppendRepo, *CapabilityService) {
	t.Helper()
	files := newMemFileRepo()
	appends := newMemAppendRepo()
	caps := NewCapabilityService(newMemCapabilityRepo(), testConfig())
	svc := NewFileService(files, appends, caps, testConfig())
	return svc, files, appends, caps
}

func TestFileUpsertCreateMintsKeys(t *testing.T) {
	svc, _, _, caps := newFileFixture(t)
	ctx := context.Background()

	res, err := svc.Upsert(ctx, "ws1", "/team/todo.md", "# Todo", fixtureNow)
	require.NoError(t, err)
	require.True(t, res.Created)
	require.Equal(t, "/team/todo.md", res.File.Path)
	require.Equal(t, "# Todo", res.File.Content)
	require.Equal(t, fixtureNow, res.File.CreatedAt)
	require.NotNil(t, res.Keys)

	// 三把密钥都绑定到这个文件路径
	for _, plaintext := range []string{res.Keys.Read, res.Keys.Append, res.Keys.Write} {
		key, err := caps.Resolve(ctx, plaintext)
		require.NoError(t, err)
		require.Equal(t, domain.ScopeFile, key.ScopeType)
		require.Equal(t, "/team/todo.md", key.ScopePath)
	}
}

func TestFileUpsertUpdateDoesNotMint(t *testing.T) {
	svc, _, _, _ := newFileFixture(t)
	ctx := context.Background()

	created, err := svc.Upsert(ctx, "ws1", "/team/todo.md", "v1", fixtureNow)
	require.NoError(t, err)

	updated, err := svc.Upsert(ctx, "ws1", "/team/todo.md", "v2", fixtureNow+5)
	require.NoError(t, err)
	require.False(t, updated.Created)
	require.Nil(t, updated.Keys, "keys are issued once at creation")
	require.Equal(t, created.File.ID, updated.File.ID)
	require.Equal(t, "v2", updated.File.Content)
	require.Equal(t, fixtureNow+5, updated.File.UpdatedAt)
}

// racingFileRepo 第一次路径查找谎报不存在，复现"两个创建者同时
// 通过存在性检查"的窗口。
type racingFileRepo struct {
	*memFileRepo
	missFirst int32
}

func (r *racingFileRepo) GetActiveByPath(ctx context.Context, workspaceID, path string) (*File, error) {
	if atomic.CompareAndSwapInt32(&r.missFirst, 1, 0) {
		return nil, ErrFileNotFound
	}
	return r.memFileRepo.GetActiveByPath(ctx, workspaceID, path)
}

func TestFileUpsertCreateRaceLoserUpdates(t *testing.T) {
	files := &racingFileRepo{memFileRepo: newMemFileRepo(), missFirst: 1}
	winner := &File{ID: "f-winner", WorkspaceID: "ws1", Path: "/team/todo.md", Content: "theirs", CreatedAt: fixtureNow}
	files.seed(winner)
	caps := NewCapabilityService(newMemCapabilityRepo(), testConfig())
	svc := NewFileService(files, newMemAppendRepo(), caps, testConfig())

	res, err := svc.Upsert(context.Background(), "ws1", "/team/todo.md", "mine", fixtureNow+1)
	require.NoError(t, err)
	require.False(t, res.Created, "race loser degrades to update")
	require.Nil(t, res.Keys)
	require.Equal(t, "f-winner", res.File.ID)
	require.Equal(t, "mine", res.File.Content)
}

func TestFileGetReturnsAppendsInOrder(t *testing.T) {
	appendSvc, appendRepo, f := newAppendFixture(t)
	files := newMemFileRepo()
	files.seed(f)
	caps := NewCapabilityService(newMemCapabilityRepo(), testConfig())
	svc := NewFileService(files, appendRepo, caps, testConfig())

	for i, content := range []string{"first", "second", "third"} {
		mustAppend(t, appendSvc, f, &AppendRequest{
			Author:  "alice",
			Type:    domain.AppendTypeComment,
			Content: content,
		}, fixtureNow+int64(i))
	}

	got, appends, err := svc.Get(context.Background(), "ws1", "/team/todo.md")
	require.NoError(t, err)
	require.Equal(t, f.ID, got.ID)
	require.Len(t, appends, 3)
	for i, a := range appends {
		require.Equal(t, int64(i+1), a.Seq, "appends come back in seq order")
	}
}

func TestFileDeletedVersusMissing(t *testing.T) {
	svc, _, _, _ := newFileFixture(t)
	ctx := context.Background()

	_, _, err := svc.Get(ctx, "ws1", "/nope.md")
	require.ErrorIs(t, err, ErrFileNotFound)
	_, err = svc.Delete(ctx, "ws1", "/nope.md", fixtureNow)
	require.ErrorIs(t, err, ErrFileNotFound)

	_, err = svc.Upsert(ctx, "ws1", "/team/todo.md", "x", fixtureNow)
	require.NoError(t, err)

	deleted, err := svc.Delete(ctx, "ws1", "/team/todo.md", fixtureNow+1)
	require.NoError(t, err)
	require.Equal(t, fixtureNow+1, deleted.DeletedAt)

	// 墓碑让后续访问得到 FILE_DELETED 而非 FILE_NOT_FOUND
	_, _, err = svc.Get(ctx, "ws1", "/team/todo.md")
	require.ErrorIs(t, err, ErrFileDeleted)
	_, err = svc.Delete(ctx, "ws1", "/team/todo.md", fixtureNow+2)
	require.ErrorIs(t, err, ErrFileDeleted)
}

// staleFileRepo 软删除永远失手，复现删除竞争里的败方视角。
type staleFileRepo struct {
	*memFileRepo
}

func (r *staleFileRepo) SoftDelete(context.Context, string, int64) (bool, error) {
	return false, nil
}

func TestFileDeleteRaceLoser(t *testing.T) {
	files := &staleFileRepo{memFileRepo: newMemFileRepo()}
	files.seed(&File{ID: "f1", WorkspaceID: "ws1", Path: "/team/todo.md"})
	svc := NewFileService(files, newMemAppendRepo(), NewCapabilityService(newMemCapabilityRepo(), testConfig()), testConfig())

	_, err := svc.Delete(context.Background(), "ws1", "/team/todo.md", fixtureNow)
	require.ErrorIs(t, err, ErrFileDeleted)
}
