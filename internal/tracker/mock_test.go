package tracker

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/simbiat/fftracker/internal/model"
	"github.com/simbiat/fftracker/internal/repository"
)

// mockEntityRepo はEntityRepositoryのテスト用モック。実行されたバッチを記録する。
type mockEntityRepo struct {
	existsFunc       func(query string, args ...any) (bool, error)
	queryStringsFunc func(query string, args ...any) ([]string, error)
	queryTimeFunc    func(query string, args ...any) (*time.Time, error)
	executeBatchFunc func(stmts []repository.Statement) error

	mu      sync.Mutex
	calls   int
	batches [][]repository.Statement
}

func (m *mockEntityRepo) count() {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
}

func (m *mockEntityRepo) Exists(_ context.Context, query string, args ...any) (bool, error) {
	m.count()
	if m.existsFunc != nil {
		return m.existsFunc(query, args...)
	}
	return false, nil
}

func (m *mockEntityRepo) QueryRow(_ context.Context, _ string, _ ...any) (map[string]any, error) {
	m.count()
	return nil, nil
}

func (m *mockEntityRepo) QueryStrings(_ context.Context, query string, args ...any) ([]string, error) {
	m.count()
	if m.queryStringsFunc != nil {
		return m.queryStringsFunc(query, args...)
	}
	return nil, nil
}

func (m *mockEntityRepo) QueryTime(_ context.Context, query string, args ...any) (*time.Time, error) {
	m.count()
	if m.queryTimeFunc != nil {
		return m.queryTimeFunc(query, args...)
	}
	return nil, nil
}

func (m *mockEntityRepo) ExecuteBatch(_ context.Context, stmts []repository.Statement) error {
	m.count()
	m.mu.Lock()
	m.batches = append(m.batches, stmts)
	m.mu.Unlock()
	if m.executeBatchFunc != nil {
		return m.executeBatchFunc(stmts)
	}
	return nil
}

// statements は全バッチのうちqueryにsubstrを含む文を返す。
func (m *mockEntityRepo) statements(substr string) []repository.Statement {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.Statement
	for _, batch := range m.batches {
		for _, st := range batch {
			if strings.Contains(st.Query, substr) {
				out = append(out, st)
			}
		}
	}
	return out
}

// mockLoader はEntityLoaderのテスト用モック。
type mockLoader struct {
	character   *model.Character
	freeCompany *model.FreeCompany
	linkshell   *model.Linkshell
	pvpTeam     *model.PvPTeam
	achievement *model.Achievement
	err         error
	calls       int
}

func (m *mockLoader) LoadCharacter(_ context.Context, _ string) (*model.Character, error) {
	m.calls++
	return m.character, m.err
}

func (m *mockLoader) LoadFreeCompany(_ context.Context, _ string) (*model.FreeCompany, error) {
	m.calls++
	return m.freeCompany, m.err
}

func (m *mockLoader) LoadLinkshell(_ context.Context, _ string) (*model.Linkshell, error) {
	m.calls++
	return m.linkshell, m.err
}

func (m *mockLoader) LoadPvPTeam(_ context.Context, _ string) (*model.PvPTeam, error) {
	m.calls++
	return m.pvpTeam, m.err
}

func (m *mockLoader) LoadAchievement(_ context.Context, _ string) (*model.Achievement, error) {
	m.calls++
	return m.achievement, m.err
}

// mockSource はSourceのテスト用モック。
type mockSource struct {
	characterFunc            func(id string) (*model.CharacterProfile, error)
	freeCompanyFunc          func(id string) (*model.FreeCompanyProfile, error)
	freeCompanyMembersFunc   func(id string, page int) (*model.MemberPage, error)
	linkshellFunc            func(id string, crossworld bool, page int) (*model.LinkshellPage, error)
	pvpTeamFunc              func(id string) (*model.PvPTeamProfile, error)
	achievementFunc          func(dbID string) (*model.AchievementDetails, error)
	searchFunc               func(name string) ([]model.AchievementSearchHit, error)
	characterAchievementFunc func(characterID, achievementID string) (*model.AchievementDetails, error)

	calls int
}

func (m *mockSource) FetchCharacter(_ context.Context, id string) (*model.CharacterProfile, error) {
	m.calls++
	return m.characterFunc(id)
}

func (m *mockSource) FetchFreeCompany(_ context.Context, id string) (*model.FreeCompanyProfile, error) {
	m.calls++
	return m.freeCompanyFunc(id)
}

func (m *mockSource) FetchFreeCompanyMembers(_ context.Context, id string, page int) (*model.MemberPage, error) {
	m.calls++
	return m.freeCompanyMembersFunc(id, page)
}

func (m *mockSource) FetchLinkshellMembers(_ context.Context, id string, crossworld bool, page int) (*model.LinkshellPage, error) {
	m.calls++
	return m.linkshellFunc(id, crossworld, page)
}

func (m *mockSource) FetchPvPTeam(_ context.Context, id string) (*model.PvPTeamProfile, error) {
	m.calls++
	return m.pvpTeamFunc(id)
}

func (m *mockSource) FetchAchievement(_ context.Context, dbID string) (*model.AchievementDetails, error) {
	m.calls++
	return m.achievementFunc(dbID)
}

func (m *mockSource) SearchAchievementByName(_ context.Context, name string) ([]model.AchievementSearchHit, error) {
	m.calls++
	return m.searchFunc(name)
}

func (m *mockSource) FetchCharacterAchievement(_ context.Context, characterID, achievementID string) (*model.AchievementDetails, error) {
	m.calls++
	return m.characterAchievementFunc(characterID, achievementID)
}

type enqueuedJob struct {
	task     string
	args     []any
	priority int
	message  string
}

// mockScheduler はSchedulerのテスト用モック。
type mockScheduler struct {
	nextRun     *time.Time
	recent      int
	enqueueErr  error
	scheduledAt time.Time

	enqueued []enqueuedJob
	removed  [][]any
}

func (m *mockScheduler) Exists(_ context.Context, _ string, _ []any) (bool, error) {
	return m.nextRun != nil, nil
}

func (m *mockScheduler) NextRun(_ context.Context, _ string, _ []any) (*time.Time, error) {
	return m.nextRun, nil
}

func (m *mockScheduler) Enqueue(_ context.Context, task string, args []any, priority int, message string) (time.Time, error) {
	if m.enqueueErr != nil {
		return time.Time{}, m.enqueueErr
	}
	m.enqueued = append(m.enqueued, enqueuedJob{task: task, args: args, priority: priority, message: message})
	return m.scheduledAt, nil
}

func (m *mockScheduler) Remove(_ context.Context, _ string, args []any) error {
	m.removed = append(m.removed, args)
	return nil
}

func (m *mockScheduler) CountRecent(_ context.Context, _ string, _ time.Duration) (int, error) {
	return m.recent, nil
}

// mockUsers はUserRepositoryのテスト用モック。
type mockUsers struct {
	user *model.User
	err  error
}

func (m *mockUsers) FindByID(_ context.Context, _ string) (*model.User, error) {
	return m.user, m.err
}

func (m *mockUsers) OwnsCharacter(_ context.Context, _, _ string) (bool, error) {
	return false, nil
}

func (m *mockUsers) OwnsGroupMember(_ context.Context, _ string, _ model.EntityType, _ string) (bool, error) {
	return false, nil
}

// compile-time interface check
var _ repository.UserRepository = (*mockUsers)(nil)

// mockCrests はCrestDownloaderのテスト用モック。
type mockCrests struct {
	downloaded [][]string
	iconFunc   func(parts []string, grandCompanyID int) string
}

func (m *mockCrests) DownloadComponents(_ context.Context, parts []string) {
	m.downloaded = append(m.downloaded, parts)
}

func (m *mockCrests) Icon(_ context.Context, parts []string, grandCompanyID int) string {
	if m.iconFunc != nil {
		return m.iconFunc(parts, grandCompanyID)
	}
	return ""
}

// mockIcons はIconStoreのテスト用モック。
type mockIcons struct {
	err       error
	downloads []string
}

func (m *mockIcons) Exists(_ context.Context, _ string) bool { return false }

func (m *mockIcons) Download(_ context.Context, rawURL, _ string) error {
	m.downloads = append(m.downloads, rawURL)
	return m.err
}

// mockRecorder はRecorderのテスト用モック。
type mockRecorder struct {
	results []string
}

func (m *mockRecorder) RecordRefresh(_ string, result string, _ time.Duration) {
	m.results = append(m.results, result)
}

// testEnv はテスト用のTrackerと依存関係の組。
type testEnv struct {
	tracker  *Tracker
	repo     *mockEntityRepo
	loader   *mockLoader
	source   *mockSource
	jobs     *mockScheduler
	users    *mockUsers
	crests   *mockCrests
	icons    *mockIcons
	recorder *mockRecorder
	logs     *bytes.Buffer
	slept    []time.Duration
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEnv(cfg Config) *testEnv {
	env := &testEnv{
		repo:     &mockEntityRepo{},
		loader:   &mockLoader{},
		source:   &mockSource{},
		jobs:     &mockScheduler{scheduledAt: testNow.Add(time.Hour)},
		users:    &mockUsers{},
		crests:   &mockCrests{},
		icons:    &mockIcons{},
		recorder: &mockRecorder{},
		logs:     &bytes.Buffer{},
	}
	env.tracker = New(Deps{
		Repo:     env.repo,
		Loader:   env.loader,
		Users:    env.users,
		Source:   env.source,
		Jobs:     env.jobs,
		Crests:   env.crests,
		Icons:    env.icons,
		Recorder: env.recorder,
		Logger:   slog.New(slog.NewJSONHandler(env.logs, nil)),
	}, cfg)
	env.tracker.now = func() time.Time { return testNow }
	env.tracker.sleep = func(_ context.Context, d time.Duration) error {
		env.slept = append(env.slept, d)
		return nil
	}
	return env
}

func ptr[T any](v T) *T { return &v }
