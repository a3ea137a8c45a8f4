package crest

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

const (
	bgURL     = "https://img2.finalfantasyxiv.com/c/B1c_aa11_128x128.png"
	frameURL  = "https://img2.finalfantasyxiv.com/c/F01_bb22_128x128.png"
	emblemURL = "https://img2.finalfantasyxiv.com/c/S7f_cc33_03_128x128.png"
)

// mockStore はAssetStoreのテスト用モック。
type mockStore struct {
	mu         sync.Mutex
	files      map[string]bool
	downloads  []string
	merges     int
	mergeErr   error
	downloadFn func(rawURL, relPath string) error
}

func newMockStore() *mockStore {
	return &mockStore{files: map[string]bool{}}
}

func (m *mockStore) Exists(_ context.Context, relPath string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files[relPath]
}

func (m *mockStore) Download(_ context.Context, rawURL, relPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads = append(m.downloads, rawURL)
	if m.downloadFn != nil {
		if err := m.downloadFn(rawURL, relPath); err != nil {
			return err
		}
	}
	m.files[relPath] = true
	return nil
}

func (m *mockStore) Merge(_ context.Context, _ []string, relPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merges++
	if m.mergeErr != nil {
		return m.mergeErr
	}
	m.files[relPath] = true
	return nil
}

func newTestNormalizer(store AssetStore) *Normalizer {
	var buf bytes.Buffer
	return NewNormalizer(store, "/assets/images/fftracker/", slog.New(slog.NewJSONHandler(&buf, nil)))
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		url  string
		want string
		ok   bool
	}{
		{bgURL, "crests-components/backgrounds/B1c/B1c_aa11_128x128.png", true},
		{"https://x/c/F00_dd_128x128.png", "crests-components/backgrounds/F00/F00_dd_128x128.png", true},
		{frameURL, "crests-components/frames/F01_bb22_128x128.png", true},
		{emblemURL, "crests-components/emblems/S7f/S7f_cc33_03_128x128.png", true},
		{"https://x/c/Z99_unknown.png", "", false},
	}
	for _, tt := range tests {
		got, ok := LocalPath(tt.url)
		if got != tt.want || ok != tt.ok {
			t.Errorf("LocalPath(%s) = (%q, %v), want (%q, %v)", tt.url, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSort_PlacesComponentsInFixedSlots(t *testing.T) {
	slots := Sort([]string{emblemURL, "", bgURL})
	if !strings.HasSuffix(slots[SlotBackground], "B1c_aa11_128x128.png") {
		t.Errorf("背景スロット = %q", slots[SlotBackground])
	}
	if slots[SlotFrame] != "" {
		t.Errorf("枠スロットは空であるべき: %q", slots[SlotFrame])
	}
	if !strings.HasSuffix(slots[SlotEmblem], "S7f_cc33_03_128x128.png") {
		t.Errorf("紋章スロット = %q", slots[SlotEmblem])
	}
}

func TestKey_IsDeterministicAndOrderIndependent(t *testing.T) {
	a := Key([]string{bgURL, frameURL, emblemURL})
	b := Key([]string{emblemURL, bgURL, frameURL})
	if a != b {
		t.Errorf("入力順によらず同じキーになるべき: %s != %s", a, b)
	}
	parts := strings.Split(a, "/")
	if len(parts) != 3 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		t.Fatalf("キーの形式が不正: %s", a)
	}
	// SHA3-512 は128桁の16進数
	if !strings.HasSuffix(parts[2], ".png") || len(strings.TrimSuffix(parts[2], ".png")) != 128 {
		t.Errorf("ファイル名の形式が不正: %s", parts[2])
	}
	if !strings.HasPrefix(parts[2], parts[0]+parts[1]) {
		t.Errorf("サブディレクトリはハッシュの先頭4文字から作られるべき: %s", a)
	}
	if c := Key([]string{bgURL, frameURL}); c == a {
		t.Error("異なる部品の組み合わせは異なるキーになるべき")
	}
}

func TestComposite_MergesOnlyOnce(t *testing.T) {
	store := newMockStore()
	n := newTestNormalizer(store)
	parts := []string{bgURL, frameURL, emblemURL}

	first := n.Composite(context.Background(), parts)
	second := n.Composite(context.Background(), parts)

	if first != second {
		t.Errorf("同じ入力は同じパスを返すべき: %s != %s", first, second)
	}
	if store.merges != 1 {
		t.Errorf("合成回数 = %d, want 1", store.merges)
	}
	if !strings.HasPrefix(first, "/assets/images/fftracker/merged-crests/") {
		t.Errorf("公開URL = %s", first)
	}
}

func TestComposite_ConcurrentCallsMergeOnce(t *testing.T) {
	store := newMockStore()
	n := newTestNormalizer(store)
	parts := []string{bgURL, emblemURL}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Composite(context.Background(), parts)
		}()
	}
	wg.Wait()

	if store.merges != 1 {
		t.Errorf("並行呼び出しでも合成は1回であるべき: %d", store.merges)
	}
}

func TestComposite_NoComponents(t *testing.T) {
	store := newMockStore()
	n := newTestNormalizer(store)

	got := n.Composite(context.Background(), []string{"", ""})
	if got != n.NotFound() {
		t.Errorf("部品なしは NotFound を返すべき: %s", got)
	}
	if store.merges != 0 {
		t.Errorf("部品なしで合成するべきではない: %d", store.merges)
	}
}

func TestIcon_FallsBackToGrandCompany(t *testing.T) {
	store := newMockStore()
	store.mergeErr = errors.New("decode failed")
	n := newTestNormalizer(store)

	if got := n.Icon(context.Background(), []string{bgURL}, 2); got != "2" {
		t.Errorf("Icon = %q, want 2", got)
	}
	if got := n.Icon(context.Background(), nil, 0); got != n.NotFound() {
		t.Errorf("GCなしは NotFound を返すべき: %q", got)
	}
	if got := n.Icon(context.Background(), nil, 7); got != n.NotFound() {
		t.Errorf("範囲外のGC IDは無視されるべき: %q", got)
	}
}

func TestDownloadComponents_FetchesEmblemVariants(t *testing.T) {
	store := newMockStore()
	n := newTestNormalizer(store)

	n.DownloadComponents(context.Background(), []string{bgURL, "", emblemURL})

	// 背景1 + 紋章8バリエーション
	if len(store.downloads) != 9 {
		t.Fatalf("ダウンロード数 = %d, want 9: %v", len(store.downloads), store.downloads)
	}
	for i := 0; i <= 7; i++ {
		local := "crests-components/emblems/S7f/S7f_cc33_0" + string(rune('0'+i)) + "_128x128.png"
		if !store.files[local] {
			t.Errorf("紋章バリエーション %s が取得されていない", local)
		}
	}

	// 2回目は取得済みのためダウンロードしない
	n.DownloadComponents(context.Background(), []string{bgURL, "", emblemURL})
	if len(store.downloads) != 9 {
		t.Errorf("取得済みの部品を再ダウンロードするべきではない: %d", len(store.downloads))
	}
}

func TestDownloadComponents_FixesBrokenEmblem(t *testing.T) {
	store := newMockStore()
	n := newTestNormalizer(store)

	broken := "https://img2.finalfantasyxiv.com/c/" + brokenEmblem
	n.DownloadComponents(context.Background(), []string{broken})

	for _, u := range store.downloads {
		if strings.Contains(u, brokenEmblem) {
			t.Errorf("壊れた紋章URLをそのまま取得するべきではない: %s", u)
		}
	}
	if !store.files["crests-components/emblems/S7f/"+brokenEmblem] {
		t.Error("ローカルパスは元のファイル名のままであるべき")
	}
}

func TestDownloadComponents_FailuresAreNotFatal(t *testing.T) {
	store := newMockStore()
	store.downloadFn = func(rawURL, _ string) error {
		if strings.Contains(rawURL, "_05_") {
			return errors.New("404")
		}
		return nil
	}
	n := newTestNormalizer(store)

	n.DownloadComponents(context.Background(), []string{emblemURL})
	if len(store.downloads) != 8 {
		t.Errorf("失敗しても残りのバリエーションを取得するべき: %d", len(store.downloads))
	}
}
