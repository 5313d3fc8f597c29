package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// newTestStore creates an in-memory store for testing.
func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewStore(StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// seedCorpus builds A{alpha,beta} B{alpha,gamma} C{alpha} D{beta,gamma},
// created one hour apart in that order.
func seedCorpus(t *testing.T, s *SQLStore) map[string]*Item {
	t.Helper()
	ctx := context.Background()
	corpus := []struct {
		name string
		tags []string
	}{
		{"A", []string{"alpha", "beta"}},
		{"B", []string{"alpha", "gamma"}},
		{"C", []string{"alpha"}},
		{"D", []string{"beta", "gamma"}},
	}
	items := make(map[string]*Item)
	for i, sp := range corpus {
		it := &Item{Subtype: SubtypeDocument, Title: sp.name, CreatedAt: baseTime.Add(time.Duration(i) * time.Hour)}
		if _, err := s.AddItem(ctx, it); err != nil {
			t.Fatalf("AddItem %s: %v", sp.name, err)
		}
		if _, err := s.TagItem(ctx, it.ID, sp.tags...); err != nil {
			t.Fatalf("TagItem %s: %v", sp.name, err)
		}
		items[sp.name] = it
	}
	return items
}

func titlesOf(items []*Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Title
	}
	return out
}

func mustTag(t *testing.T, s *SQLStore, slug string) *Tag {
	t.Helper()
	tag, err := s.GetTagBySlug(context.Background(), slug)
	if err != nil {
		t.Fatalf("GetTagBySlug(%q): %v", slug, err)
	}
	if tag == nil {
		t.Fatalf("tag %q not found", slug)
	}
	return tag
}

// --- Database Initialization ---

func TestNewStore(t *testing.T) {
	s := newTestStore(t)

	tables := []string{"items", "tags", "taggings", "meta"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}

	var version string
	s.db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&version)
	if version != SchemaVersion {
		t.Errorf("expected schema_version %q, got %q", SchemaVersion, version)
	}
}

func TestNewStore_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facets.db")
	s1, err := NewStore(StoreConfig{DBPath: path})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	it := &Item{Subtype: SubtypeImage, Title: "photo"}
	if _, err := s1.AddItem(context.Background(), it); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	s1.Close()

	s2, err := NewStore(StoreConfig{DBPath: path})
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()

	got, err := s2.GetItem(context.Background(), it.ID)
	if err != nil || got == nil {
		t.Fatalf("item lost across reopen: %v", err)
	}
}

func TestNewStore_UnsupportedDriver(t *testing.T) {
	if _, err := NewStore(StoreConfig{Driver: "oracle"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

// --- Tags ---

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Alpha", "alpha"},
		{"  Hello   World ", "hello-world"},
		{"C++ & Go!", "c-go"},
		{"Crème Brûlée", "creme-brulee"},
		{"--already-a-slug--", "already-a-slug"},
		{"2024/03 report", "2024-03-report"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := Slugify(Slugify(tt.in)); again != Slugify(tt.in) {
			t.Errorf("Slugify not idempotent for %q: %q", tt.in, again)
		}
	}
}

func TestResolveTags_GetOrCreate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tags, err := s.ResolveTags(ctx, []string{"Go Lang", "go-lang", "  Rust ", "", "!!"})
	if err != nil {
		t.Fatalf("ResolveTags: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("expected 2 tags after slug collapse, got %d", len(tags))
	}
	if tags[0].Title != "Go Lang" || tags[0].Slug != "go-lang" {
		t.Errorf("first title should win: %+v", tags[0])
	}
	if tags[1].Title != "Rust" {
		t.Errorf("expected normalized title Rust, got %q", tags[1].Title)
	}

	again, err := s.ResolveTags(ctx, []string{"GO LANG"})
	if err != nil {
		t.Fatalf("ResolveTags again: %v", err)
	}
	if again[0].ID != tags[0].ID || again[0].Title != "Go Lang" {
		t.Errorf("expected existing tag reused, got %+v", again[0])
	}

	count, err := s.CountTag(ctx, tags[1].ID)
	if err != nil {
		t.Fatalf("CountTag: %v", err)
	}
	if count != 0 {
		t.Errorf("new tag should have zero associations, got %d", count)
	}
}

func TestPruneOrphanTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	items := seedCorpus(t, s)

	if _, err := s.ResolveTags(ctx, []string{"orphan"}); err != nil {
		t.Fatalf("ResolveTags: %v", err)
	}
	if _, err := s.UntagItem(ctx, items["C"].ID, "alpha"); err != nil {
		t.Fatalf("UntagItem: %v", err)
	}

	n, err := s.PruneOrphanTags(ctx)
	if err != nil {
		t.Fatalf("PruneOrphanTags: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 orphan pruned, got %d", n)
	}
	if tag, _ := s.GetTagBySlug(ctx, "orphan"); tag != nil {
		t.Error("orphan tag still present")
	}
	if tag, _ := s.GetTagBySlug(ctx, "alpha"); tag == nil {
		t.Error("alpha is still in use and must survive")
	}
}

// --- Items ---

func TestAddItem_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	parent := int64(1)

	cases := []struct {
		name string
		item *Item
	}{
		{"unknown subtype", &Item{Subtype: "hologram"}},
		{"kind mismatch", &Item{Kind: KindDocument, Subtype: SubtypeVideo}},
		{"asset with parent", &Item{Subtype: SubtypeAudio, ParentID: &parent}},
	}
	for _, tc := range cases {
		if _, err := s.AddItem(ctx, tc.item); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}

	it := &Item{Subtype: SubtypeVideo, Title: "clip"}
	if _, err := s.AddItem(ctx, it); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if it.Kind != KindAsset {
		t.Errorf("expected derived kind asset, got %q", it.Kind)
	}
}

func TestAddItem_ParentMustBeDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	img := &Item{Subtype: SubtypeImage, Title: "cover"}
	if _, err := s.AddItem(ctx, img); err != nil {
		t.Fatalf("AddItem image: %v", err)
	}
	if _, err := s.AddItem(ctx, &Item{Subtype: SubtypeDocument, Title: "page", ParentID: &img.ID}); err == nil {
		t.Fatal("expected error for an image parent")
	}

	missing := int64(404)
	if _, err := s.AddItem(ctx, &Item{Subtype: SubtypeDocument, Title: "orphan", ParentID: &missing}); err == nil {
		t.Fatal("expected error for a missing parent")
	}

	doc := &Item{Subtype: SubtypeDocument, Title: "book"}
	if _, err := s.AddItem(ctx, doc); err != nil {
		t.Fatalf("AddItem document: %v", err)
	}
	child := &Item{Subtype: SubtypeDocument, Title: "chapter", ParentID: &doc.ID}
	if _, err := s.AddItem(ctx, child); err != nil {
		t.Fatalf("AddItem child: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.ItemCount != 3 {
		t.Fatalf("expected 3 items, got %d", stats.ItemCount)
	}
}

func TestGetItem_NotFound(t *testing.T) {
	s := newTestStore(t)
	it, err := s.GetItem(context.Background(), 999)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if it != nil {
		t.Fatal("expected nil for missing item")
	}
}

func TestDeleteItem_CascadesTaggings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	items := seedCorpus(t, s)

	if err := s.DeleteItem(ctx, items["A"].ID); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	alpha := mustTag(t, s, "alpha")
	n, _ := s.CountTag(ctx, alpha.ID)
	if n != 2 {
		t.Fatalf("expected alpha count 2 after delete, got %d", n)
	}
	if err := s.DeleteItem(ctx, items["A"].ID); err == nil {
		t.Fatal("expected error deleting missing item")
	}
}

// --- Associations ---

func TestAssociate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	it := &Item{Subtype: SubtypeDocument, Title: "page"}
	s.AddItem(ctx, it)
	tags, _ := s.ResolveTags(ctx, []string{"news"})

	created, err := s.Associate(ctx, it.ID, tags[0].ID)
	if err != nil || !created {
		t.Fatalf("first Associate: created=%v err=%v", created, err)
	}
	created, err = s.Associate(ctx, it.ID, tags[0].ID)
	if err != nil {
		t.Fatalf("duplicate Associate should not fail: %v", err)
	}
	if created {
		t.Fatal("duplicate Associate should report created=false")
	}

	removed, err := s.Dissociate(ctx, it.ID, tags[0].ID)
	if err != nil || !removed {
		t.Fatalf("Dissociate: removed=%v err=%v", removed, err)
	}
	removed, _ = s.Dissociate(ctx, it.ID, tags[0].ID)
	if removed {
		t.Fatal("second Dissociate should report removed=false")
	}
}

func TestTagItem_ConcurrentDuplicates(t *testing.T) {
	s, err := NewStore(StoreConfig{DBPath: filepath.Join(t.TempDir(), "race.db")})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	it := &Item{Subtype: SubtypeDocument, Title: "contended"}
	if _, err := s.AddItem(ctx, it); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.TagItem(ctx, it.ID, "Shared"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent TagItem: %v", err)
	}

	tags, _ := s.TagsOf(ctx, it.ID)
	if len(tags) != 1 {
		t.Fatalf("expected exactly one association, got %d", len(tags))
	}
}

func TestTagsOfAndItemsWith(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	items := seedCorpus(t, s)

	tags, err := s.TagsOf(ctx, items["A"].ID)
	if err != nil {
		t.Fatalf("TagsOf: %v", err)
	}
	if len(tags) != 2 || tags[0].Slug != "alpha" || tags[1].Slug != "beta" {
		t.Fatalf("unexpected tags of A: %+v", tags)
	}

	gamma := mustTag(t, s, "gamma")
	with, err := s.ItemsWith(ctx, gamma.ID, ItemFilter{})
	if err != nil {
		t.Fatalf("ItemsWith: %v", err)
	}
	got := titlesOf(with)
	if len(got) != 2 || got[0] != "D" || got[1] != "B" {
		t.Fatalf("expected [D B] newest first, got %v", got)
	}
}

// --- Aggregates ---

func TestItemsMatchingAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedCorpus(t, s)
	alpha, beta := mustTag(t, s, "alpha"), mustTag(t, s, "beta")

	all, err := s.ItemsMatchingAll(ctx, nil, ItemFilter{})
	if err != nil {
		t.Fatalf("ItemsMatchingAll(empty): %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("empty selection should match the universe, got %d", len(all))
	}

	one, _ := s.ItemsMatchingAll(ctx, []int64{alpha.ID}, ItemFilter{})
	if got := titlesOf(one); len(got) != 3 {
		t.Fatalf("alpha should match A,B,C, got %v", got)
	}

	both, _ := s.ItemsMatchingAll(ctx, []int64{alpha.ID, beta.ID, alpha.ID}, ItemFilter{})
	if got := titlesOf(both); len(got) != 1 || got[0] != "A" {
		t.Fatalf("alpha+beta should match only A, got %v", got)
	}
}

func TestItemsMatchingAll_SubtypeAndSubtree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	root := &Item{Subtype: SubtypeDocument, Title: "root"}
	s.AddItem(ctx, root)
	child := &Item{Subtype: SubtypeDocument, Title: "child", ParentID: &root.ID}
	s.AddItem(ctx, child)
	grandchild := &Item{Subtype: SubtypeDocument, Title: "grandchild", ParentID: &child.ID}
	s.AddItem(ctx, grandchild)
	other := &Item{Subtype: SubtypeDocument, Title: "other"}
	s.AddItem(ctx, other)
	img := &Item{Subtype: SubtypeImage, Title: "img"}
	s.AddItem(ctx, img)

	for _, it := range []*Item{root, child, grandchild, other, img} {
		if _, err := s.TagItem(ctx, it.ID, "shared"); err != nil {
			t.Fatalf("TagItem: %v", err)
		}
	}
	shared := mustTag(t, s, "shared")

	sub, err := s.ItemsMatchingAll(ctx, []int64{shared.ID}, ItemFilter{SubtreeOf: &child.ID})
	if err != nil {
		t.Fatalf("subtree query: %v", err)
	}
	if len(sub) != 2 {
		t.Fatalf("expected child+grandchild, got %v", titlesOf(sub))
	}

	imgs, _ := s.ItemsMatchingAll(ctx, []int64{shared.ID}, ItemFilter{Subtype: SubtypeImage})
	if len(imgs) != 1 || imgs[0].ID != img.ID {
		t.Fatalf("expected only the image, got %v", titlesOf(imgs))
	}

	assets, _ := s.ListItems(ctx, ItemFilter{Kind: KindAsset})
	if len(assets) != 1 {
		t.Fatalf("expected 1 asset, got %d", len(assets))
	}

	none, err := s.ItemsMatchingAll(ctx, []int64{shared.ID}, ItemFilter{Subtype: "hologram"})
	if err != nil {
		t.Fatalf("unknown subtype should not fail: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("unknown subtype should match nothing, got %d", len(none))
	}
}

func TestCoOccurrence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedCorpus(t, s)
	alpha := mustTag(t, s, "alpha")

	counts, err := s.CoOccurrence(ctx, []int64{alpha.ID}, ItemFilter{})
	if err != nil {
		t.Fatalf("CoOccurrence: %v", err)
	}
	got := map[string]int{}
	for _, c := range counts {
		got[c.Tag.Slug] = c.Count
	}
	want := map[string]int{"alpha": 3, "beta": 1, "gamma": 1}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s: expected %d, got %d", k, v, got[k])
		}
	}

	delta, _ := s.ResolveTags(ctx, []string{"delta"})
	dead, err := s.CoOccurrence(ctx, []int64{delta[0].ID}, ItemFilter{})
	if err != nil {
		t.Fatalf("CoOccurrence(delta): %v", err)
	}
	if len(dead) != 0 {
		t.Fatalf("unused tag should yield no co-occurrence, got %d", len(dead))
	}
}

func TestTagUsageAndOverlap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	items := seedCorpus(t, s)
	s.ResolveTags(ctx, []string{"unused"})

	usage, err := s.TagUsage(ctx, ItemFilter{})
	if err != nil {
		t.Fatalf("TagUsage: %v", err)
	}
	if len(usage) != 3 {
		t.Fatalf("orphan tags must not appear in usage, got %d entries", len(usage))
	}

	alpha, beta := mustTag(t, s, "alpha"), mustTag(t, s, "beta")
	overlap, err := s.TagOverlap(ctx, []int64{alpha.ID, beta.ID}, ItemFilter{})
	if err != nil {
		t.Fatalf("TagOverlap: %v", err)
	}
	byID := map[int64]int{}
	for _, o := range overlap {
		byID[o.Item.ID] = o.Overlap
	}
	if byID[items["A"].ID] != 2 || byID[items["B"].ID] != 1 || byID[items["D"].ID] != 1 {
		t.Fatalf("unexpected overlap: %v", byID)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedCorpus(t, s)
	s.ResolveTags(ctx, []string{"lonely"})

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.ItemCount != 4 || st.TagCount != 4 || st.TaggingCount != 7 || st.OrphanTags != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestContextCancellation(t *testing.T) {
	s := newTestStore(t)
	seedCorpus(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.ItemsMatchingAll(ctx, []int64{1}, ItemFilter{}); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
