package poll

import (
	"strconv"
	"testing"
)

func TestSeenSet_AddAndContains(t *testing.T) {
	s := newSeenSet(10)

	if s.Contains("1") {
		t.Error("empty set should not contain anything")
	}
	s.Add("1")
	if !s.Contains("1") {
		t.Error("added ID should be contained")
	}

	// 重複追加はサイズを増やさない
	s.Add("1")
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestSeenSet_EvictsOldest(t *testing.T) {
	s := newSeenSet(3)
	for i := 1; i <= 4; i++ {
		s.Add(strconv.Itoa(i))
	}

	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}
	if s.Contains("1") {
		t.Error("oldest ID should have been evicted")
	}
	for _, id := range []string{"2", "3", "4"} {
		if !s.Contains(id) {
			t.Errorf("ID %s should still be contained", id)
		}
	}
}

func TestRecentBuffer_NewestFirstAndDedup(t *testing.T) {
	b := newRecentBuffer(2)

	b.Add(donation("1", 100))
	b.Add(donation("2", 200))
	b.Add(donation("2", 200)) // 同一IDは無視

	list := b.List()
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ID != "2" || list[1].ID != "1" {
		t.Errorf("order = [%s, %s], want [2, 1]", list[0].ID, list[1].ID)
	}

	// 上限超過で最古が落ちる
	b.Add(donation("3", 300))
	list = b.List()
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ID != "3" || list[1].ID != "2" {
		t.Errorf("order = [%s, %s], want [3, 2]", list[0].ID, list[1].ID)
	}
}
