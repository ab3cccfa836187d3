package poll

// seenSet は処理済み寄付IDの上限付き集合。
// 上限を超えると最も古いIDから追い出す。フィードは直近分しか返さないため、
// 上限を十分大きく取れば追い出し済みIDの再登場は実質起こらない。
// スレッドセーフではなく、呼び出し側（ポーラー）がロックで保護する。
type seenSet struct {
	capacity int
	ids      map[string]struct{}
	order    []string
}

func newSeenSet(capacity int) *seenSet {
	if capacity <= 0 {
		capacity = 2000
	}
	return &seenSet{
		capacity: capacity,
		ids:      make(map[string]struct{}, capacity),
	}
}

// Contains はIDが登録済みかを返す。
func (s *seenSet) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Add はIDを登録する。上限超過時は最古のIDを追い出す。
func (s *seenSet) Add(id string) {
	if s.Contains(id) {
		return
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	for len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.ids, oldest)
	}
}

// Len は登録済みIDの数を返す。
func (s *seenSet) Len() int {
	return len(s.ids)
}
