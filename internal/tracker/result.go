package tracker

// Outcome はLodestoneからの取得結果の分類。
type Outcome int

const (
	// OutcomeFound はデータを取得できたことを示す。
	OutcomeFound Outcome = iota
	// OutcomeNotFound はLodestone上にエンティティが存在しないことを示す。
	OutcomeNotFound
	// OutcomePrivate はキャラクターのプロフィールが非公開であることを示す。
	OutcomePrivate
	// OutcomeEmpty はページは存在するがメンバーを閲覧できないリンクシェルを示す。
	OutcomeEmpty
)

// String はログ用の表記を返す。
func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not_found"
	case OutcomePrivate:
		return "private"
	case OutcomeEmpty:
		return "empty"
	}
	return "unknown"
}

// FetchResult は1回の取得結果。生成後は変更されない値としてReconcileに渡される。
type FetchResult[P any] struct {
	outcome Outcome
	payload P
	name    string
}

// Found は取得に成功した結果を生成する。
func Found[P any](payload P, name string) FetchResult[P] {
	return FetchResult[P]{outcome: OutcomeFound, payload: payload, name: name}
}

// Empty はメンバーを閲覧できないグループの結果を生成する。
func Empty[P any](payload P, name string) FetchResult[P] {
	return FetchResult[P]{outcome: OutcomeEmpty, payload: payload, name: name}
}

// NotFound は存在しないエンティティの結果を生成する。
func NotFound[P any]() FetchResult[P] {
	return FetchResult[P]{outcome: OutcomeNotFound}
}

// Private は非公開のエンティティの結果を生成する。
func Private[P any]() FetchResult[P] {
	return FetchResult[P]{outcome: OutcomePrivate}
}

// Outcome は結果の分類を返す。
func (r FetchResult[P]) Outcome() Outcome { return r.outcome }

// Payload は取得したデータを返す。呼び出し側は内容を変更してはならない。
func (r FetchResult[P]) Payload() P { return r.payload }

// Name はエンティティ名を返す。
func (r FetchResult[P]) Name() string { return r.name }
