package model

import "time"

// TaskUpdateEntity はエンティティ更新ジョブのタスク名。
const TaskUpdateEntity = "ff_update_entity"

// Job はcron_scheduleに登録されたジョブ。
// Argumentsはタスクごとにエンコードされた引数（JSON配列）。
type Job struct {
	ID         string
	Task       string
	Arguments  string
	Priority   int
	Message    string
	NextRun    time.Time
	Registered time.Time
	Attempts   int
	LastError  string
}
