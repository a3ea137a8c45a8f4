package model

import "net/http"

// RegisterStatus は登録処理の結果。値はそのままHTTPステータスとして返せる。
type RegisterStatus int

const (
	RegisterCreated           RegisterStatus = http.StatusCreated
	RegisterNoID              RegisterStatus = http.StatusBadRequest
	RegisterForbidden         RegisterStatus = http.StatusForbidden
	RegisterNotFound          RegisterStatus = http.StatusNotFound
	RegisterAlreadyRegistered RegisterStatus = http.StatusConflict
	RegisterUnavailable       RegisterStatus = http.StatusServiceUnavailable
)

// HTTPStatus はHTTPステータスコードを返す。
func (s RegisterStatus) HTTPStatus() int {
	return int(s)
}

// LinkStatus はキャラクター紐付けの結果。
type LinkStatus int

const (
	LinkOK            LinkStatus = http.StatusOK
	LinkNotFound      LinkStatus = http.StatusBadRequest
	LinkForbidden     LinkStatus = http.StatusForbidden
	LinkAlreadyLinked LinkStatus = http.StatusConflict
	LinkNoToken       LinkStatus = http.StatusFailedDependency
	LinkFailed        LinkStatus = http.StatusInternalServerError
)

// LinkResult はキャラクター紐付けの結果と理由。
type LinkResult struct {
	Status LinkStatus
	Reason string
}
