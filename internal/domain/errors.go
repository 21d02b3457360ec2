package domain

import "errors"

// ErrorCode 是随事件/响应下发给客户端的业务错误码。
// 取值与实时协议中的 error:room 事件保持一致。
type ErrorCode string

const (
	CodeRoomNotFound             ErrorCode = "ROOM_NOT_FOUND"
	CodeUserNotFound             ErrorCode = "MEMBER_NOT_FOUND"
	CodeNotHost                  ErrorCode = "NOT_HOST"
	CodeAlreadyHost              ErrorCode = "ALREADY_HOST"
	CodeCannotKickSelf           ErrorCode = "CANNOT_KICK_SELF"
	CodeRoomFull                 ErrorCode = "ROOM_FULL"
	CodeRoomLocked               ErrorCode = "ROOM_LOCKED"
	CodeRoomCodeGenerationFailed ErrorCode = "ROOM_CODE_GENERATION_FAILED"
	CodeUnknownError             ErrorCode = "UNKNOWN_ERROR"
)

// Error 是携带错误码的业务错误。
// 不使用类型层级：每个变体是一个固定的哨兵值，边界层用 errors.Is 匹配后
// 将 Code/Message 映射到 HTTP 状态码或 error:room 事件。
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string { return e.Message }

// 业务错误全集。协调服务只返回这些错误或基础设施错误（store 不可用等），
// 业务错误不会被自动重试。
var (
	ErrRoomNotFound = &Error{Code: CodeRoomNotFound, Message: "room not found"}
	ErrUserNotFound = &Error{Code: CodeUserNotFound, Message: "member not found"}
	ErrNotHost      = &Error{Code: CodeNotHost, Message: "user is not host of room"}

	// InvalidOperation 族：同一类（可由调用方恢复的非法操作），不同子码。
	ErrAlreadyHost              = &Error{Code: CodeAlreadyHost, Message: "user is already host of room"}
	ErrCannotKickSelf           = &Error{Code: CodeCannotKickSelf, Message: "cannot kick self from room"}
	ErrRoomFull                 = &Error{Code: CodeRoomFull, Message: "room is full"}
	ErrRoomLocked               = &Error{Code: CodeRoomLocked, Message: "room is locked"}
	ErrRoomCodeGenerationFailed = &Error{Code: CodeRoomCodeGenerationFailed, Message: "failed to generate a unique room code"}
)

// CodeOf 返回错误携带的业务错误码，非业务错误返回 UNKNOWN_ERROR。
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeUnknownError
}

// IsDomainError 报告 err 是否属于业务错误全集。
func IsDomainError(err error) bool {
	var de *Error
	return errors.As(err, &de)
}
