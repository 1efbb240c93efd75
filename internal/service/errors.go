package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	InvalidOperation    = 409
	UserUnavailable     = 422
	InternalServerError = 500
)

// Kind 错误类别，调用方据此区分“不存在 / 无权限 / 参数错误”
type Kind string

const (
	KindInvalidArgument  Kind = "InvalidArgument"
	KindNotFound         Kind = "NotFound"
	KindForbidden        Kind = "Forbidden"
	KindInvalidOperation Kind = "InvalidOperation"
	KindUserUnavailable  Kind = "UserUnavailable"
	KindConflict         Kind = "Conflict"
	KindUnauthorized     Kind = "Unauthorized"
	KindInternal         Kind = "Internal"
)

var (
	ErrParamInvalid         = errors.New("参数错误")
	ErrSelfConversation     = errors.New("不能和自己发起会话")
	ErrGroupNameBlank       = errors.New("群聊名称不能为空")
	ErrGroupMembersEmpty    = errors.New("群聊成员不能为空")
	ErrMsgTypeInvalid       = errors.New("消息类型无效")
	ErrMsgContentBlank      = errors.New("消息内容不能为空")
	ErrAttachmentInvalid    = errors.New("附件地址无效")
	ErrReplyToInvalid       = errors.New("引用的消息无效")
	ErrReadPositionInvalid  = errors.New("已读位置无效")
	ErrConversationNotFound = errors.New("会话不存在")
	ErrMessageNotFound      = errors.New("消息不存在")
	ErrUserNotFound         = errors.New("用户不存在")
	ErrUserUnavailable      = errors.New("用户不可用")
	ErrNotParticipant       = errors.New("不是会话成员")
	ErrNotMessageSender     = errors.New("只能删除自己发送的消息")
	ErrRemoveNotAllowed     = errors.New("无权移除该成员")
	ErrDirectConversation   = errors.New("单聊不支持该操作")
	ErrConversationConflict = errors.New("会话创建冲突")
	ErrMissingCredentials   = errors.New("缺少登录凭据")
	ErrTokenInvalid         = errors.New("登录凭据无效")
	UnauthorizedError       = errors.New("权限不足")
	UnExpectedError         = errors.New("系统异常，请稍后重试")
)

var kindMap = map[error]Kind{
	ErrParamInvalid:         KindInvalidArgument,
	ErrSelfConversation:     KindInvalidArgument,
	ErrGroupNameBlank:       KindInvalidArgument,
	ErrGroupMembersEmpty:    KindInvalidArgument,
	ErrMsgTypeInvalid:       KindInvalidArgument,
	ErrMsgContentBlank:      KindInvalidArgument,
	ErrAttachmentInvalid:    KindInvalidArgument,
	ErrReplyToInvalid:       KindInvalidArgument,
	ErrReadPositionInvalid:  KindInvalidArgument,
	ErrConversationNotFound: KindNotFound,
	ErrMessageNotFound:      KindNotFound,
	ErrUserNotFound:         KindNotFound,
	ErrUserUnavailable:      KindUserUnavailable,
	ErrNotParticipant:       KindForbidden,
	ErrNotMessageSender:     KindForbidden,
	ErrRemoveNotAllowed:     KindForbidden,
	UnauthorizedError:       KindForbidden,
	ErrDirectConversation:   KindInvalidOperation,
	ErrConversationConflict: KindConflict,
	ErrMissingCredentials:   KindUnauthorized,
	ErrTokenInvalid:         KindUnauthorized,
	UnExpectedError:         KindInternal,
}

var kindCode = map[Kind]int{
	KindInvalidArgument:  BadRequest,
	KindNotFound:         NotFound,
	KindForbidden:        Forbidden,
	KindInvalidOperation: InvalidOperation,
	KindUserUnavailable:  UserUnavailable,
	KindConflict:         InternalServerError,
	KindUnauthorized:     Unauthorized,
	KindInternal:         InternalServerError,
}

// ErrorMap 业务错误到响应码
var ErrorMap = func() map[error]int {
	m := make(map[error]int, len(kindMap))
	for err, kind := range kindMap {
		m[err] = kindCode[kind]
	}
	return m
}()

// KindOf 解析错误类别，支持被 %w 包装的哨兵错误
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for sentinel, kind := range kindMap {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

// CodeOf 解析响应码，未知错误返回 500
func CodeOf(err error) (int, bool) {
	for sentinel, code := range ErrorMap {
		if errors.Is(err, sentinel) {
			return code, true
		}
	}
	return InternalServerError, false
}
