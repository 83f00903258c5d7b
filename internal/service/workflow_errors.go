package service

import (
	"shopchat-go/internal/model"
	"shopchat-go/pkg/backend"
)

// 面向用户的错误提示，与界面语言（韩语）保持一致。
var errorMessages = map[model.ErrorKind]string{
	model.ErrorSendFailed:        "메시지를 전송하지 못했습니다. 잠시 후 다시 시도해 주세요.",
	model.ErrorConnectionRefused: "서버에 연결할 수 없습니다. 서버가 실행 중인지 확인해 주세요.",
	model.ErrorNotFound:          "요청하신 대화의 응답을 찾을 수 없습니다.",
	model.ErrorRequestFailed:     "응답을 가져오는 중 오류가 발생했습니다. 다시 시도해 주세요.",
	model.ErrorMalformedResult:   "죄송합니다. 응답을 처리하는 중 문제가 발생했습니다.",
	model.ErrorTimeout:           "응답 시간이 초과되었습니다. 다시 시도해 주세요.",
}

// ErrorMessage 返回错误类型对应的提示文本。
func ErrorMessage(kind model.ErrorKind) string {
	if msg, ok := errorMessages[kind]; ok {
		return msg
	}
	return errorMessages[model.ErrorRequestFailed]
}

func classifyPollError(err error) model.ErrorKind {
	switch {
	case backend.IsConnectionRefused(err):
		return model.ErrorConnectionRefused
	case backend.IsNotFound(err):
		return model.ErrorNotFound
	default:
		return model.ErrorRequestFailed
	}
}
