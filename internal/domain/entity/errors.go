package entity

import "errors"

var (
	ErrInvalidMessageID = errors.New("invalid message id")
	ErrInvalidThreadID  = errors.New("invalid thread id")
	ErrMessageNotFound  = errors.New("message not found")
	ErrNotEditable      = errors.New("only user messages are editable")
)
