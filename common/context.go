package common

type ContextKey string

const (
	ContextLogger  ContextKey = "pmr.logger"
	ContextRequest ContextKey = "pmr.request"
)
