package models

import "errors"

var (
	ErrInvalidDate     = errors.New("invalid report date (expected YYYYMMDD)")
	ErrReportNotFound  = errors.New("report not found")
	ErrDateMismatch    = errors.New("report date does not match requested date")
	ErrNoFormulas      = errors.New("feed and mix formulas are both missing")
	ErrCacheMiss       = errors.New("cache miss")
	ErrInvalidKind     = errors.New("invalid report kind")
	ErrCorruptMetadata = errors.New("corrupt cache metadata")
)
